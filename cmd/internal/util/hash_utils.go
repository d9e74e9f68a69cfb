package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GetSHA256Hash вычисляет хеш SHA-256 для входной строки.
func GetSHA256Hash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

// IdempotencyKey is a stable key for one delivery of one student to an external
// system: the same parts always give the same key.
func IdempotencyKey(parts ...string) string {
	return GetSHA256Hash(strings.Join(parts, "|"))
}
