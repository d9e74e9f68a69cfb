package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONEqual сравнивает два JSON объекта независимо от порядка полей
func AssertJSONEqual(t *testing.T, expected, actual string) {
	t.Helper()

	var expectedJSON, actualJSON interface{}

	err := json.Unmarshal([]byte(expected), &expectedJSON)
	require.NoError(t, err, "Invalid expected JSON")

	err = json.Unmarshal([]byte(actual), &actualJSON)
	require.NoError(t, err, "Invalid actual JSON")

	assert.Equal(t, expectedJSON, actualJSON)
}

// AssertErrorContains проверяет, что ошибка содержит определенную подстроку
func AssertErrorContains(t *testing.T, err error, substring string) {
	t.Helper()

	require.Error(t, err, "Expected an error but got nil")
	assert.Contains(t, err.Error(), substring)
}

// AssertPartition checks that attempted == success + duplicates + errors.
func AssertPartition(t *testing.T, attempted, success, duplicates, errors int) {
	t.Helper()
	assert.Equal(t, attempted, success+duplicates+errors,
		"attempted=%d must equal success=%d + duplicates=%d + errors=%d", attempted, success, duplicates, errors)
}
