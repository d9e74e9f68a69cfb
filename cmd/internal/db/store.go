package db

import (
	"context"
	"errors"
	"fmt"
)

// Коллекции, с которыми работает импорт.
const (
	CollectionStudents   = "students"
	CollectionAddresses  = "addresses"
	CollectionImportRuns = "import_runs"

	// KeyField - первичный ключ любой коллекции.
	KeyField = "id"
)

var (
	ErrTooManyOperations = errors.New("too many operations for one atomic write")
	ErrTooManyValues     = errors.New("too many candidate values for one existence query")
	ErrUnknownCollection = errors.New("unknown collection")
)

// Operation - одна запись внутри атомарной записи.
type Operation struct {
	Collection string
	Key        string
	Record     map[string]any
}

// Limits - документированные лимиты бэкенда на один вызов.
type Limits struct {
	// MaxWriteOps - максимум операций в одном AtomicWrite.
	MaxWriteOps int
	// MaxQueryValues - максимум значений в одном вызове ExistingKeys.
	MaxQueryValues int
}

// Store - контракт хранилища для конвейера импорта.
//
//go:generate mockgen -source=store.go -destination=mock/store.go -package=mockdb
type Store interface {
	// AtomicWrite сохраняет все операции или ни одной.
	AtomicWrite(ctx context.Context, ops []Operation) error
	// ExistingKeys возвращает те значения, что уже есть в collection.field.
	ExistingKeys(ctx context.Context, collection, field string, values []string) ([]string, error)
	// Limits reports the per-call ceilings of the backend.
	Limits() Limits
}

func knownCollection(name string) bool {
	switch name {
	case CollectionStudents, CollectionAddresses, CollectionImportRuns:
		return true
	}
	return false
}

func checkWrite(limits Limits, ops []Operation) error {
	if limits.MaxWriteOps > 0 && len(ops) > limits.MaxWriteOps {
		return fmt.Errorf("%w: %d > %d", ErrTooManyOperations, len(ops), limits.MaxWriteOps)
	}
	for _, op := range ops {
		if !knownCollection(op.Collection) {
			return fmt.Errorf("%w: %q", ErrUnknownCollection, op.Collection)
		}
		if op.Key == "" {
			return fmt.Errorf("invalid argument: empty key for collection %q", op.Collection)
		}
	}
	return nil
}

func checkQuery(limits Limits, collection string, values []string) error {
	if !knownCollection(collection) {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	if limits.MaxQueryValues > 0 && len(values) > limits.MaxQueryValues {
		return fmt.Errorf("%w: %d > %d", ErrTooManyValues, len(values), limits.MaxQueryValues)
	}
	return nil
}
