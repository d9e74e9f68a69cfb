package importer

import (
	"context"
	"fmt"

	"github.com/zhukovvlad/residence-go/cmd/internal/db"
)

// DuplicateDetector спрашивает у хранилища, какие идентификаторы уже есть. Кандидаты
// уходят пачками не больше лимита хранилища на размер списка.
type DuplicateDetector struct {
	store     db.Store
	batchSize int
}

func NewDuplicateDetector(store db.Store, batchSize int) *DuplicateDetector {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &DuplicateDetector{store: store, batchSize: batchSize}
}

// Existing returns the set of ids already persisted as students.id_number.
func (d *DuplicateDetector) Existing(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for _, batch := range chunk(ids, d.batchSize) {
		keys, err := d.store.ExistingKeys(ctx, db.CollectionStudents, ColIDNumber, batch)
		if err != nil {
			return nil, fmt.Errorf("check existing students (%d ids): %w", len(batch), err)
		}
		for _, k := range keys {
			found[k] = struct{}{}
		}
	}
	return found, nil
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 || size <= 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
