// Package progress хранит снимки запусков импорта в Redis для опроса.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
)

const (
	keyPrefix  = "import:progress:"
	DefaultTTL = 24 * time.Hour
)

// ErrNotFound: снимка нет или он истёк.
var ErrNotFound = errors.New("import run progress not found")

// Tracker хранит последний RunProgress запуска с TTL.
type Tracker struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewTracker(rdb redis.Cmdable, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{rdb: rdb, ttl: ttl}
}

// Key is the Redis key of a run's snapshot.
func Key(runID string) string {
	return keyPrefix + runID
}

// Save перезаписывает снимок p.RunID и продлевает TTL.
func (t *Tracker) Save(ctx context.Context, p importer.RunProgress) error {
	if p.RunID == "" {
		return errors.New("progress: empty run id")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := t.rdb.Set(ctx, Key(p.RunID), payload, t.ttl).Err(); err != nil {
		return fmt.Errorf("save progress %s: %w", p.RunID, err)
	}
	return nil
}

// Get returns the latest snapshot of a run.
func (t *Tracker) Get(ctx context.Context, runID string) (*importer.RunProgress, error) {
	data, err := t.rdb.Get(ctx, Key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load progress %s: %w", runID, err)
	}

	var p importer.RunProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", runID, err)
	}
	return &p, nil
}

// Options подключения к Redis.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect открывает клиент и делает ping.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}
