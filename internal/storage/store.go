package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/storage/config"
	"github.com/xtxerr/edgeflow/internal/storage/memory"
	"github.com/xtxerr/edgeflow/internal/storage/redis"
	"github.com/xtxerr/edgeflow/internal/storage/types"
)

// Store is the bounded time-series store.
//
// Implementations evict inline: Put drops index entries older than
// now-retention, RangeRead drops everything below its start (never earlier
// than now-retention) before reading, so no caller ever observes a timestamp
// past the horizon.
type Store interface {
	// Put inserts or replaces the record at rec.Timestamp for deviceID.
	Put(ctx context.Context, deviceID string, rec types.Record) error

	// RangeRead removes indexed timestamps below start, then returns the
	// retained rows with timestamps in [start, end], ascending, each with the
	// requested fields that are present.
	RangeRead(ctx context.Context, deviceID string, start, end int64, fields []string) ([]types.Row, error)

	// EvictExpired removes index entries and records older than
	// asOf-retention. It is idempotent.
	EvictExpired(ctx context.Context, deviceID string, asOf int64) error

	// Close releases resources owned by the store.
	Close() error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*redis.Store)(nil)
)

// Open creates the store selected by cfg.Backend. The returned store owns its
// connection; Close must be called on shutdown.
func Open(ctx context.Context, cfg *config.Config, now func() time.Time) (Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	switch cfg.Backend {
	case constants.BackendMemory:
		return memory.New(memory.Options{
			Retention: cfg.Retention(),
			Now:       now,
		}), nil
	case constants.BackendRedis:
		return redis.Open(ctx, cfg, now)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
