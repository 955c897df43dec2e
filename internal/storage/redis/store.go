// Package redis provides the store backend on a Redis-compatible service.
//
// Key layout, per device:
//
//	{prefix}idx:{device}        sorted set, member = score = timestamp
//	{prefix}rec:{device}:{ts}   hash of field -> value, plus "timestamp", TTL = retention
//
// Index and record keys live in separate namespaces, so a device id that
// contains ':' can never name another device's keys.
//
// Put is a single MULTI/EXEC transaction. RangeRead and EvictExpired need to
// read the index and act on what they find inside the same atomic unit, so
// they run as Lua scripts.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/logging"
	"github.com/xtxerr/edgeflow/internal/storage/config"
	"github.com/xtxerr/edgeflow/internal/storage/types"
)

// Options configures the redis store.
type Options struct {
	// Retention is the eviction horizon and record TTL. Defaults to one hour.
	Retention time.Duration

	// KeyPrefix namespaces every key.
	KeyPrefix string

	// Now is the clock used for eviction. Defaults to time.Now.
	Now func() time.Time
}

// Store is the redis-backed bounded time-series store.
type Store struct {
	client    goredis.UniversalClient
	ownClient bool
	retention int64
	prefix    string
	now       func() time.Time
	log       *slog.Logger

	// Statistics
	puts    atomic.Int64
	reads   atomic.Int64
	evicted atomic.Int64
	errors  atomic.Int64
}

// Dial opens a client for cfg and verifies the connection with PING.
func Dial(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		// Retries belong to the transport, not to the store layer.
		MaxRetries: -1,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Unavailable(fmt.Sprintf("ping %s", cfg.Addr), err)
	}

	return client, nil
}

// Open dials the configured service and returns a store that owns the
// connection.
func Open(ctx context.Context, cfg *config.Config, now func() time.Time) (*Store, error) {
	client, err := Dial(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	s := New(client, Options{
		Retention: cfg.Retention(),
		KeyPrefix: cfg.KeyPrefix,
		Now:       now,
	})
	s.ownClient = true

	s.log.Info("store connected", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB, "retention_sec", s.retention)
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of client; Close
// does not close it.
func New(client goredis.UniversalClient, opts Options) *Store {
	retention := int64(opts.Retention / time.Second)
	if retention <= 0 {
		retention = 3600
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		client:    client,
		retention: retention,
		prefix:    opts.KeyPrefix,
		now:       now,
		log:       logging.Component("store.redis"),
	}
}

// Put writes rec in one transaction: replace the record hash, set its TTL,
// index the timestamp and trim index entries past the horizon.
func (s *Store) Put(ctx context.Context, deviceID string, rec types.Record) error {
	if err := rec.Validate(deviceID); err != nil {
		return err
	}

	ts := strconv.FormatInt(rec.Timestamp, 10)
	cutoff := s.now().Unix() - s.retention
	recordKey := s.recordKey(deviceID, ts)
	indexKey := s.indexKey(deviceID)

	values := make(map[string]interface{}, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		values[k] = v
	}
	values[constants.FieldTimestamp] = ts

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, recordKey)
		pipe.HSet(ctx, recordKey, values)
		pipe.Expire(ctx, recordKey, time.Duration(s.retention)*time.Second)
		pipe.ZAdd(ctx, indexKey, goredis.Z{Score: float64(rec.Timestamp), Member: ts})
		pipe.ZRemRangeByScore(ctx, indexKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		return nil
	})
	if err != nil {
		s.errors.Add(1)
		return s.wrap("put", err)
	}

	s.puts.Add(1)
	return nil
}

// RangeRead removes every indexed timestamp below start together with its
// record, then returns the rows in [start, end], ascending. A start older
// than the retention horizon is raised to the horizon.
func (s *Store) RangeRead(ctx context.Context, deviceID string, start, end int64, fields []string) ([]types.Row, error) {
	if cutoff := s.now().Unix() - s.retention; start < cutoff {
		start = cutoff
	}

	args := make([]interface{}, 0, 3+len(fields))
	args = append(args,
		strconv.FormatInt(start, 10),
		strconv.FormatInt(end, 10),
		s.recordKey(deviceID, ""),
	)
	for _, f := range fields {
		args = append(args, f)
	}

	res, err := rangeReadScript.Run(ctx, s.client, []string{s.indexKey(deviceID)}, args...).Slice()
	if err != nil {
		s.errors.Add(1)
		return nil, s.wrap("range read", err)
	}
	s.reads.Add(1)

	if len(res) == 0 {
		return nil, fmt.Errorf("range read: empty reply")
	}
	if n, ok := res[0].(int64); ok {
		s.evicted.Add(n)
	}

	return decodeRows(res[1:], fields)
}

// EvictExpired removes index entries and record hashes older than
// asOf-retention.
func (s *Store) EvictExpired(ctx context.Context, deviceID string, asOf int64) error {
	n, err := evictScript.Run(ctx, s.client,
		[]string{s.indexKey(deviceID)},
		strconv.FormatInt(asOf-s.retention, 10),
		s.recordKey(deviceID, ""),
	).Int64()
	if err != nil {
		s.errors.Add(1)
		return s.wrap("evict", err)
	}

	s.evicted.Add(n)
	return nil
}

// Close closes the client if the store opened it.
func (s *Store) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Puts:    s.puts.Load(),
		Reads:   s.reads.Load(),
		Evicted: s.evicted.Load(),
		Errors:  s.errors.Load(),
	}
}

// Stats holds redis store statistics.
type Stats struct {
	Puts    int64
	Reads   int64
	Evicted int64
	Errors  int64
}

func (s *Store) indexKey(deviceID string) string {
	return s.prefix + "idx:" + deviceID
}

func (s *Store) recordKey(deviceID, ts string) string {
	return s.prefix + "rec:" + deviceID + ":" + ts
}

// wrap maps client failures to the store error taxonomy.
func (s *Store) wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Unavailable(op, fmt.Errorf("%w: %w", errors.ErrTimeout, err))
	}
	return errors.Unavailable(op, err)
}

// decodeRows splits the flat script reply into rows of 1+len(fields) items.
func decodeRows(res []interface{}, fields []string) ([]types.Row, error) {
	width := 1 + len(fields)
	if len(res)%width != 0 {
		return nil, fmt.Errorf("range read: reply of %d items is not a multiple of %d", len(res), width)
	}

	rows := make([]types.Row, 0, len(res)/width)
	for i := 0; i < len(res); i += width {
		tsStr, ok := res[i].(string)
		if !ok {
			return nil, fmt.Errorf("range read: unexpected timestamp %v", res[i])
		}
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("range read: bad index member %q: %w", tsStr, err)
		}

		values := make(map[string]string, len(fields))
		for j, f := range fields {
			if v, ok := res[i+1+j].(string); ok {
				values[f] = v
			}
		}
		rows = append(rows, types.Row{Timestamp: ts, Values: values})
	}

	return rows, nil
}
