// Package memory provides a process-local store backend.
//
// It keeps the same contract as the redis backend: per-device ordered index
// plus record map, TTL from insertion, and inline eviction on every write and
// read. All operations are serialized behind a single mutex, which gives the
// same no-partial-state guarantee within one process that the redis backend
// gets from server-side atomic batches.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/storage/types"
)

// Options configures the memory store.
type Options struct {
	// Retention is the eviction horizon and record TTL. Defaults to one hour.
	Retention time.Duration

	// Now is the clock used for TTLs and eviction. Defaults to time.Now.
	Now func() time.Time
}

// Store is a thread-safe in-memory bounded time-series store.
type Store struct {
	mu        sync.Mutex
	series    map[string]*deviceSeries
	retention int64
	now       func() time.Time
	closed    bool

	// Statistics
	puts    atomic.Int64
	reads   atomic.Int64
	evicted atomic.Int64
}

// deviceSeries holds one device's records. index is sorted ascending and
// always holds exactly the keys of records.
type deviceSeries struct {
	index   []int64
	records map[int64]entry
}

type entry struct {
	fields    map[string]string
	expiresAt int64 // Unix seconds; the record is gone at or after this instant
}

// New creates an empty memory store.
func New(opts Options) *Store {
	retention := int64(opts.Retention / time.Second)
	if retention <= 0 {
		retention = 3600
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		series:    make(map[string]*deviceSeries),
		retention: retention,
		now:       now,
	}
}

// Put inserts or replaces the record at rec.Timestamp.
func (s *Store) Put(ctx context.Context, deviceID string, rec types.Record) error {
	if err := rec.Validate(deviceID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Unavailable("put", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Unavailable("put", errors.ErrClosed)
	}

	now := s.now().Unix()

	ds := s.series[deviceID]
	if ds == nil {
		ds = &deviceSeries{records: make(map[int64]entry)}
		s.series[deviceID] = ds
	}

	c := rec.Clone()
	ds.insert(rec.Timestamp, entry{fields: c.Fields, expiresAt: now + s.retention})
	s.evicted.Add(int64(ds.removeBelow(now - s.retention)))
	s.dropIfEmpty(deviceID, ds)
	s.puts.Add(1)

	return nil
}

// RangeRead removes every indexed timestamp below start, then returns the
// rows in [start, end] in ascending timestamp order. A start older than the
// retention horizon is raised to the horizon.
func (s *Store) RangeRead(ctx context.Context, deviceID string, start, end int64, fields []string) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Unavailable("range read", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Unavailable("range read", errors.ErrClosed)
	}

	s.reads.Add(1)

	ds := s.series[deviceID]
	if ds == nil {
		return []types.Row{}, nil
	}

	now := s.now().Unix()
	if cutoff := now - s.retention; start < cutoff {
		start = cutoff
	}
	s.evicted.Add(int64(ds.removeBelow(start)))

	rows := []types.Row{}
	var stale []int64

	from := sort.Search(len(ds.index), func(i int) bool { return ds.index[i] >= start })
	for _, ts := range ds.index[from:] {
		if ts > end {
			break
		}
		e := ds.records[ts]
		if e.expiresAt <= now {
			stale = append(stale, ts)
			continue
		}

		rec := types.Record{Timestamp: ts, Fields: e.fields}
		values := make(map[string]string, len(fields))
		for _, f := range fields {
			if v, ok := rec.Value(f); ok {
				values[f] = v
			}
		}
		rows = append(rows, types.Row{Timestamp: ts, Values: values})
	}

	for _, ts := range stale {
		ds.remove(ts)
	}
	s.evicted.Add(int64(len(stale)))
	s.dropIfEmpty(deviceID, ds)

	return rows, nil
}

// EvictExpired removes everything older than asOf-retention.
func (s *Store) EvictExpired(ctx context.Context, deviceID string, asOf int64) error {
	if err := ctx.Err(); err != nil {
		return errors.Unavailable("evict", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Unavailable("evict", errors.ErrClosed)
	}

	ds := s.series[deviceID]
	if ds == nil {
		return nil
	}

	s.evicted.Add(int64(ds.removeBelow(asOf - s.retention)))
	s.dropIfEmpty(deviceID, ds)

	return nil
}

// Close marks the store closed and drops all data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.series = make(map[string]*deviceSeries)
	return nil
}

// Len returns the number of indexed records for deviceID.
func (s *Store) Len(deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ds := s.series[deviceID]; ds != nil {
		return len(ds.index)
	}
	return 0
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	devices := len(s.series)
	var records int
	for _, ds := range s.series {
		records += len(ds.index)
	}
	s.mu.Unlock()

	return Stats{
		Devices: devices,
		Records: records,
		Puts:    s.puts.Load(),
		Reads:   s.reads.Load(),
		Evicted: s.evicted.Load(),
	}
}

// Stats holds memory store statistics.
type Stats struct {
	Devices int
	Records int
	Puts    int64
	Reads   int64
	Evicted int64
}

func (s *Store) dropIfEmpty(deviceID string, ds *deviceSeries) {
	if len(ds.index) == 0 {
		delete(s.series, deviceID)
	}
}

// insert adds or replaces the entry at ts, keeping index sorted.
func (ds *deviceSeries) insert(ts int64, e entry) {
	if _, ok := ds.records[ts]; !ok {
		i := sort.Search(len(ds.index), func(i int) bool { return ds.index[i] >= ts })
		ds.index = append(ds.index, 0)
		copy(ds.index[i+1:], ds.index[i:])
		ds.index[i] = ts
	}
	ds.records[ts] = e
}

// removeBelow drops every timestamp < threshold and returns how many.
func (ds *deviceSeries) removeBelow(threshold int64) int {
	n := sort.Search(len(ds.index), func(i int) bool { return ds.index[i] >= threshold })
	for _, ts := range ds.index[:n] {
		delete(ds.records, ts)
	}
	ds.index = append(ds.index[:0], ds.index[n:]...)
	return n
}

func (ds *deviceSeries) remove(ts int64) {
	i := sort.Search(len(ds.index), func(i int) bool { return ds.index[i] >= ts })
	if i < len(ds.index) && ds.index[i] == ts {
		ds.index = append(ds.index[:i], ds.index[i+1:]...)
		delete(ds.records, ts)
	}
}
