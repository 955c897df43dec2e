// Package storagetest provides a conformance suite that every store backend
// must pass, plus a controllable clock.
package storagetest

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/storage/types"
	testutil "github.com/xtxerr/edgeflow/internal/testing"
)

// Retention is the retention every store under test must be built with.
const Retention = time.Hour

// Store mirrors storage.Store so the suite does not depend on the backends
// it tests.
type Store interface {
	Put(ctx context.Context, deviceID string, rec types.Record) error
	RangeRead(ctx context.Context, deviceID string, start, end int64, fields []string) ([]types.Row, error)
	EvictExpired(ctx context.Context, deviceID string, asOf int64) error
	Close() error
}

// Clock is a manually advanced clock in whole seconds.
type Clock struct {
	mu  sync.Mutex
	now int64
}

// NewClock returns a clock set to unix.
func NewClock(unix int64) *Clock {
	return &Clock{now: unix}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

// Set moves the clock to unix.
func (c *Clock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = unix
}

// Factory builds a fresh, empty store with Retention and clock.Now.
type Factory func(t *testing.T, clock *Clock) Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store, clock *Clock)
	}{
		{"ReadBackScenario", testReadBackScenario},
		{"AscendingOrder", testAscendingOrder},
		{"EvictAfterRetention", testEvictAfterRetention},
		{"OverwriteSameTimestamp", testOverwriteSameTimestamp},
		{"EmptyDevice", testEmptyDevice},
		{"EvictIdempotent", testEvictIdempotent},
		{"RejectedPut", testRejectedPut},
		{"ZeroAndNegativeTimestamps", testZeroAndNegativeTimestamps},
		{"MissingFields", testMissingFields},
		{"PutEvictsPastHorizon", testPutEvictsPastHorizon},
		{"ReadNeverCrossesHorizon", testReadNeverCrossesHorizon},
		{"ReadSweepsBelowStart", testReadSweepsBelowStart},
		{"InvertedRange", testInvertedRange},
		{"TimestampField", testTimestampField},
		{"DevicesIsolated", testDevicesIsolated},
		{"SeparatorInDeviceID", testSeparatorInDeviceID},
		{"ConcurrentPuts", testConcurrentPuts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock(1100)
			s := newStore(t, clock)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s, clock)
		})
	}
}

func put(t *testing.T, s Store, device string, ts int64, fields map[string]string) {
	t.Helper()
	if err := s.Put(context.Background(), device, types.Record{Timestamp: ts, Fields: fields}); err != nil {
		t.Fatalf("Put(%s, %d): %v", device, ts, err)
	}
}

func read(t *testing.T, s Store, device string, start, end int64, fields ...string) []types.Row {
	t.Helper()
	rows, err := s.RangeRead(context.Background(), device, start, end, fields)
	if err != nil {
		t.Fatalf("RangeRead(%s, %d, %d): %v", device, start, end, err)
	}
	if rows == nil {
		t.Fatalf("RangeRead(%s, %d, %d): nil slice, want empty", device, start, end)
	}
	return rows
}

func timestamps(rows []types.Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.Timestamp
	}
	return out
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testReadBackScenario(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "21.5"})
	put(t, s, "d1", 1010, map[string]string{"temperature": "21.7"})

	rows := read(t, s, "d1", 900, 1100, "temperature")

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	want := []struct {
		ts   int64
		temp string
	}{{1000, "21.5"}, {1010, "21.7"}}
	for i, w := range want {
		if rows[i].Timestamp != w.ts || rows[i].Values["temperature"] != w.temp {
			t.Errorf("row %d: expected (%d, %s), got (%d, %s)",
				i, w.ts, w.temp, rows[i].Timestamp, rows[i].Values["temperature"])
		}
	}
}

func testAscendingOrder(t *testing.T, s Store, _ *Clock) {
	ts := []int64{1050, 1000, 1090, 1010, 1030, 1070, 1020}
	rand.New(rand.NewSource(7)).Shuffle(len(ts), func(i, j int) { ts[i], ts[j] = ts[j], ts[i] })

	for _, v := range ts {
		put(t, s, "d1", v, map[string]string{"temperature": "1"})
	}

	got := timestamps(read(t, s, "d1", 0, 2000, "temperature"))
	want := []int64{1000, 1010, 1020, 1030, 1050, 1070, 1090}
	if !equalInts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func testEvictAfterRetention(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "21.5"})
	put(t, s, "d1", 1050, map[string]string{"temperature": "21.9"})

	asOf := int64(1000) + int64(Retention/time.Second) + 1
	if err := s.EvictExpired(context.Background(), "d1", asOf); err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}

	got := timestamps(read(t, s, "d1", 0, 2000, "temperature"))
	if !equalInts(got, []int64{1050}) {
		t.Errorf("expected [1050] after eviction, got %v", got)
	}
}

func testOverwriteSameTimestamp(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "20.0", "humidity": "40"})
	put(t, s, "d1", 1000, map[string]string{"temperature": "22.0"})

	rows := read(t, s, "d1", 0, 2000, "temperature", "humidity")
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row, got %d", len(rows))
	}
	if rows[0].Values["temperature"] != "22.0" {
		t.Errorf("expected second write's temperature 22.0, got %q", rows[0].Values["temperature"])
	}
	if v, ok := rows[0].Values["humidity"]; ok {
		t.Errorf("humidity from the first write survived: %q", v)
	}
}

func testEmptyDevice(t *testing.T, s Store, _ *Clock) {
	rows := read(t, s, "nobody", 0, 2000, "temperature")
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func testEvictIdempotent(t *testing.T, s Store, _ *Clock) {
	ctx := context.Background()
	put(t, s, "d1", 1000, map[string]string{"temperature": "1"})
	put(t, s, "d1", 1090, map[string]string{"temperature": "2"})

	asOf := int64(1050) + int64(Retention/time.Second)

	if err := s.EvictExpired(ctx, "d1", asOf); err != nil {
		t.Fatalf("first EvictExpired: %v", err)
	}
	once := timestamps(read(t, s, "d1", 0, 2000, "temperature"))

	if err := s.EvictExpired(ctx, "d1", asOf); err != nil {
		t.Fatalf("second EvictExpired: %v", err)
	}
	twice := timestamps(read(t, s, "d1", 0, 2000, "temperature"))

	if !equalInts(once, []int64{1090}) || !equalInts(once, twice) {
		t.Errorf("expected [1090] both times, got %v then %v", once, twice)
	}

	if err := s.EvictExpired(ctx, "never-written", asOf); err != nil {
		t.Errorf("EvictExpired on empty device: %v", err)
	}
}

func testRejectedPut(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "21.5"})

	bad := []struct {
		device string
		rec    types.Record
	}{
		{"", types.Record{Timestamp: 1000}},
		{"d1", types.Record{DeviceID: "d2", Timestamp: 1000, Fields: map[string]string{"temperature": "99"}}},
		{"d1", types.Record{Timestamp: 1000, Fields: map[string]string{"": "99"}}},
	}
	for _, b := range bad {
		if err := s.Put(context.Background(), b.device, b.rec); !errors.Is(err, errors.ErrInvalidRecord) {
			t.Errorf("Put(%q, %+v): expected ErrInvalidRecord, got %v", b.device, b.rec, err)
		}
	}

	rows := read(t, s, "d1", 0, 2000, "temperature")
	if len(rows) != 1 || rows[0].Values["temperature"] != "21.5" {
		t.Errorf("store state changed after rejected put: %+v", rows)
	}
}

func testZeroAndNegativeTimestamps(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 0, map[string]string{"temperature": "0"})
	put(t, s, "d1", -60, map[string]string{"temperature": "-1"})

	rows := read(t, s, "d1", -1000, 2000, "temperature")
	if got := timestamps(rows); !equalInts(got, []int64{-60, 0}) {
		t.Fatalf("expected [-60 0], got %v", got)
	}
	if rows[0].Values["temperature"] != "-1" {
		t.Errorf("expected -1 at -60, got %q", rows[0].Values["temperature"])
	}
}

func testMissingFields(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "21.5"})

	rows := read(t, s, "d1", 0, 2000, "temperature", "pressure")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[0].Values["pressure"]; ok {
		t.Error("missing field should have no entry")
	}
	if rows[0].Values["temperature"] != "21.5" {
		t.Errorf("expected temperature 21.5, got %q", rows[0].Values["temperature"])
	}
}

func testPutEvictsPastHorizon(t *testing.T, s Store, clock *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "1"})

	later := int64(1000) + int64(Retention/time.Second) + 5
	clock.Set(later)
	put(t, s, "d1", later, map[string]string{"temperature": "2"})

	got := timestamps(read(t, s, "d1", 0, later+100, "temperature"))
	if !equalInts(got, []int64{later}) {
		t.Errorf("expected [%d], got %v", later, got)
	}
}

func testReadNeverCrossesHorizon(t *testing.T, s Store, clock *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "1"})
	put(t, s, "d1", 1100, map[string]string{"temperature": "2"})

	// Horizon now sits between the two records.
	clock.Set(1050 + int64(Retention/time.Second))

	got := timestamps(read(t, s, "d1", 0, 5000, "temperature"))
	if !equalInts(got, []int64{1100}) {
		t.Errorf("expected [1100], got %v", got)
	}
}

func testInvertedRange(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "1"})
	put(t, s, "d1", 1200, map[string]string{"temperature": "2"})

	rows := read(t, s, "d1", 1100, 900, "temperature")
	if len(rows) != 0 {
		t.Errorf("expected no rows for start > end, got %d", len(rows))
	}

	// The sweep below start still happened.
	if got := timestamps(read(t, s, "d1", 0, 2000, "temperature")); !equalInts(got, []int64{1200}) {
		t.Errorf("expected [1200], got %v", got)
	}
}

func testReadSweepsBelowStart(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "1"})
	put(t, s, "d1", 1050, map[string]string{"temperature": "2"})

	if got := timestamps(read(t, s, "d1", 1040, 1100, "temperature")); !equalInts(got, []int64{1050}) {
		t.Fatalf("expected [1050], got %v", got)
	}

	// 1000 was removed by the first read, not merely filtered.
	if got := timestamps(read(t, s, "d1", 0, 2000, "temperature")); !equalInts(got, []int64{1050}) {
		t.Errorf("expected [1050] after sweep, got %v", got)
	}
}

func testTimestampField(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "1"})

	rows := read(t, s, "d1", 0, 2000, "timestamp", "temperature")
	if len(rows) != 1 || rows[0].Values["timestamp"] != "1000" {
		t.Errorf("expected timestamp field 1000, got %+v", rows)
	}
}

func testDevicesIsolated(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1", 1000, map[string]string{"temperature": "1"})
	put(t, s, "d2", 1000, map[string]string{"temperature": "2"})

	if err := s.EvictExpired(context.Background(), "d1", 1000+int64(Retention/time.Second)+1); err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}

	if rows := read(t, s, "d1", 0, 2000, "temperature"); len(rows) != 0 {
		t.Errorf("d1: expected no rows, got %d", len(rows))
	}
	rows := read(t, s, "d2", 0, 2000, "temperature")
	if len(rows) != 1 || rows[0].Values["temperature"] != "2" {
		t.Errorf("d2: expected untouched record, got %+v", rows)
	}
}

func testSeparatorInDeviceID(t *testing.T, s Store, _ *Clock) {
	put(t, s, "d1:1000", 1050, map[string]string{"temperature": "1"})
	put(t, s, "d1", 1000, map[string]string{"temperature": "2"})

	rows := read(t, s, "d1:1000", 0, 2000, "temperature")
	if len(rows) != 1 || rows[0].Timestamp != 1050 || rows[0].Values["temperature"] != "1" {
		t.Errorf("d1:1000: expected its own record at 1050, got %+v", rows)
	}
	rows = read(t, s, "d1", 0, 2000, "temperature")
	if len(rows) != 1 || rows[0].Timestamp != 1000 || rows[0].Values["temperature"] != "2" {
		t.Errorf("d1: expected its own record at 1000, got %+v", rows)
	}
}

func testConcurrentPuts(t *testing.T, s Store, _ *Clock) {
	gt := testutil.NewGoroutineTest(t, 10*time.Second)
	for i := 0; i < 50; i++ {
		ts := int64(1000 + i)
		gt.Go(func(ctx context.Context) error {
			if err := s.Put(ctx, "d1", types.Record{Timestamp: ts, Fields: map[string]string{"temperature": "1"}}); err != nil {
				return err
			}
			_, err := s.RangeRead(ctx, "d1", 0, 2000, []string{"temperature"})
			return err
		})
	}
	gt.Wait()

	got := read(t, s, "d1", 0, 2000, "temperature")
	if len(got) != 50 {
		t.Fatalf("expected 50 rows, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatalf("rows not strictly ascending at %d: %v", i, timestamps(got))
		}
	}
}
