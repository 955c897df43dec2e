package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/storage/memory"
	"github.com/xtxerr/edgeflow/internal/storage/storagetest"
	"github.com/xtxerr/edgeflow/internal/storage/types"
)

func newStore(t *testing.T, clock *storagetest.Clock) *memory.Store {
	return memory.New(memory.Options{
		Retention: storagetest.Retention,
		Now:       clock.Now,
	})
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, clock *storagetest.Clock) storagetest.Store {
		return newStore(t, clock)
	})
}

func TestStore_RecordTTL(t *testing.T) {
	clock := storagetest.NewClock(1100)
	s := newStore(t, clock)
	ctx := context.Background()

	// A timestamp far ahead of the clock stays indexed past its TTL.
	if err := s.Put(ctx, "d1", types.Record{Timestamp: 9000, Fields: map[string]string{"t": "1"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clock.Set(1100 + 3600)

	rows, err := s.RangeRead(ctx, "d1", 0, 10000, []string{"t"})
	if err != nil {
		t.Fatalf("RangeRead: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected expired record to be skipped, got %+v", rows)
	}
	if n := s.Len("d1"); n != 0 {
		t.Errorf("expected expired index entry to be pruned, %d left", n)
	}
}

func TestStore_StoredRecordIsCopied(t *testing.T) {
	clock := storagetest.NewClock(1100)
	s := newStore(t, clock)
	ctx := context.Background()

	fields := map[string]string{"temperature": "21.5"}
	if err := s.Put(ctx, "d1", types.Record{Timestamp: 1000, Fields: fields}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	fields["temperature"] = "99"

	rows, err := s.RangeRead(ctx, "d1", 0, 2000, []string{"temperature"})
	if err != nil {
		t.Fatalf("RangeRead: %v", err)
	}
	if rows[0].Values["temperature"] != "21.5" {
		t.Errorf("stored record changed through caller's map: %q", rows[0].Values["temperature"])
	}
}

func TestStore_Stats(t *testing.T) {
	clock := storagetest.NewClock(1100)
	s := newStore(t, clock)
	ctx := context.Background()

	for _, ts := range []int64{1000, 1010, 1020} {
		if err := s.Put(ctx, "d1", types.Record{Timestamp: ts}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := s.Put(ctx, "d2", types.Record{Timestamp: 1000}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.EvictExpired(ctx, "d1", 1015+3600); err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}

	stats := s.Stats()
	if stats.Devices != 2 {
		t.Errorf("expected 2 devices, got %d", stats.Devices)
	}
	if stats.Records != 2 {
		t.Errorf("expected 2 records, got %d", stats.Records)
	}
	if stats.Puts != 4 {
		t.Errorf("expected 4 puts, got %d", stats.Puts)
	}
	if stats.Evicted != 2 {
		t.Errorf("expected 2 evicted, got %d", stats.Evicted)
	}
}

func TestStore_Closed(t *testing.T) {
	s := newStore(t, storagetest.NewClock(1100))
	s.Close()

	err := s.Put(context.Background(), "d1", types.Record{Timestamp: 1000})
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable after Close, got %v", err)
	}

	_, err = s.RangeRead(context.Background(), "d1", 0, 2000, nil)
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable after Close, got %v", err)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := newStore(t, storagetest.NewClock(1100))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if err := s.Put(ctx, "d1", types.Record{Timestamp: 1000}); !errors.IsUnavailable(err) {
		t.Errorf("expected unavailable error, got %v", err)
	}
	if s.Len("d1") != 0 {
		t.Error("cancelled put must not write")
	}
}
