package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/storage/config"
	"github.com/xtxerr/edgeflow/internal/storage/redis"
	"github.com/xtxerr/edgeflow/internal/storage/storagetest"
	"github.com/xtxerr/edgeflow/internal/storage/types"
)

func newStore(t *testing.T, clock *storagetest.Clock, prefix string) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	s := redis.New(client, redis.Options{
		Retention: storagetest.Retention,
		KeyPrefix: prefix,
		Now:       clock.Now,
	})
	return s, mr
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, clock *storagetest.Clock) storagetest.Store {
		s, _ := newStore(t, clock, "")
		return s
	})
}

func TestConformance_KeyPrefix(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, clock *storagetest.Clock) storagetest.Store {
		s, _ := newStore(t, clock, "edge:")
		return s
	})
}

func TestStore_KeyLayout(t *testing.T) {
	s, mr := newStore(t, storagetest.NewClock(1100), "")
	ctx := context.Background()

	rec := types.Record{Timestamp: 1000, Fields: map[string]string{"temperature": "21.5"}}
	if err := s.Put(ctx, "d1", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if got := mr.HGet("rec:d1:1000", "temperature"); got != "21.5" {
		t.Errorf("expected hash field temperature=21.5, got %q", got)
	}
	if got := mr.HGet("rec:d1:1000", "timestamp"); got != "1000" {
		t.Errorf("expected hash field timestamp=1000, got %q", got)
	}
	if ttl := mr.TTL("rec:d1:1000"); ttl != time.Hour {
		t.Errorf("expected TTL 1h, got %v", ttl)
	}

	members, err := mr.ZMembers("idx:d1")
	if err != nil {
		t.Fatalf("ZMembers: %v", err)
	}
	if len(members) != 1 || members[0] != "1000" {
		t.Errorf("expected index [1000], got %v", members)
	}
	score, err := mr.ZScore("idx:d1", "1000")
	if err != nil || score != 1000 {
		t.Errorf("expected score 1000, got %v (%v)", score, err)
	}
}

func TestStore_KeyPrefixLayout(t *testing.T) {
	s, mr := newStore(t, storagetest.NewClock(1100), "edge:")

	if err := s.Put(context.Background(), "d1", types.Record{Timestamp: 1000}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if !mr.Exists("edge:idx:d1") || !mr.Exists("edge:rec:d1:1000") {
		t.Errorf("expected prefixed keys, have %v", mr.Keys())
	}
	if mr.Exists("idx:d1") {
		t.Error("unprefixed index key written")
	}
}

func TestStore_ColonInDeviceID(t *testing.T) {
	s, mr := newStore(t, storagetest.NewClock(1100), "")
	ctx := context.Background()

	if err := s.Put(ctx, "d1:1000", types.Record{Timestamp: 1050, Fields: map[string]string{"t": "a"}}); err != nil {
		t.Fatalf("Put(d1:1000): %v", err)
	}
	if err := s.Put(ctx, "d1", types.Record{Timestamp: 1000, Fields: map[string]string{"t": "b"}}); err != nil {
		t.Fatalf("Put(d1): %v", err)
	}

	members, err := mr.ZMembers("idx:d1:1000")
	if err != nil || len(members) != 1 || members[0] != "1050" {
		t.Errorf("index of d1:1000 damaged: %v (%v)", members, err)
	}
	if got := mr.HGet("rec:d1:1000", "t"); got != "b" {
		t.Errorf("expected record of d1 at 1000, got %q", got)
	}
	if got := mr.HGet("rec:d1:1000:1050", "t"); got != "a" {
		t.Errorf("expected record of d1:1000 at 1050, got %q", got)
	}
}

func TestStore_ReadCountsSweep(t *testing.T) {
	s, _ := newStore(t, storagetest.NewClock(1100), "")
	ctx := context.Background()

	for _, ts := range []int64{1000, 1010, 1050} {
		if err := s.Put(ctx, "d1", types.Record{Timestamp: ts}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if _, err := s.RangeRead(ctx, "d1", 1040, 1100, nil); err != nil {
		t.Fatalf("RangeRead: %v", err)
	}
	if got := s.Stats().Evicted; got != 2 {
		t.Errorf("expected 2 evicted, got %d", got)
	}
}

func TestStore_EvictDeletesRecords(t *testing.T) {
	s, mr := newStore(t, storagetest.NewClock(1100), "")
	ctx := context.Background()

	for _, ts := range []int64{1000, 1050} {
		if err := s.Put(ctx, "d1", types.Record{Timestamp: ts}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if err := s.EvictExpired(ctx, "d1", 1001+3600); err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}

	if mr.Exists("rec:d1:1000") {
		t.Error("evicted record hash still present")
	}
	if !mr.Exists("rec:d1:1050") {
		t.Error("retained record hash removed")
	}
	if got := s.Stats().Evicted; got != 1 {
		t.Errorf("expected 1 evicted, got %d", got)
	}
}

func TestStore_SkipsExpiredRecord(t *testing.T) {
	s, mr := newStore(t, storagetest.NewClock(1100), "")
	ctx := context.Background()

	for _, ts := range []int64{1000, 1010} {
		if err := s.Put(ctx, "d1", types.Record{Timestamp: ts, Fields: map[string]string{"temperature": "1"}}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	// The record hash expires on its TTL while the index entry remains.
	mr.Del("rec:d1:1000")

	rows, err := s.RangeRead(ctx, "d1", 0, 2000, []string{"temperature"})
	if err != nil {
		t.Fatalf("RangeRead: %v", err)
	}
	if len(rows) != 1 || rows[0].Timestamp != 1010 {
		t.Errorf("expected only 1010, got %+v", rows)
	}

	members, _ := mr.ZMembers("idx:d1")
	if len(members) != 1 || members[0] != "1010" {
		t.Errorf("expected dangling index entry to be pruned, index %v", members)
	}
}

func TestStore_OverwriteReplacesHash(t *testing.T) {
	s, mr := newStore(t, storagetest.NewClock(1100), "")
	ctx := context.Background()

	if err := s.Put(ctx, "d1", types.Record{Timestamp: 1000, Fields: map[string]string{"a": "1", "b": "2"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "d1", types.Record{Timestamp: 1000, Fields: map[string]string{"a": "3"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if mr.HGet("rec:d1:1000", "b") != "" {
		t.Error("field from the first write survived the overwrite")
	}
	if mr.HGet("rec:d1:1000", "a") != "3" {
		t.Errorf("expected a=3, got %q", mr.HGet("rec:d1:1000", "a"))
	}
}

func TestStore_Unavailable(t *testing.T) {
	s, mr := newStore(t, storagetest.NewClock(1100), "")
	mr.Close()
	ctx := context.Background()

	err := s.Put(ctx, "d1", types.Record{Timestamp: 1000})
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Errorf("Put: expected ErrStoreUnavailable, got %v", err)
	}

	_, err = s.RangeRead(ctx, "d1", 0, 2000, []string{"temperature"})
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Errorf("RangeRead: expected ErrStoreUnavailable, got %v", err)
	}

	err = s.EvictExpired(ctx, "d1", 5000)
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Errorf("EvictExpired: expected ErrStoreUnavailable, got %v", err)
	}

	if got := s.Stats().Errors; got != 3 {
		t.Errorf("expected 3 errors counted, got %d", got)
	}
}

func TestStore_InvalidRecordNeverReachesServer(t *testing.T) {
	s, mr := newStore(t, storagetest.NewClock(1100), "")
	mr.Close()

	// Validation runs before any round trip, so a down server still yields
	// the validation error.
	err := s.Put(context.Background(), "", types.Record{Timestamp: 1000})
	if !errors.Is(err, errors.ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Redis.Addr = mr.Addr()

	s, err := redis.Open(context.Background(), cfg, storagetest.NewClock(1100).Now)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Put(context.Background(), "d1", types.Record{Timestamp: 1000}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The store owned the client, so it is closed now.
	if err := s.Put(context.Background(), "d1", types.Record{Timestamp: 1001}); err == nil {
		t.Error("expected error after Close")
	}
}

func TestDial_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.DefaultConfig().Redis
	cfg.Addr = addr
	cfg.DialTimeout = 200 * time.Millisecond

	_, err := redis.Dial(context.Background(), cfg)
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}
