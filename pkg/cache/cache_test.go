package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type record struct {
	Symbol string    `json:"symbol"`
	Score  float64   `json:"score"`
	At     time.Time `json:"at"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	in := record{Symbol: "BTCUSDT", Score: 1.25, At: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	if err := mc.Set(ctx, "k", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var out record
	if err := mc.Get(ctx, "k", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Symbol != in.Symbol || out.Score != in.Score || !out.At.Equal(in.At) {
		t.Fatalf("round trip: got %+v, want %+v", out, in)
	}

	var s string
	_ = mc.Set(ctx, "s", "plain", 0)
	if err := mc.Get(ctx, "s", &s); err != nil || s != "plain" {
		t.Fatalf("string get: %q, %v", s, err)
	}
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	var out record
	if err := mc.Get(ctx, "absent", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("got %v, want ErrCacheMiss", err)
	}
	_ = mc.Set(ctx, "short", record{Symbol: "X"}, time.Nanosecond)
	time.Sleep(2 * time.Millisecond)
	if err := mc.Get(ctx, "short", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired entry: got %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", 1, 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", 2, 0)
	time.Sleep(time.Millisecond)
	var v int
	_ = mc.Get(ctx, "a", &v) // touch a
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", 3, 0)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("a and c should remain")
	}
	if mc.Len() != 2 {
		t.Fatalf("len: got %d, want 2", mc.Len())
	}
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "lock", time.Minute)
	if !ok {
		t.Fatalf("first lock should succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lock", time.Minute); ok {
		t.Fatalf("second lock should fail while held")
	}
	if err := mc.Unlock(ctx, "lock"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := mc.Unlock(ctx, "lock"); !errors.Is(err, ErrLockNotHeld) {
		t.Fatalf("second unlock: got %v, want ErrLockNotHeld", err)
	}
	if ok, _ := mc.TryLock(ctx, "lock", time.Minute); !ok {
		t.Fatalf("lock after unlock should succeed")
	}

	_, _ = mc.TryLock(ctx, "short", time.Nanosecond)
	time.Sleep(2 * time.Millisecond)
	if err := mc.Unlock(ctx, "short"); !errors.Is(err, ErrLockNotHeld) {
		t.Fatalf("expired lock: got %v, want ErrLockNotHeld", err)
	}
}

func TestLayeredCacheFillsL1FromRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()

	_ = remote.Set(ctx, "w", record{Symbol: "ETHUSDT", Score: 2}, 0)
	var out record
	if err := lc.Get(ctx, "w", &out); err != nil || out.Symbol != "ETHUSDT" {
		t.Fatalf("layered get: %+v, %v", out, err)
	}

	// served from L1 once the remote copy is gone
	_ = remote.Delete(ctx, "w")
	out = record{}
	if err := lc.Get(ctx, "w", &out); err != nil || out.Score != 2 {
		t.Fatalf("l1 get: %+v, %v", out, err)
	}

	_ = lc.Delete(ctx, "w")
	if err := lc.Get(ctx, "w", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("after delete: got %v, want ErrCacheMiss", err)
	}
}
