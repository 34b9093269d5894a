package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheRoundTripAndExpiry(t *testing.T) {
	c, err := NewMemoryCache(WithMemoryMaxSize(2))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "a", map[string]float64{"price": 9.5}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got map[string]float64
	if err := c.Get(ctx, "a", &got); err != nil || got["price"] != 9.5 {
		t.Fatalf("get: %v %v", got, err)
	}

	_ = c.Set(ctx, "short", 1, time.Nanosecond)
	time.Sleep(time.Millisecond)
	var n int
	if err := c.Get(ctx, "short", &n); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}

	_ = c.Set(ctx, "b", 2, 0)
	_ = c.Set(ctx, "c", 3, 0)
	if c.Len() > 2 {
		t.Fatalf("expected lru bound 2, got %d", c.Len())
	}
}

func TestMemoryCacheLock(t *testing.T) {
	c, _ := NewMemoryCache()
	ctx := context.Background()
	ok, _ := c.TryLock(ctx, "k", time.Minute)
	if !ok {
		t.Fatalf("expected first lock")
	}
	if ok, _ := c.TryLock(ctx, "k", time.Minute); ok {
		t.Fatalf("expected second lock to fail")
	}
	_ = c.Unlock(ctx, "k")
	if ok, _ := c.TryLock(ctx, "k", time.Minute); !ok {
		t.Fatalf("expected lock after unlock")
	}
}

func TestGetOrLoad(t *testing.T) {
	c, _ := NewMemoryCache()
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(ctx, c, Key("report", "all"), time.Minute, load)
		if err != nil || v != 42 {
			t.Fatalf("unexpected %v %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected single load, got %d", calls)
	}
}
