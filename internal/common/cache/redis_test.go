package cache_test

import (
	"context"
	"testing"
	"time"

	"solcheck/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
)

func newCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisCache error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheBasicOps(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	if v, err := c.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("Get(missing) = %q, %v", v, err)
	}

	ok, err := c.SetNX(ctx, "k", 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX = %v, %v", ok, err)
	}
	if ok, _ := c.SetNX(ctx, "k", 1, time.Minute); ok {
		t.Fatal("second SetNX must not set")
	}
	n, err := c.Incr(ctx, "k")
	if err != nil || n != 2 {
		t.Fatalf("Incr = %d, %v", n, err)
	}
	ttl, err := c.TTL(ctx, "k")
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("TTL = %v, %v", ttl, err)
	}

	mr.FastForward(time.Minute)
	if v, _ := c.Get(ctx, "k"); v != "" {
		t.Fatalf("key must expire, got %q", v)
	}

	if err := c.Set(ctx, "a", "b", 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Del(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Get(ctx, "a"); v != "" {
		t.Fatalf("Del did not remove key, got %q", v)
	}
}

func TestNewRedisCacheValidation(t *testing.T) {
	if _, err := cache.NewRedisCacheWithConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := cache.NewRedisCache(""); err == nil {
		t.Fatal("expected error for empty addr")
	}
}
