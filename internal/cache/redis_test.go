package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+s.Addr(), "assist:", time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url", "x:", time.Minute); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestSetAndGet(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k1", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !s.Exists("assist:k1") {
		t.Fatal("expected prefixed key in redis")
	}
	if ttl := s.TTL("assist:k1"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}

	got, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
}

func TestGetMissAndExpiry(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "absent"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	if err := c.Set(ctx, "k2", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.FastForward(2 * time.Minute)
	if _, err := c.Get(ctx, "k2"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k3", "v")
	if err := c.Delete(ctx, "k3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "k3"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after delete, got %v", err)
	}
}

func TestPingAfterServerClose(t *testing.T) {
	c, s := setupTestRedis(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	s.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail after server close")
	}
}
