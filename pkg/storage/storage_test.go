package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := kv.Set(ctx, "k", `[{"id":"1"}]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != `[{"id":"1"}]` {
		t.Fatalf("unexpected value %q", v)
	}
	if err := kv.Set(ctx, "k", "overwritten"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _ := kv.Get(ctx, "k"); v != "overwritten" {
		t.Fatalf("expected overwritten value, got %q", v)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting twice is fine
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestNamespaceIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	a := Namespace(mem, "session-a")
	b := Namespace(mem, "session-b")

	exerciseKV(t, a)

	if err := a.Set(ctx, "cart", "A"); err != nil {
		t.Fatal(err)
	}
	if err := b.Set(ctx, "cart", "B"); err != nil {
		t.Fatal(err)
	}
	if v, _ := a.Get(ctx, "cart"); v != "A" {
		t.Fatalf("namespace a leaked: %q", v)
	}
	if v, _ := mem.Get(ctx, "session-b:cart"); v != "B" {
		t.Fatalf("expected prefixed raw key, got %q", v)
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	kv := NewRedis(rdb, RedisOptions{Timeout: time.Second}, quietLogger())
	exerciseKV(t, kv)
}

func TestRedisTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	kv := NewRedis(rdb, RedisOptions{TTL: time.Minute}, quietLogger())
	if err := kv.Set(context.Background(), "cart", "[]"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("cart"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := kv.Get(context.Background(), "cart"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key to expire, got %v", err)
	}
}

func TestRedisBreakerOpensWhenServerIsGone(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	kv := NewRedis(rdb, RedisOptions{Timeout: 200 * time.Millisecond}, quietLogger())
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := kv.Set(ctx, "k", "v"); err == nil {
			t.Fatalf("expected error with redis down")
		}
	}
	if err := kv.Set(ctx, "k", "v"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy once breaker trips, got %v", err)
	}
}
