package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)
	manager := NewManager(store, WithTTL(time.Minute), WithContextKey("acme"))

	token, _ := manager.Generate()
	if err := manager.Store(ctx, "sess", token); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	key := "oauth2_state:acme:sess"
	if !mr.Exists(key) {
		t.Fatalf("expected key %s in redis", key)
	}
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Errorf("TTL = %v, want %v", ttl, time.Minute)
	}

	if !manager.Validate(ctx, "sess", token) {
		t.Fatal("Validate() rejected stored token")
	}
	if mr.Exists(key) {
		t.Error("Validate() did not consume the slot")
	}
}

func TestRedisStore_Expired(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)
	manager := NewManager(store, WithTTL(time.Minute))

	_ = manager.Store(ctx, "sess", "tok")
	mr.FastForward(2 * time.Minute)

	if manager.Validate(ctx, "sess", "tok") {
		t.Error("Validate() accepted expired token")
	}
}

func TestRedisStore_Consume(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)
	_ = store.Set(ctx, "slot", "current", time.Minute)

	ok, err := store.Consume(ctx, "slot", "previous")
	if err != nil || ok {
		t.Fatalf("Consume(stale) = %v, %v; want false, nil", ok, err)
	}
	if !mr.Exists("slot") {
		t.Fatal("stale value removed the slot")
	}

	ok, err = store.Consume(ctx, "slot", "current")
	if err != nil || !ok {
		t.Fatalf("Consume(current) = %v, %v; want true, nil", ok, err)
	}
	if mr.Exists("slot") {
		t.Error("slot still present after Consume")
	}

	if ok, _ := store.Consume(ctx, "slot", "current"); ok {
		t.Error("second Consume() = true, want false")
	}
}

func TestRedisStore_ConsumeUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)
	manager := NewManager(store)
	_ = manager.Store(ctx, "sess", "tok")

	mr.Close()
	if manager.Validate(ctx, "sess", "tok") {
		t.Error("Validate() = true with redis down, want false")
	}
}

func TestRedisStore_NotFound(t *testing.T) {
	_, store := newTestRedis(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want %v", err, ErrNotFound)
	}
}

func TestRedisStore_CheckHealth(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)

	if err := store.CheckHealth(ctx); err != nil {
		t.Errorf("CheckHealth() error = %v", err)
	}

	mr.Close()
	if err := store.CheckHealth(ctx); err == nil {
		t.Error("CheckHealth() expected error after shutdown")
	}
}
