package redis

import (
	"context"
	"testing"
	"time"

	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// setupTestRedis создает мини-Redis сервер для тестирования
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create mini redis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRateRegistry_AcquireAndExpire(t *testing.T) {
	mr, client := setupTestRedis(t)
	registry := NewRateRegistry(client, nil, zap.NewNop(), time.Second)
	ctx := context.Background()

	ok, err := registry.Acquire(ctx, "reply:42", 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected first acquire to succeed, got %v / %v", ok, err)
	}
	ok, _ = registry.Acquire(ctx, "reply:42", 5*time.Minute)
	if ok {
		t.Error("Expected second acquire to fail while key is held")
	}
	if ttl := mr.TTL("kirvehub:rate:reply:42"); ttl != 5*time.Minute {
		t.Errorf("Expected ttl 5m, got %v", ttl)
	}

	mr.FastForward(5*time.Minute + time.Second)
	ok, _ = registry.Acquire(ctx, "reply:42", 5*time.Minute)
	if !ok {
		t.Error("Expected acquire after expiry")
	}
}

func TestRateRegistry_SetAndActive(t *testing.T) {
	mr, client := setupTestRedis(t)
	registry := NewRateRegistry(client, nil, zap.NewNop(), time.Second)
	ctx := context.Background()

	if active, _ := registry.Active(ctx, "recruit:user:1"); active {
		t.Error("Expected unknown key to be inactive")
	}
	if err := registry.Set(ctx, "recruit:user:1", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if active, _ := registry.Active(ctx, "recruit:user:1"); !active {
		t.Error("Expected key to be active after Set")
	}

	mr.FastForward(2 * time.Minute)
	if active, _ := registry.Active(ctx, "recruit:user:1"); active {
		t.Error("Expected key to expire")
	}
}

func TestRateRegistry_FallsBackWhenRedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	registry := NewRateRegistry(client, nil, zap.NewNop(), 100*time.Millisecond)
	ctx := context.Background()

	mr.Close()

	ok, err := registry.Acquire(ctx, "flood:7", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected fallback acquire to succeed, got %v / %v", ok, err)
	}
	ok, err = registry.Acquire(ctx, "flood:7", time.Minute)
	if err != nil || ok {
		t.Errorf("Expected fallback to keep the cooldown, got %v / %v", ok, err)
	}
}

func TestInputStateStore_RoundTrip(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewInputStateStore(client, nil, zap.NewNop(), 10*time.Minute, time.Second)
	ctx := context.Background()

	state, err := store.Get(ctx, 5)
	if err != nil || state != nil {
		t.Fatalf("Expected no state, got %v / %v", state, err)
	}

	err = store.Set(ctx, 5, &repository.InputState{Kind: "product_create", Step: 2, Data: map[string]string{"name": "Steam"}})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	state, err = store.Get(ctx, 5)
	if err != nil || state == nil {
		t.Fatalf("Expected stored state, got %v / %v", state, err)
	}
	if state.Kind != "product_create" || state.Step != 2 || state.Data["name"] != "Steam" || state.UpdatedAt.IsZero() {
		t.Errorf("Unexpected state %+v", state)
	}

	mr.FastForward(11 * time.Minute)
	if state, _ := store.Get(ctx, 5); state != nil {
		t.Error("Expected state to expire with TTL")
	}

	_ = store.Set(ctx, 6, &repository.InputState{Kind: "broadcast"})
	if err := store.Clear(ctx, 6); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if state, _ := store.Get(ctx, 6); state != nil {
		t.Error("Expected state cleared")
	}
}

func TestInputStateStore_CorruptedAndUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewInputStateStore(client, nil, zap.NewNop(), time.Minute, 100*time.Millisecond)
	ctx := context.Background()

	if err := mr.Set("kirvehub:input:9", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	state, err := store.Get(ctx, 9)
	if err != nil || state != nil {
		t.Errorf("Expected corrupted state dropped, got %v / %v", state, err)
	}
	if mr.Exists("kirvehub:input:9") {
		t.Error("Expected corrupted key removed")
	}

	mr.Close()
	if _, err := store.Get(ctx, 9); !apperrors.IsTransient(err) && !apperrors.Is(err, apperrors.KindInternal) {
		t.Errorf("Expected store error when Redis is down, got %v", err)
	}
}
