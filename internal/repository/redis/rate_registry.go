package redis

import (
	"context"
	"time"

	"KirveHubBot/internal/repository"
	"KirveHubBot/internal/repository/memory"
	"KirveHubBot/pkg/database"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateRegistry реестр кулдаунов в Redis. Ключ занимается командой SET NX PX,
// истечение выполняет сам Redis. При недоступности Redis реестр переходит
// на память процесса, чтобы кулдауны продолжали работать.
type RateRegistry struct {
	exec     executor
	fallback *memory.RateRegistry
}

// NewRateRegistry создает новый экземпляр RateRegistry
func NewRateRegistry(client redis.UniversalClient, health *database.HealthChecker, logger *zap.Logger, timeout time.Duration) *RateRegistry {
	return &RateRegistry{
		exec:     newExecutor(client, health, logger, timeout),
		fallback: memory.NewRateRegistry(nil),
	}
}

var _ repository.RateRegistry = (*RateRegistry)(nil)

func rateKey(key string) string {
	return keyPrefix + "rate:" + key
}

// Acquire занимает ключ на ttl, если он свободен
func (r *RateRegistry) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var acquired bool
	err := r.exec.run(ctx, "rate_acquire", func(ctx context.Context) error {
		var err error
		acquired, err = r.exec.client.SetNX(ctx, rateKey(key), 1, ttl).Result()
		return err
	})
	if err != nil {
		r.exec.logger.Warn("Redis unavailable, using in-process cooldowns", zap.String("key", key), zap.Error(err))
		return r.fallback.Acquire(ctx, key, ttl)
	}
	return acquired, nil
}

// Set занимает ключ безусловно
func (r *RateRegistry) Set(ctx context.Context, key string, ttl time.Duration) error {
	err := r.exec.run(ctx, "rate_set", func(ctx context.Context) error {
		return r.exec.client.Set(ctx, rateKey(key), 1, ttl).Err()
	})
	if err != nil {
		r.exec.logger.Warn("Redis unavailable, using in-process cooldowns", zap.String("key", key), zap.Error(err))
		return r.fallback.Set(ctx, key, ttl)
	}
	return nil
}

// Active сообщает, занят ли ключ
func (r *RateRegistry) Active(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.exec.run(ctx, "rate_active", func(ctx context.Context) error {
		var err error
		n, err = r.exec.client.Exists(ctx, rateKey(key)).Result()
		return err
	})
	if err != nil {
		return r.fallback.Active(ctx, key)
	}
	return n > 0, nil
}

// Cleanup удаляет просроченные ключи резервного реестра
func (r *RateRegistry) Cleanup() int {
	return r.fallback.Cleanup()
}
