package redis

import (
	"context"
	"errors"
	"time"

	"KirveHubBot/pkg/database"
	"KirveHubBot/pkg/server"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix             = "kirvehub:"
	defaultCommandTimeout = time.Second
)

// executor выполняет команды Redis через circuit breaker с таймаутом и метриками
type executor struct {
	client  redis.UniversalClient
	health  *database.HealthChecker
	logger  *zap.Logger
	timeout time.Duration
}

func newExecutor(client redis.UniversalClient, health *database.HealthChecker, logger *zap.Logger, timeout time.Duration) executor {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	if health == nil {
		health = database.NewHealthChecker(nil, client, logger, server.RecordCircuitBreakerStateChange)
	}
	return executor{client: client, health: health, logger: logger, timeout: timeout}
}

func (e executor) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := e.health.WithRedisResilience(ctx, operation, func(ctx context.Context) error {
		return database.SafeRedisOperation(ctx, e.logger, operation, e.timeout, fn)
	})
	server.RecordCacheOperation(operation, ignoreMiss(err))
	return err
}

func ignoreMiss(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
