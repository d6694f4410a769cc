package database

import (
	"context"
	"errors"
	"time"

	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/resilience"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthChecker предоставляет функции для проверки состояния хранилищ.
// Любая из зависимостей может отсутствовать (режим хранилища в памяти).
type HealthChecker struct {
	db           *gorm.DB
	redisClient  redis.UniversalClient
	logger       *zap.Logger
	pgCircuit    *resilience.CircuitBreaker
	redisCircuit *resilience.CircuitBreaker
}

// NewHealthChecker создает новый экземпляр проверки состояния
func NewHealthChecker(db *gorm.DB, redisClient redis.UniversalClient, logger *zap.Logger, onStateChange func(string, resilience.CircuitState)) *HealthChecker {
	pgOpts := resilience.DefaultBreakerOptions("postgres")
	pgOpts.IgnoredErrors = apperrors.IgnoredErrors
	pgOpts.OnStateChange = onStateChange

	redisOpts := resilience.DefaultBreakerOptions("redis")
	redisOpts.IgnoredErrors = apperrors.IgnoredErrors
	redisOpts.OnStateChange = onStateChange

	return &HealthChecker{
		db:           db,
		redisClient:  redisClient,
		logger:       logger,
		pgCircuit:    resilience.NewCircuitBreaker(pgOpts, logger),
		redisCircuit: resilience.NewCircuitBreaker(redisOpts, logger),
	}
}

// HasDatabase сообщает, подключен ли PostgreSQL
func (c *HealthChecker) HasDatabase() bool {
	return c.db != nil
}

// HasRedis сообщает, подключен ли Redis
func (c *HealthChecker) HasRedis() bool {
	return c.redisClient != nil
}

// IsDatabaseHealthy проверяет здоровье PostgreSQL
func (c *HealthChecker) IsDatabaseHealthy(ctx context.Context) bool {
	if c.db == nil {
		return true
	}

	var result int
	err := c.pgCircuit.Execute(ctx, "postgres_health_check", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		sqlDB, err := c.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	})

	if err != nil {
		c.logger.Warn("PostgreSQL health check failed", zap.Error(err))
	}
	return err == nil && result == 1
}

// IsRedisHealthy проверяет здоровье Redis
func (c *HealthChecker) IsRedisHealthy(ctx context.Context) bool {
	if c.redisClient == nil {
		return true
	}

	err := c.redisCircuit.Execute(ctx, "redis_health_check", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return c.redisClient.Ping(ctx).Err()
	})

	if err != nil {
		c.logger.Warn("Redis health check failed", zap.Error(err))
	}
	return err == nil
}

// WithDatabaseResilience выполняет операцию в базе данных через circuit breaker
func (c *HealthChecker) WithDatabaseResilience(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := c.pgCircuit.Execute(ctx, operation, fn)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.logger.Debug("Запись не найдена, это не ошибка для circuit breaker",
			zap.String("operation", operation))
	}
	return err
}

// WithRedisResilience выполняет операцию в Redis через circuit breaker
func (c *HealthChecker) WithRedisResilience(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := c.redisCircuit.Execute(ctx, operation, fn)
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("Ключ не найден в Redis, это не ошибка для circuit breaker",
			zap.String("operation", operation))
	}
	return err
}

// SafeRedisOperation выполняет операцию в Redis с таймаутом по умолчанию и логированием ошибок
func SafeRedisOperation(ctx context.Context, logger *zap.Logger, operation string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := fn(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Error("Redis operation failed",
			zap.String("operation", operation),
			zap.Error(err))

		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("Redis operation timed out", zap.String("operation", operation))
		} else if errors.Is(err, redis.ErrClosed) {
			logger.Error("Redis connection closed", zap.String("operation", operation))
		}
	}
	return err
}
