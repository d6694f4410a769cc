package postgres

import (
	"context"
	"errors"
	"time"

	"KirveHubBot/config"
	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/database"
	"KirveHubBot/pkg/resilience"
	"KirveHubBot/pkg/server"

	"go.uber.org/zap"
)

// ResilientStore добавляет к хранилищу таймаут транзакции, circuit breaker,
// метрики и повторы для операций только на чтение
type ResilientStore struct {
	inner         repository.Store
	healthChecker *database.HealthChecker
	logger        *zap.Logger
	txTimeout     time.Duration
	readRetries   int
}

// NewResilientStore создает новый экземпляр отказоустойчивого хранилища
func NewResilientStore(inner repository.Store, healthChecker *database.HealthChecker, cfg config.ResilienceConfig, logger *zap.Logger) *ResilientStore {
	return &ResilientStore{
		inner:         inner,
		healthChecker: healthChecker,
		logger:        logger,
		txTimeout:     cfg.Store.TxTimeout,
		readRetries:   cfg.Store.ReadRetries,
	}
}

var _ repository.Store = (*ResilientStore)(nil)

// InTx выполняет изменяющую транзакцию без повторов: по таймауту она откатывается,
// а вызывающий получает transient_store_error
func (r *ResilientStore) InTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	err := r.healthChecker.WithDatabaseResilience(ctx, operation, func(ctx context.Context) error {
		return r.inner.InTx(ctx, operation, fn)
	})
	err = r.translate(err, operation)

	server.RecordDBOperation(operation, time.Since(startTime), err)
	return err
}

// ReadTx выполняет транзакцию только для чтения с повторами при временных сбоях
func (r *ResilientStore) ReadTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	startTime := time.Now()

	retryOptions := resilience.DefaultRetryOptions()
	retryOptions.MaxRetries = r.readRetries
	retryOptions.Retryable = apperrors.IsTransient

	err := resilience.WithRetry(ctx, r.logger, operation, retryOptions, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.txTimeout)
		defer cancel()

		err := r.healthChecker.WithDatabaseResilience(ctx, operation, func(ctx context.Context) error {
			return r.inner.ReadTx(ctx, operation, fn)
		})
		return r.translate(err, operation)
	})

	server.RecordDBOperation(operation, time.Since(startTime), err)
	return err
}

func (r *ResilientStore) translate(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperrors.Wrap(apperrors.KindTransientStore, err, "%s: store unavailable", operation)
	}
	if errors.Is(err, context.DeadlineExceeded) && !apperrors.IsTransient(err) {
		return apperrors.Wrap(apperrors.KindTransientStore, err, "%s: timeout", operation)
	}
	return err
}
