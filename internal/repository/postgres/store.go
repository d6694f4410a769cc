package postgres

import (
	"context"
	"database/sql"

	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store реализация repository.Store поверх gorm и PostgreSQL
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore создает новый экземпляр Store
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

var _ repository.Store = (*Store)(nil)

// InTx выполняет fn в транзакции; любая ошибка откатывает транзакцию
func (s *Store) InTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{db: gtx})
	})
	if err != nil {
		s.logger.Debug("Transaction rolled back",
			zap.String("operation", operation),
			zap.Error(err))
	}
	return apperrors.FromStore(err, operation)
}

// ReadTx выполняет fn в транзакции только для чтения
func (s *Store) ReadTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{db: gtx})
	}, &sql.TxOptions{ReadOnly: true})
	return apperrors.FromStore(err, operation)
}
