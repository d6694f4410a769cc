package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"
	"KirveHubBot/pkg/database"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InputStateStore состояния диалогов модераторов в Redis, JSON с единым TTL
type InputStateStore struct {
	exec executor
	ttl  time.Duration
	now  func() time.Time
}

// NewInputStateStore создает новый экземпляр InputStateStore
func NewInputStateStore(client redis.UniversalClient, health *database.HealthChecker, logger *zap.Logger, ttl, timeout time.Duration) *InputStateStore {
	return &InputStateStore{
		exec: newExecutor(client, health, logger, timeout),
		ttl:  ttl,
		now:  time.Now,
	}
}

var _ repository.InputStateStore = (*InputStateStore)(nil)

func stateKey(userID int64) string {
	return fmt.Sprintf("%sinput:%d", keyPrefix, userID)
}

// Get возвращает состояние пользователя или nil, если его нет
func (s *InputStateStore) Get(ctx context.Context, userID int64) (*repository.InputState, error) {
	var data []byte
	err := s.exec.run(ctx, "input_state_get", func(ctx context.Context) error {
		var err error
		data, err = s.exec.client.Get(ctx, stateKey(userID)).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.FromStore(err, "input_state_get")
	}

	var state repository.InputState
	if err := json.Unmarshal(data, &state); err != nil {
		s.exec.logger.Warn("Dropping corrupted input state", zap.Int64("user_id", userID), zap.Error(err))
		_ = s.Clear(ctx, userID)
		return nil, nil
	}
	return &state, nil
}

// Set сохраняет состояние и продлевает TTL
func (s *InputStateStore) Set(ctx context.Context, userID int64, state *repository.InputState) error {
	stored := *state
	stored.UpdatedAt = s.now()
	data, err := json.Marshal(stored)
	if err != nil {
		return apperrors.Internal(err, "encode input state")
	}

	err = s.exec.run(ctx, "input_state_set", func(ctx context.Context) error {
		return s.exec.client.Set(ctx, stateKey(userID), data, s.ttl).Err()
	})
	return apperrors.FromStore(err, "input_state_set")
}

// Clear удаляет состояние
func (s *InputStateStore) Clear(ctx context.Context, userID int64) error {
	err := s.exec.run(ctx, "input_state_clear", func(ctx context.Context) error {
		return s.exec.client.Del(ctx, stateKey(userID)).Err()
	})
	return apperrors.FromStore(err, "input_state_clear")
}
