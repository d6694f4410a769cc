package memory

import (
	"context"
	"sync"
	"time"

	"KirveHubBot/internal/repository"
)

// InputStateStore состояния диалогов в памяти процесса
type InputStateStore struct {
	mu     sync.Mutex
	states map[int64]repository.InputState
	ttl    time.Duration
	now    func() time.Time
}

// NewInputStateStore создает хранилище с единым TTL
func NewInputStateStore(ttl time.Duration, now func() time.Time) *InputStateStore {
	if now == nil {
		now = time.Now
	}
	return &InputStateStore{states: make(map[int64]repository.InputState), ttl: ttl, now: now}
}

var _ repository.InputStateStore = (*InputStateStore)(nil)

func (s *InputStateStore) Get(ctx context.Context, userID int64) (*repository.InputState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	if s.now().Sub(state.UpdatedAt) >= s.ttl {
		delete(s.states, userID)
		return nil, nil
	}
	return &state, nil
}

func (s *InputStateStore) Set(ctx context.Context, userID int64, state *repository.InputState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *state
	stored.UpdatedAt = s.now()
	if state.Data != nil {
		stored.Data = make(map[string]string, len(state.Data))
		for k, v := range state.Data {
			stored.Data[k] = v
		}
	}
	s.states[userID] = stored
	return nil
}

func (s *InputStateStore) Clear(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, userID)
	return nil
}

// Cleanup удаляет просроченные состояния
func (s *InputStateStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for userID, state := range s.states {
		if now.Sub(state.UpdatedAt) >= s.ttl {
			delete(s.states, userID)
			removed++
		}
	}
	return removed
}
