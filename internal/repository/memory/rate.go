package memory

import (
	"context"
	"sync"
	"time"

	"KirveHubBot/internal/repository"
)

// RateRegistry реестр кулдаунов в памяти процесса. Используется без Redis;
// просроченные ключи удаляет Cleanup.
type RateRegistry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewRateRegistry создает пустой реестр
func NewRateRegistry(now func() time.Time) *RateRegistry {
	if now == nil {
		now = time.Now
	}
	return &RateRegistry{entries: make(map[string]time.Time), now: now}
}

var _ repository.RateRegistry = (*RateRegistry)(nil)

// Acquire занимает ключ, если он свободен
func (r *RateRegistry) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if expires, ok := r.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	r.entries[key] = now.Add(ttl)
	return true, nil
}

// Set занимает ключ безусловно
func (r *RateRegistry) Set(ctx context.Context, key string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = r.now().Add(ttl)
	return nil
}

// Active сообщает, занят ли ключ
func (r *RateRegistry) Active(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expires, ok := r.entries[key]
	return ok && r.now().Before(expires), nil
}

// Cleanup удаляет просроченные ключи и возвращает их число
func (r *RateRegistry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, expires := range r.entries {
		if !now.Before(expires) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Len количество ключей, включая просроченные
func (r *RateRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
