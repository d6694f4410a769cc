package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState представляет состояние circuit breaker
type CircuitState int

const (
	// CircuitClosed нормальное состояние, вызовы проходят
	CircuitClosed CircuitState = iota
	// CircuitHalfOpen пробное состояние, пропускается один вызов
	CircuitHalfOpen
	// CircuitOpen состояние отказа, вызовы отклоняются сразу
	CircuitOpen
)

// String возвращает строковое представление состояния
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen возвращается, когда вызов отклонен открытым circuit breaker
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOptions настройки circuit breaker
type BreakerOptions struct {
	Name             string
	FailureThreshold int
	ResetTimeout     time.Duration
	// IgnoredErrors не считаются отказом (бизнес-ошибки, "не найдено")
	IgnoredErrors []error
	// OnStateChange вызывается после каждого перехода, например для метрик
	OnStateChange func(name string, state CircuitState)
	// Now позволяет подменить часы в тестах
	Now func() time.Time
}

// CircuitBreaker защищает внешние зависимости (Telegram API, хранилище) от лавины запросов
type CircuitBreaker struct {
	opts BreakerOptions

	mu            sync.Mutex
	state         CircuitState
	failures      int
	openedAt      time.Time
	trialInFlight bool
	logger        *zap.Logger
}

// DefaultBreakerOptions возвращает рекомендуемые настройки
func DefaultBreakerOptions(name string) BreakerOptions {
	return BreakerOptions{
		Name:             name,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// NewCircuitBreaker создает новый экземпляр CircuitBreaker
func NewCircuitBreaker(opts BreakerOptions, logger *zap.Logger) *CircuitBreaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CircuitBreaker{opts: opts, state: CircuitClosed, logger: logger}
}

// Execute выполняет функцию с учетом состояния circuit breaker
func (cb *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	trial, ok := cb.acquire()
	if !ok {
		cb.logger.Warn("Circuit breaker preventing operation execution",
			zap.String("breaker", cb.opts.Name),
			zap.String("operation", operation))
		return ErrCircuitOpen
	}

	err := fn(ctx)
	cb.record(operation, trial, err)
	return err
}

// State возвращает текущее состояние
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// acquire решает, можно ли выполнить вызов; trial=true для пробного вызова
func (cb *CircuitBreaker) acquire() (trial bool, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, true
	case CircuitOpen:
		if cb.opts.Now().Sub(cb.openedAt) < cb.opts.ResetTimeout {
			return false, false
		}
		cb.transition(CircuitHalfOpen, "reset timeout elapsed")
		cb.trialInFlight = true
		return true, true
	case CircuitHalfOpen:
		if cb.trialInFlight {
			return false, false
		}
		cb.trialInFlight = true
		return true, true
	}
	return false, false
}

// record учитывает результат вызова
func (cb *CircuitBreaker) record(operation string, trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
	}

	if err != nil && !cb.isIgnored(err) {
		switch cb.state {
		case CircuitClosed:
			cb.failures++
			if cb.failures >= cb.opts.FailureThreshold {
				cb.openedAt = cb.opts.Now()
				cb.transition(CircuitOpen, operation)
			}
		case CircuitHalfOpen:
			cb.openedAt = cb.opts.Now()
			cb.transition(CircuitOpen, operation)
		}
		return
	}

	if err != nil {
		cb.logger.Debug("Игнорируем ошибку для circuit breaker",
			zap.String("breaker", cb.opts.Name),
			zap.String("operation", operation),
			zap.Error(err))
	}

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.failures = 0
		cb.transition(CircuitClosed, operation)
	}
}

// isIgnored проверяет, является ли ошибка игнорируемой
func (cb *CircuitBreaker) isIgnored(err error) bool {
	for _, ignored := range cb.opts.IgnoredErrors {
		if errors.Is(err, ignored) {
			return true
		}
	}
	return false
}

// transition меняет состояние; вызывается под мьютексом
func (cb *CircuitBreaker) transition(state CircuitState, reason string) {
	cb.state = state
	cb.logger.Info("Circuit breaker state changed",
		zap.String("breaker", cb.opts.Name),
		zap.String("state", state.String()),
		zap.String("reason", reason),
		zap.Int("failures", cb.failures))
	if cb.opts.OnStateChange != nil {
		cb.opts.OnStateChange(cb.opts.Name, state)
	}
}
