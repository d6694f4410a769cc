package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func fastRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}
}

func TestRetryMechanism_BasicRetry(t *testing.T) {
	callCount := 0
	testErr := errors.New("timeout")

	err := WithRetry(context.Background(), zap.NewNop(), "get_user", fastRetryOptions(), func(ctx context.Context) error {
		callCount++
		if callCount <= 2 {
			return testErr
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success after retries, got error: %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryMechanism_ExhaustsAttempts(t *testing.T) {
	callCount := 0
	testErr := errors.New("still down")

	err := WithRetry(context.Background(), zap.NewNop(), "get_user", fastRetryOptions(), func(ctx context.Context) error {
		callCount++
		return testErr
	})

	if !errors.Is(err, testErr) {
		t.Errorf("Expected last error, got %v", err)
	}
	if callCount != 4 {
		t.Errorf("Expected 4 calls (1 + 3 retries), got %d", callCount)
	}
}

func TestRetryMechanism_NonRetryable(t *testing.T) {
	permanent := errors.New("invalid input")
	options := fastRetryOptions()
	options.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	callCount := 0
	err := WithRetry(context.Background(), zap.NewNop(), "parse", options, func(ctx context.Context) error {
		callCount++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected exactly 1 call, got %d", callCount)
	}
}

func TestRetryMechanism_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	options := fastRetryOptions()
	options.InitialBackoff = time.Second
	options.MaxBackoff = time.Second

	callCount := 0
	err := WithRetry(ctx, zap.NewNop(), "slow", options, func(ctx context.Context) error {
		callCount++
		cancel()
		return errors.New("fail")
	})

	if err == nil {
		t.Error("Expected error after cancellation")
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestCalculateBackoff_Capped(t *testing.T) {
	options := RetryOptions{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, BackoffFactor: 2}
	if got := calculateBackoff(0, options); got != 100*time.Millisecond {
		t.Errorf("Expected 100ms, got %v", got)
	}
	if got := calculateBackoff(5, options); got != 300*time.Millisecond {
		t.Errorf("Expected cap 300ms, got %v", got)
	}
}
