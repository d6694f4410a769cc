package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type fakeSource struct {
	updates chan tgbotapi.Update
	config  tgbotapi.UpdateConfig
	stopped bool
}

func (s *fakeSource) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	s.config = config
	return s.updates
}

func (s *fakeSource) StopReceivingUpdates() {
	s.stopped = true
}

type countingHandler struct {
	mu      sync.Mutex
	handled []int
	panicOn int
}

func (h *countingHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.UpdateID == h.panicOn {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, update.UpdateID)
	return nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestServerDispatchesUniqueUpdates(t *testing.T) {
	source := &fakeSource{updates: make(chan tgbotapi.Update, 8)}
	handler := &countingHandler{panicOn: 3}
	srv := NewServer(source, handler, ServerOptions{PollTimeout: 30 * time.Second, Workers: 2}, zap.NewNop())

	for _, id := range []int{1, 2, 2, 3, 4, 1} {
		source.updates <- tgbotapi.Update{UpdateID: id}
	}
	close(source.updates)

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// 1, 2 и 4 обработаны; 3 упал с паникой; повторы пропущены
	if got := handler.count(); got != 3 {
		t.Errorf("expected 3 handled updates, got %d", got)
	}
	if !source.stopped {
		t.Error("expected polling to be stopped")
	}
	if source.config.Timeout != 30 {
		t.Errorf("expected poll timeout 30, got %d", source.config.Timeout)
	}
	if len(source.config.AllowedUpdates) != 2 {
		t.Errorf("unexpected allowed updates: %v", source.config.AllowedUpdates)
	}
}

func TestServerStopsOnContextCancel(t *testing.T) {
	source := &fakeSource{updates: make(chan tgbotapi.Update)}
	srv := NewServer(source, &countingHandler{}, ServerOptions{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFirstSeenForgetsOldUpdates(t *testing.T) {
	srv := NewServer(&fakeSource{}, &countingHandler{}, ServerOptions{}, zap.NewNop())

	for id := 0; id < dedupWindow+1; id++ {
		if !srv.firstSeen(id) {
			t.Fatalf("update %d reported as duplicate", id)
		}
	}
	if !srv.firstSeen(0) {
		t.Error("expected the oldest update to be evicted")
	}
	if srv.firstSeen(dedupWindow) {
		t.Error("expected a recent update to be remembered")
	}
}
