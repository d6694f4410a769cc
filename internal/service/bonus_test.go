package service

import (
	"testing"
	"time"

	"KirveHubBot/internal/repository"
	"KirveHubBot/pkg/apperrors"
)

func TestBonusService_StartAndEnd(t *testing.T) {
	f := newFixture(t)
	f.seedGroup(t, testGroupID)
	s := NewBonusService(f.deps)

	event, err := s.StartBonus(f.ctx, 900, amount("2"), 30, "")
	if err != nil {
		t.Fatalf("StartBonus failed: %v", err)
	}
	if event.EndsAt == nil || !event.EndsAt.Equal(f.clock.Now().Add(30*time.Minute)) {
		t.Errorf("Unexpected end time %v", event.EndsAt)
	}
	if f.platform.countContaining(testGroupID, "başladı") != 1 {
		t.Error("Expected bonus announced to active groups")
	}

	if _, err := s.StartBonus(f.ctx, 900, amount("3"), 10, ""); !apperrors.Is(err, apperrors.KindConflict) {
		t.Errorf("Expected conflict for concurrent bonus, got %v", err)
	}

	ended, err := s.EndBonus(f.ctx, 900)
	if err != nil || ended != 1 {
		t.Fatalf("Expected one bonus ended, got %d / %v", ended, err)
	}
	if _, err := s.EndBonus(f.ctx, 900); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not_found without active bonus, got %v", err)
	}
}

func TestBonusService_ExpiryAndMultiplier(t *testing.T) {
	f := newFixture(t)
	s := NewBonusService(f.deps)

	if _, err := s.StartBonus(f.ctx, 900, amount("1"), 10, ""); !apperrors.Is(err, apperrors.KindInvalidInput) {
		t.Errorf("Expected multiplier 1 rejected, got %v", err)
	}
	if _, err := s.StartBonus(f.ctx, 900, amount("2"), 0, ""); !apperrors.Is(err, apperrors.KindInvalidInput) {
		t.Errorf("Expected zero duration rejected, got %v", err)
	}

	if _, err := s.StartBonus(f.ctx, 900, amount("1.5"), 10, "Hafta sonu"); err != nil {
		t.Fatalf("StartBonus failed: %v", err)
	}
	multiplier := func() string {
		var m string
		_ = f.store.ReadTx(f.ctx, "bonus", func(tx repository.Tx) error {
			v, err := activeBonusMultiplier(tx, f.clock.Now())
			m = v.String()
			return err
		})
		return m
	}
	if got := multiplier(); got != "1.5" {
		t.Errorf("Expected active multiplier 1.5, got %s", got)
	}

	if n, _ := s.SweepExpired(f.ctx); n != 0 {
		t.Errorf("Expected running bonus kept, swept %d", n)
	}
	f.clock.Advance(11 * time.Minute)
	if got := multiplier(); got != "1" {
		t.Errorf("Expected expired bonus ignored, got %s", got)
	}
	if n, _ := s.SweepExpired(f.ctx); n != 1 {
		t.Errorf("Expected expired bonus completed, swept %d", n)
	}
	if _, err := s.StartBonus(f.ctx, 900, amount("2"), 10, ""); err != nil {
		t.Errorf("Expected new bonus after expiry, got %v", err)
	}
}
