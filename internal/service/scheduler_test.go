package service

import (
	"testing"
	"time"

	"KirveHubBot/internal/models"
	"KirveHubBot/pkg/apperrors"
)

func runScheduler(t *testing.T, f *fixture, s *Scheduler) int {
	t.Helper()
	sent, err := s.RunOnce(f.ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	return sent
}

func TestScheduler_IntervalWithoutBursts(t *testing.T) {
	f := newFixture(t)
	f.seedGroup(t, testGroupID)
	s := NewScheduler(f.deps)

	profile, err := s.CreateProfile(f.ctx, 900, ProfileInput{GroupID: testGroupID, MessageText: "Market açık!", Link: "https://kirvehub.example", IntervalSeconds: 60})
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if profile.Name == "" {
		t.Error("Expected generated profile name")
	}

	if n := runScheduler(t, f, s); n != 0 {
		t.Errorf("Expected no send right after creation, got %d", n)
	}
	f.clock.Advance(30 * time.Second)
	if n := runScheduler(t, f, s); n != 0 {
		t.Errorf("Expected no send before interval, got %d", n)
	}
	f.clock.Advance(31 * time.Second)
	if n := runScheduler(t, f, s); n != 1 {
		t.Errorf("Expected one send after interval, got %d", n)
	}

	f.clock.Advance(10 * time.Minute)
	if n := runScheduler(t, f, s); n != 1 {
		t.Errorf("Expected a single send for an overdue profile, got %d", n)
	}

	msgs := f.platform.to(testGroupID)
	if len(msgs) != 2 || len(msgs[0].Buttons) != 1 || msgs[0].Buttons[0][0].URL == "" {
		t.Errorf("Expected two sends with a link button, got %+v", msgs)
	}
}

func TestScheduler_ToggleResetsInterval(t *testing.T) {
	f := newFixture(t)
	f.seedGroup(t, testGroupID)
	s := NewScheduler(f.deps)

	profile, err := s.CreateProfile(f.ctx, 900, ProfileInput{GroupID: testGroupID, MessageText: "Duyuru", IntervalSeconds: 60})
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if p, err := s.Toggle(f.ctx, 900, profile.ID); err != nil || p.IsActive {
		t.Fatalf("Expected profile disabled, got %v / %v", p, err)
	}
	f.clock.Advance(5 * time.Minute)
	if n := runScheduler(t, f, s); n != 0 {
		t.Errorf("Expected disabled profile to stay silent, got %d", n)
	}

	if _, err := s.Toggle(f.ctx, 900, profile.ID); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if n := runScheduler(t, f, s); n != 0 {
		t.Errorf("Expected fresh interval after enabling, got %d sends", n)
	}
	if _, err := s.Toggle(f.ctx, 900, profile.ID); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	f.clock.Advance(2 * time.Minute)
	if n := runScheduler(t, f, s); n != 0 {
		t.Errorf("Expected enable-then-disable to produce no sends, got %d", n)
	}
}

func TestScheduler_GlobalToggleAndValidation(t *testing.T) {
	f := newFixture(t)
	f.seedGroup(t, testGroupID)
	s := NewScheduler(f.deps)

	if _, err := s.CreateProfile(f.ctx, 900, ProfileInput{GroupID: testGroupID, MessageText: "x", IntervalSeconds: 5}); !apperrors.Is(err, apperrors.KindInvalidInput) {
		t.Errorf("Expected short interval to be rejected, got %v", err)
	}
	if _, err := s.CreateProfile(f.ctx, 900, ProfileInput{GroupID: 1, MessageText: "x", IntervalSeconds: 60}); !apperrors.IsNotFound(err) {
		t.Errorf("Expected unknown group to be rejected, got %v", err)
	}

	profile, err := s.CreateProfile(f.ctx, 900, ProfileInput{GroupID: testGroupID, MessageText: "x", IntervalSeconds: 60})
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	f.updateSettings(t, func(st *models.SystemSettings) { st.ScheduledMessagesEnabled = false })
	f.clock.Advance(time.Hour)
	if n := runScheduler(t, f, s); n != 0 {
		t.Errorf("Expected no sends while scheduled messages are disabled, got %d", n)
	}

	if err := s.DeleteProfile(f.ctx, 900, profile.ID); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}
	profiles, _ := s.ListProfiles(f.ctx)
	if len(profiles) != 0 {
		t.Errorf("Expected no profiles after delete, got %d", len(profiles))
	}
}
