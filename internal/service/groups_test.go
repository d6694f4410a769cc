package service

import (
	"testing"

	"KirveHubBot/pkg/apperrors"
)

func TestGroupService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	s := NewGroupService(f.deps)

	group, reactivated, err := s.Register(f.ctx, 900, testGroupID, "KirveHub Sohbet", "kirvehub")
	if err != nil || reactivated {
		t.Fatalf("Expected new registration, got %v / %v", reactivated, err)
	}
	if !group.PointMultiplier.Equal(amount("1")) {
		t.Errorf("Expected default multiplier 1, got %s", group.PointMultiplier)
	}

	if _, _, err := s.Register(f.ctx, 900, testGroupID, "x", ""); !apperrors.Is(err, apperrors.KindConflict) {
		t.Errorf("Expected conflict for active group, got %v", err)
	}

	if err := s.Unregister(f.ctx, 900, testGroupID); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if err := s.Unregister(f.ctx, 900, testGroupID); !apperrors.Is(err, apperrors.KindConflict) {
		t.Errorf("Expected conflict for inactive group, got %v", err)
	}
	if active, _ := s.ListActive(f.ctx); len(active) != 0 {
		t.Errorf("Expected no active groups, got %d", len(active))
	}

	group, reactivated, err = s.Register(f.ctx, 900, testGroupID, "KirveHub", "kirvehub")
	if err != nil || !reactivated || group.UnregisteredAt != nil {
		t.Errorf("Expected reactivation, got %+v / %v / %v", group, reactivated, err)
	}

	info, err := s.Info(f.ctx, testGroupID)
	if err != nil || info.Group.Title != "KirveHub" || info.MessagesToday != 0 {
		t.Errorf("Unexpected info %+v / %v", info, err)
	}
}

func TestGroupService_SetMultiplier(t *testing.T) {
	f := newFixture(t)
	f.seedGroup(t, testGroupID)
	s := NewGroupService(f.deps)

	for _, bad := range []string{"0", "-1", "10.5"} {
		if _, err := s.SetMultiplier(f.ctx, 900, testGroupID, amount(bad)); !apperrors.Is(err, apperrors.KindInvalidInput) {
			t.Errorf("Expected %s rejected, got %v", bad, err)
		}
	}

	group, err := s.SetMultiplier(f.ctx, 900, testGroupID, amount("1.5"))
	if err != nil || !group.PointMultiplier.Equal(amount("1.5")) {
		t.Errorf("Expected multiplier 1.5, got %v / %v", group, err)
	}

	if _, err := s.SetMultiplier(f.ctx, 900, 42, amount("2")); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not_found for unknown group, got %v", err)
	}
}
