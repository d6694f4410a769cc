package service

import (
	"testing"

	"KirveHubBot/internal/models"
	"KirveHubBot/pkg/apperrors"
)

func TestUserService_RegisterAndUnregister(t *testing.T) {
	f := newFixture(t)
	s := NewUserService(f.deps, f.ledger)

	user, already, err := s.Register(f.ctx, 1, "Ali", "ali")
	if err != nil || already {
		t.Fatalf("Expected fresh registration, got already=%v err=%v", already, err)
	}
	if !user.IsRegistered || user.RegisteredAt == nil || user.RankID != models.RankMember {
		t.Errorf("Unexpected user %+v", user)
	}

	if _, already, _ := s.Register(f.ctx, 1, "Ali", "ali"); !already {
		t.Error("Expected second registration to report already registered")
	}

	found, err := s.FindByUsername(f.ctx, "ali")
	if err != nil || found.UserID != 1 {
		t.Errorf("Expected user found by username, got %v / %v", found, err)
	}

	if err := s.Unregister(f.ctx, 1); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if err := s.Unregister(f.ctx, 1); !apperrors.Is(err, apperrors.KindNotRegistered) {
		t.Errorf("Expected not_registered, got %v", err)
	}
}

func TestUserService_SetRank(t *testing.T) {
	f := newFixture(t)
	s := NewUserService(f.deps, f.ledger)
	f.seedUser(t, 1, "0", true)
	f.seedUser(t, 2, "0", true)
	f.updateUser(t, 2, func(u *models.User) { u.RankID = models.RankAdmin2 })

	admin2 := &models.User{UserID: 10, RankID: models.RankAdmin2}
	admin1 := &models.User{UserID: 11, RankID: models.RankAdmin1}
	root := &models.User{UserID: 12, RankID: models.RankSuperAdmin}

	target, err := s.SetRank(f.ctx, admin2, 1, models.RankAdmin1)
	if err != nil || target.RankID != models.RankAdmin1 {
		t.Fatalf("Expected rank granted, got %v / %v", target, err)
	}

	cases := []struct {
		name  string
		actor *models.User
		user  int64
		rank  int
		kind  apperrors.Kind
	}{
		{"grant own rank", admin2, 1, models.RankAdmin2, apperrors.KindInsufficientPermission},
		{"peer target", admin2, 2, models.RankMember, apperrors.KindInsufficientPermission},
		{"without capability", admin1, 1, models.RankMember, apperrors.KindInsufficientPermission},
		{"self", admin2, 10, models.RankMember, apperrors.KindInvalidInput},
		{"unknown rank", root, 1, 7, apperrors.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.SetRank(f.ctx, tc.actor, tc.user, tc.rank); !apperrors.Is(err, tc.kind) {
				t.Errorf("Expected %s, got %v", tc.kind, err)
			}
		})
	}

	if _, err := s.SetRank(f.ctx, root, 2, models.RankSuperAdmin); err != nil {
		t.Errorf("Expected super admin to promote anyone, got %v", err)
	}
	staff, _ := s.ListStaff(f.ctx)
	if len(staff) != 2 {
		t.Errorf("Expected 2 staff members, got %d", len(staff))
	}
}

func TestUserService_ProfileAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	s := NewUserService(f.deps, f.ledger)
	f.seedUser(t, 1, "12.50", true)
	f.seedUser(t, 2, "40.00", true)
	f.seedUser(t, 3, "99.00", false)

	profile, err := s.Profile(f.ctx, 1)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if !profile.Balance.Points.Equal(amount("12.50")) || profile.RankName != RankNames[models.RankMember] {
		t.Errorf("Unexpected profile %+v", profile)
	}

	top, err := s.Leaderboard(f.ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(top) != 2 || top[0].UserID != 2 {
		t.Errorf("Expected registered users ordered by balance, got %+v", top)
	}

	if n, _ := s.Stats(f.ctx); n != 2 {
		t.Errorf("Expected 2 registered users, got %d", n)
	}

	if err := s.DeleteAccount(f.ctx, 1, 1); !apperrors.Is(err, apperrors.KindInvalidInput) {
		t.Errorf("Expected self delete rejected, got %v", err)
	}
	if err := s.DeleteAccount(f.ctx, 900, 2); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if _, err := s.Get(f.ctx, 2); !apperrors.IsNotFound(err) {
		t.Errorf("Expected deleted user to be gone, got %v", err)
	}
}
