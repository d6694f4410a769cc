package service

import (
	"testing"

	"KirveHubBot/pkg/apperrors"
)

func TestSettingsService_Update(t *testing.T) {
	f := newFixture(t)
	s := NewSettingsService(f.deps)

	settings, err := s.Update(f.ctx, 900, "points_per_message", "0,05")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !settings.PointsPerMessage.Equal(amount("0.05")) {
		t.Errorf("Expected 0.05, got %s", settings.PointsPerMessage)
	}

	if _, err := s.Update(f.ctx, 900, "recruitment", "kapalı"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	current, _ := s.Get(f.ctx)
	if current.RecruitmentEnabled {
		t.Error("Expected recruitment disabled")
	}
	if SettingValue(current, "recruitment") != "kapalı" || SettingValue(current, "points_per_message") != "0.05" {
		t.Errorf("Unexpected rendered values")
	}

	if _, err := s.Update(f.ctx, 900, "messages_for_point", "3"); err != nil {
		t.Errorf("Expected integer setting accepted, got %v", err)
	}
}

func TestSettingsService_Rejects(t *testing.T) {
	f := newFixture(t)
	s := NewSettingsService(f.deps)

	cases := map[string][2]string{
		"unknown key":      {"colour", "red"},
		"daily over week":  {"daily_limit", "25"},
		"week under daily": {"weekly_limit", "4"},
		"zero messages":    {"messages_for_point", "0"},
		"bad toggle":       {"chat_replies", "belki"},
		"three decimals":   {"points_per_message", "0.001"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Update(f.ctx, 900, kv[0], kv[1]); !apperrors.Is(err, apperrors.KindInvalidInput) {
				t.Errorf("Expected invalid_input, got %v", err)
			}
		})
	}

	current, _ := s.Get(f.ctx)
	if !current.DailyLimit.Equal(amount("5")) || !current.WeeklyLimit.Equal(amount("20")) {
		t.Error("Expected limits unchanged after rejected updates")
	}
}

func TestParseAmount(t *testing.T) {
	if v, err := ParseAmount(" 12,50 "); err != nil || !v.Equal(amount("12.5")) {
		t.Errorf("Expected 12.50, got %s / %v", v, err)
	}
	for _, in := range []string{"abc", "-1", "0", "1.234"} {
		if _, err := ParseAmount(in); !apperrors.Is(err, apperrors.KindInvalidInput) {
			t.Errorf("Expected %q rejected, got %v", in, err)
		}
	}
}
