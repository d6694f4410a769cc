package service

import (
	"testing"
	"time"

	"KirveHubBot/internal/models"
)

func TestClassifier_Rules(t *testing.T) {
	settings := models.DefaultSettings()
	settings.FloodIntervalSeconds = 0

	tests := []struct {
		name string
		text string
		want string
	}{
		{"accepted", "bugün hava çok güzel", ""},
		{"too short", "a b", RejectTooShort},
		{"one below minimum length", "ab c", RejectTooShort},
		{"exactly minimum length", "ab cd", ""},
		{"single word", "merhabalar", RejectFewWords},
		{"repeated words", "selam selam dünya", RejectRepeatedWords},
		{"emoji heavy", "😀😀😀😀 ok", RejectEmoji},
		{"digit heavy", "12345 abc", RejectDigits},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &testClock{now: time.Date(2026, 3, 11, 14, 0, 0, 0, testLocation)}
			c := NewClassifier(nil, clock.Now)
			verdict, err := c.Classify(t.Context(), int64(i+1), tt.text, &settings)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if tt.want == "" && !verdict.Accepted {
				t.Errorf("Expected %q accepted, got %s", tt.text, verdict.Reason)
			}
			if tt.want != "" && verdict.Reason != tt.want {
				t.Errorf("Expected %s for %q, got %+v", tt.want, tt.text, verdict)
			}
		})
	}
}

func TestClassifier_ConfiguredMinLength(t *testing.T) {
	settings := models.DefaultSettings()
	settings.FloodIntervalSeconds = 0
	settings.MinMessageLength = 8
	c := NewClassifier(nil, time.Now)

	if verdict, _ := c.Classify(t.Context(), 1, "abc defg", &settings); !verdict.Accepted {
		t.Errorf("Expected length 8 accepted, got %s", verdict.Reason)
	}
	if verdict, _ := c.Classify(t.Context(), 2, "abc def", &settings); verdict.Reason != RejectTooShort {
		t.Errorf("Expected length 7 rejected as too short, got %+v", verdict)
	}
}

func TestClassifier_DuplicateAndFlood(t *testing.T) {
	f := newFixture(t)
	settings := models.DefaultSettings()
	c := NewClassifier(f.registry, f.clock.Now)

	verdict, _ := c.Classify(f.ctx, 1, "akşam maçı izleyen var mı", &settings)
	if !verdict.Accepted {
		t.Fatalf("Expected first message accepted, got %s", verdict.Reason)
	}

	verdict, _ = c.Classify(f.ctx, 1, "akşam maçı izleyen var mı", &settings)
	if verdict.Reason != RejectDuplicate {
		t.Errorf("Expected duplicate, got %+v", verdict)
	}

	verdict, _ = c.Classify(f.ctx, 1, "bence bu sezon şampiyon biziz", &settings)
	if verdict.Reason != RejectFlood {
		t.Errorf("Expected flood inside interval, got %+v", verdict)
	}

	f.clock.Advance(11 * time.Second)
	verdict, _ = c.Classify(f.ctx, 1, "kadroya yeni transfer lazım", &settings)
	if !verdict.Accepted {
		t.Errorf("Expected accepted after flood interval, got %s", verdict.Reason)
	}

	verdict, _ = c.Classify(f.ctx, 2, "akşam maçı izleyen var mı", &settings)
	if !verdict.Accepted {
		t.Errorf("Expected duplicates tracked per user, got %s", verdict.Reason)
	}
}

func TestClassifier_Cleanup(t *testing.T) {
	f := newFixture(t)
	settings := models.DefaultSettings()
	c := NewClassifier(f.registry, f.clock.Now)

	_, _ = c.Classify(f.ctx, 1, "ilk mesajım bu olsun", &settings)
	if removed := c.Cleanup(); removed != 0 {
		t.Errorf("Expected fresh history kept, removed %d", removed)
	}

	f.clock.Advance(2 * time.Minute)
	if removed := c.Cleanup(); removed != 1 {
		t.Errorf("Expected stale history removed, got %d", removed)
	}

	verdict, _ := c.Classify(f.ctx, 1, "ilk mesajım bu olsun", &settings)
	if !verdict.Accepted {
		t.Errorf("Expected message accepted after window, got %s", verdict.Reason)
	}
}
