package service

import (
	"strings"
	"testing"
	"time"
)

func TestReplyEngine_RulesAndCooldown(t *testing.T) {
	f := newFixture(t)
	engine := NewReplyEngine(DefaultCatalogue(), f.registry, f.clock.Now, testLocation)

	reply, ok, err := engine.Reply(f.ctx, ChatMessage{UserID: 1, FirstName: "Ali", Text: "Selam!"})
	if err != nil || !ok {
		t.Fatalf("Expected greeting reply, got %v / %v", ok, err)
	}
	if reply != "Selam Ali! 👋" {
		t.Errorf("Unexpected reply %q", reply)
	}

	if _, ok, _ := engine.Reply(f.ctx, ChatMessage{UserID: 1, FirstName: "Ali", Text: "merhaba"}); ok {
		t.Error("Expected per-user cooldown")
	}

	reply, ok, _ = engine.Reply(f.ctx, ChatMessage{UserID: 2, Text: "merhaba"})
	if !ok || reply != "Merhaba dostum, hoş geldin! 😊" {
		t.Errorf("Expected rotated greeting with fallback name, got %q", reply)
	}

	reply, ok, _ = engine.Reply(f.ctx, ChatMessage{UserID: 3, FirstName: "Can", Text: "Herkese günaydın arkadaşlar"})
	if !ok || !strings.Contains(reply, "Günaydın") {
		t.Errorf("Expected morning reply, got %q", reply)
	}

	if _, ok, _ := engine.Reply(f.ctx, ChatMessage{UserID: 4, Text: "selam nasılsınız"}); ok {
		t.Error("Expected exact rule not to match longer text")
	}

	f.clock.Advance(6 * time.Minute)
	if _, ok, _ := engine.Reply(f.ctx, ChatMessage{UserID: 1, Text: "sa"}); !ok {
		t.Error("Expected reply after cooldown")
	}
}

func TestReplyEngine_QuietHours(t *testing.T) {
	f := newFixture(t)
	f.clock.now = time.Date(2026, 3, 12, 3, 0, 0, 0, testLocation)
	engine := NewReplyEngine(DefaultCatalogue(), f.registry, f.clock.Now, testLocation)

	if _, ok, _ := engine.Reply(f.ctx, ChatMessage{UserID: 1, Text: "selam"}); ok {
		t.Error("Expected no replies during quiet hours")
	}
}

func TestParseCatalogue(t *testing.T) {
	c, err := ParseCatalogue([]byte(`
quiet_hours: {start: 22, end: 6}
rules:
  - name: hi
    match: exact
    patterns: ["HEY"]
    replies: ["hey {name}"]
`))
	if err != nil {
		t.Fatalf("ParseCatalogue failed: %v", err)
	}
	if c.Cooldown != 5*time.Minute {
		t.Errorf("Expected default cooldown, got %v", c.Cooldown)
	}
	if c.Rules[0].Patterns[0] != "hey" {
		t.Errorf("Expected lowercased pattern, got %q", c.Rules[0].Patterns[0])
	}
	if !c.quiet(23) || !c.quiet(2) || c.quiet(12) {
		t.Error("Expected quiet hours to wrap around midnight")
	}

	if _, err := ParseCatalogue([]byte("rules:\n  - name: x\n    match: regex\n    patterns: [a]\n    replies: [b]\n")); err == nil {
		t.Error("Expected unknown match type to fail")
	}
	if _, err := ParseCatalogue([]byte("rules:\n  - name: x\n    match: exact\n    patterns: [a]\n")); err == nil {
		t.Error("Expected rule without replies to fail")
	}
}

func TestDefaultCatalogue(t *testing.T) {
	c := DefaultCatalogue()
	if len(c.Rules) == 0 || len(c.Recruitment.Group) == 0 || c.Recruitment.DM == "" {
		t.Errorf("Expected embedded catalogue to be complete, got %+v", c)
	}
}
