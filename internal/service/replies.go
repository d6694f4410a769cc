package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"KirveHubBot/internal/repository"
)

// ReplyEngine шаблонные ответы на приветствия и короткие фразы.
// Не отвечает в тихие часы и пока действует кулдаун пользователя.
type ReplyEngine struct {
	catalogue *Catalogue
	registry  repository.RateRegistry
	now       func() time.Time
	location  *time.Location

	mu       sync.Mutex
	rotation map[string]int
}

// NewReplyEngine создает новый экземпляр ReplyEngine
func NewReplyEngine(catalogue *Catalogue, registry repository.RateRegistry, now func() time.Time, location *time.Location) *ReplyEngine {
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.UTC
	}
	return &ReplyEngine{
		catalogue: catalogue,
		registry:  registry,
		now:       now,
		location:  location,
		rotation:  make(map[string]int),
	}
}

func (r *ReplyEngine) match(text string) *ReplyRule {
	normalized := strings.ToLower(strings.TrimSpace(strings.Trim(text, "!?.,👋 ")))
	for i := range r.catalogue.Rules {
		rule := &r.catalogue.Rules[i]
		for _, p := range rule.Patterns {
			if (rule.Match == "exact" && normalized == p) || (rule.Match == "contains" && strings.Contains(normalized, p)) {
				return rule
			}
		}
	}
	return nil
}

func (r *ReplyEngine) next(rule *ReplyRule) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.rotation[rule.Name]
	r.rotation[rule.Name] = i + 1
	return rule.Replies[i%len(rule.Replies)]
}

// Reply возвращает ответ на сообщение, если он положен
func (r *ReplyEngine) Reply(ctx context.Context, msg ChatMessage) (string, bool, error) {
	if r.catalogue.quiet(r.now().In(r.location).Hour()) {
		return "", false, nil
	}

	rule := r.match(msg.Text)
	if rule == nil {
		return "", false, nil
	}

	acquired, err := r.registry.Acquire(ctx, fmt.Sprintf("reply:%d", msg.UserID), r.catalogue.Cooldown)
	if err != nil || !acquired {
		return "", false, err
	}

	name := msg.FirstName
	if name == "" {
		name = "dostum"
	}
	return fill(r.next(rule), name), true, nil
}
