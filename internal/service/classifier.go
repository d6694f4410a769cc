package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"KirveHubBot/internal/models"
	"KirveHubBot/internal/repository"
)

// Причины отклонения сообщения
const (
	RejectTooShort      = "too_short"
	RejectFewWords      = "few_words"
	RejectRepeatedWords = "repeated_words"
	RejectEmoji         = "emoji"
	RejectDigits        = "digits"
	RejectDuplicate     = "duplicate"
	RejectFlood         = "flood"
)

const (
	duplicateWindow     = 60 * time.Second
	duplicateHistory    = 3
	duplicateSimilarity = 0.85
	maxEmojiShare       = 0.5
	maxDigitShare       = 0.3
)

// Verdict решение классификатора
type Verdict struct {
	Accepted bool
	Reason   string
}

type recentMessage struct {
	words map[string]struct{}
	at    time.Time
}

// Classifier решает, засчитывается ли сообщение для начисления
type Classifier struct {
	registry repository.RateRegistry
	now      func() time.Time

	mu      sync.Mutex
	history map[int64][]recentMessage
}

// NewClassifier создает новый экземпляр Classifier
func NewClassifier(registry repository.RateRegistry, now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{
		registry: registry,
		now:      now,
		history:  make(map[int64][]recentMessage),
	}
}

// Classify проверяет сообщение. Интервал флуда занимается только для принятых сообщений.
func (c *Classifier) Classify(ctx context.Context, userID int64, text string, settings *models.SystemSettings) (Verdict, error) {
	text = strings.TrimSpace(text)
	length := utf8.RuneCountInString(text)

	if length < settings.MinMessageLength {
		return Verdict{Reason: RejectTooShort}, nil
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) < 2 {
		return Verdict{Reason: RejectFewWords}, nil
	}
	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[w] = struct{}{}
	}
	if len(wordSet) != len(words) {
		return Verdict{Reason: RejectRepeatedWords}, nil
	}

	emoji, digits := 0, 0
	for _, r := range text {
		switch {
		case isEmoji(r):
			emoji++
		case unicode.IsDigit(r):
			digits++
		}
	}
	if float64(emoji) > maxEmojiShare*float64(length) {
		return Verdict{Reason: RejectEmoji}, nil
	}
	if float64(digits) > maxDigitShare*float64(length) {
		return Verdict{Reason: RejectDigits}, nil
	}

	if c.isDuplicate(userID, wordSet) {
		return Verdict{Reason: RejectDuplicate}, nil
	}

	interval := time.Duration(settings.FloodIntervalSeconds) * time.Second
	if interval > 0 {
		ok, err := c.registry.Acquire(ctx, fmt.Sprintf("flood:%d", userID), interval)
		if err != nil {
			return Verdict{}, err
		}
		if !ok {
			return Verdict{Reason: RejectFlood}, nil
		}
	}

	return Verdict{Accepted: true}, nil
}

// isDuplicate сравнивает с последними сообщениями пользователя и запоминает текущее
func (c *Classifier) isDuplicate(userID int64, words map[string]struct{}) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	recent := c.history[userID][:0:0]
	for _, m := range c.history[userID] {
		if now.Sub(m.at) < duplicateWindow {
			recent = append(recent, m)
		}
	}

	duplicate := false
	for _, m := range recent {
		if jaccard(words, m.words) > duplicateSimilarity {
			duplicate = true
			break
		}
	}

	recent = append(recent, recentMessage{words: words, at: now})
	if len(recent) > duplicateHistory {
		recent = recent[len(recent)-duplicateHistory:]
	}
	c.history[userID] = recent

	return duplicate
}

// Cleanup удаляет историю старше окна дубликатов
func (c *Classifier) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for userID, msgs := range c.history {
		if len(msgs) == 0 || now.Sub(msgs[len(msgs)-1].at) >= duplicateWindow {
			delete(c.history, userID)
			removed++
		}
	}
	return removed
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	case r == 0xFE0F || r == 0x200D:
		return true
	}
	return false
}
