package service

import (
	"fmt"
	"time"

	"KirveHubBot/internal/repository"

	"go.uber.org/zap"
)

// Deps общие зависимости сервисов
type Deps struct {
	Store    repository.Store
	Platform Platform
	Audit    *AuditLog
	Logger   *zap.Logger
	// Now источник времени; по умолчанию time.Now
	Now func() time.Time
	// Location часовой пояс для суточных и недельных периодов
	Location *time.Location
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// DayKey ключ суточного периода в часовом поясе бота
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// WeekKey ключ ISO-недели в часовом поясе бота
func WeekKey(t time.Time, loc *time.Location) string {
	year, week := t.In(loc).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// ChatMessage входящее текстовое сообщение из группы
type ChatMessage struct {
	UserID    int64
	FirstName string
	Username  string
	ChatID    int64
	MessageID int
	Text      string
}
