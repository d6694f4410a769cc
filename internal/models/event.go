package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы и статусы событий
const (
	EventTypeLottery = "lottery"
	EventTypeBonus   = "bonus"

	EventStatusActive    = "active"
	EventStatusCompleted = "completed"
	EventStatusCancelled = "cancelled"

	ParticipantActive    = "active"
	ParticipantWithdrawn = "withdrawn"
)

// Event лотерея или бонусное событие
type Event struct {
	ID          uint            `gorm:"primaryKey"`
	Type        string          `gorm:"size:16;not null;default:lottery"`
	Title       string          `gorm:"size:255"`
	Description string          `gorm:"type:text"`
	EntryCost   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	MaxWinners  int             `gorm:"not null;default:1"`
	Status      string          `gorm:"size:16;not null;default:active;index"`
	CreatorID   int64           `gorm:"not null"`
	GroupID     int64           `gorm:"not null"`
	MessageID   int

	// Только для бонусных событий
	Multiplier      decimal.Decimal `gorm:"type:numeric(6,2);not null;default:1"`
	DurationMinutes int
	EndsAt          *time.Time

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	CompletedAt *time.Time

	Participants []EventParticipant `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
}

// IsTerminal сообщает, что статус события больше не меняется
func (e *Event) IsTerminal() bool {
	return e.Status == EventStatusCompleted || e.Status == EventStatusCancelled
}

// EventParticipant участие пользователя в событии
type EventParticipant struct {
	ID            uint            `gorm:"primaryKey"`
	EventID       uint            `gorm:"not null;uniqueIndex:idx_event_user"`
	UserID        int64           `gorm:"not null;uniqueIndex:idx_event_user"`
	PaymentAmount decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	JoinedAt      time.Time       `gorm:"not null"`
	WithdrewAt    *time.Time
	Status        string `gorm:"size:16;not null;default:active"`
}

// TableName устанавливает имя таблицы для модели Event
func (Event) TableName() string {
	return "events"
}

// TableName устанавливает имя таблицы для модели EventParticipant
func (EventParticipant) TableName() string {
	return "event_participants"
}
