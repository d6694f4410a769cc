package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Направления движения баллов
const (
	ActionCredit = "credit"
	ActionDebit  = "debit"
)

// BalanceLog строка журнала баланса; журнал только дополняется
type BalanceLog struct {
	ID            uint            `gorm:"primaryKey"`
	UserID        int64           `gorm:"not null;index"`
	ActorID       *int64          `gorm:"index"`
	Action        string          `gorm:"size:8;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Reason        string          `gorm:"size:128;not null"`
	CreatedAt     time.Time       `gorm:"not null;index"`
}

// SystemSettings единственная строка с настройками начисления
type SystemSettings struct {
	ID                   uint            `gorm:"primaryKey"`
	PointsPerMessage     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0.04"`
	MessagesForPoint     int             `gorm:"not null;default:5"`
	DailyLimit           decimal.Decimal `gorm:"type:numeric(14,2);not null;default:5"`
	WeeklyLimit          decimal.Decimal `gorm:"type:numeric(14,2);not null;default:20"`
	MinMessageLength     int             `gorm:"not null;default:5"`
	FloodIntervalSeconds int             `gorm:"not null;default:10"`

	RecruitmentEnabled       bool `gorm:"not null;default:true"`
	ScheduledMessagesEnabled bool `gorm:"not null;default:true"`
	ChatRepliesEnabled       bool `gorm:"not null;default:true"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// DefaultSettings значения по умолчанию для первой инициализации
func DefaultSettings() SystemSettings {
	return SystemSettings{
		ID:                       1,
		PointsPerMessage:         decimal.RequireFromString("0.04"),
		MessagesForPoint:         5,
		DailyLimit:               decimal.RequireFromString("5.00"),
		WeeklyLimit:              decimal.RequireFromString("20.00"),
		MinMessageLength:         5,
		FloodIntervalSeconds:     10,
		RecruitmentEnabled:       true,
		ScheduledMessagesEnabled: true,
		ChatRepliesEnabled:       true,
	}
}

// TableName устанавливает имя таблицы для модели BalanceLog
func (BalanceLog) TableName() string {
	return "balance_logs"
}

// TableName устанавливает имя таблицы для модели SystemSettings
func (SystemSettings) TableName() string {
	return "system_settings"
}
