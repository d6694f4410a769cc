package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ранги пользователей
const (
	RankMember     = 1
	RankAdmin1     = 2
	RankAdmin2     = 3
	RankSuperAdmin = 4
)

// Rank справочник рангов, заполняется один раз при старте
type Rank struct {
	ID   int    `gorm:"primaryKey;autoIncrement:false"`
	Name string `gorm:"size:32;not null"`
}

// User участник сообщества
type User struct {
	UserID       int64  `gorm:"primaryKey;autoIncrement:false"`
	FirstName    string `gorm:"size:128"`
	Username     string `gorm:"size:64;index"`
	IsRegistered bool   `gorm:"not null;default:false;index"`
	RegisteredAt *time.Time
	RankID       int `gorm:"not null;default:1"`

	Points       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	DailyPoints  decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	WeeklyPoints decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`

	// Маркеры периодов для ленивого сброса счетчиков
	DailyPeriod          string `gorm:"size:10"`
	WeeklyPeriod         string `gorm:"size:8"`
	WeeklyNotifiedPeriod string `gorm:"size:8"`

	TotalMessages   int64 `gorm:"not null;default:0"`
	LastActivity    *time.Time `gorm:"index"`
	LastRecruitedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	BalanceLogs  []BalanceLog       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	DailyStats   []DailyStat        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Participants []EventParticipant `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Orders       []MarketOrder      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// DisplayName имя для упоминаний в сообщениях
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "kullanıcı"
}

// DailyStat суточная статистика сообщений пользователя в группе
type DailyStat struct {
	ID           uint            `gorm:"primaryKey"`
	UserID       int64           `gorm:"not null;uniqueIndex:idx_daily_stat"`
	GroupID      int64           `gorm:"not null;uniqueIndex:idx_daily_stat"`
	Day          string          `gorm:"size:10;not null;uniqueIndex:idx_daily_stat"`
	MessageCount int64           `gorm:"not null;default:0"`
	PointsEarned decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
}

// TableName устанавливает имя таблицы для модели Rank
func (Rank) TableName() string {
	return "ranks"
}

// TableName устанавливает имя таблицы для модели User
func (User) TableName() string {
	return "users"
}

// TableName устанавливает имя таблицы для модели DailyStat
func (DailyStat) TableName() string {
	return "daily_stats"
}
