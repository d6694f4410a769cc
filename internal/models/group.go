package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Group зарегистрированная группа
type Group struct {
	GroupID         int64           `gorm:"primaryKey;autoIncrement:false"`
	Title           string          `gorm:"size:255"`
	Username        string          `gorm:"size:64"`
	RegisteredBy    int64           `gorm:"not null"`
	IsActive        bool            `gorm:"not null;default:true;index"`
	UnregisteredAt  *time.Time
	PointMultiplier decimal.Decimal `gorm:"type:numeric(6,2);not null;default:1"`
	CreatedAt       time.Time       `gorm:"autoCreateTime"`
}

// TableName устанавливает имя таблицы для модели Group
func (Group) TableName() string {
	return "groups"
}
