package models

import "time"

// CustomCommand команда вида !site с готовым ответом
type CustomCommand struct {
	ID          uint      `gorm:"primaryKey"`
	CommandName string    `gorm:"size:64;not null;uniqueIndex"`
	ReplyText   string    `gorm:"type:text;not null"`
	ButtonText  string    `gorm:"size:64"`
	ButtonURL   string    `gorm:"size:512"`
	CreatedBy   int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// ScheduledProfile периодическое сообщение в группу
type ScheduledProfile struct {
	ID              uint      `gorm:"primaryKey"`
	Name            string    `gorm:"size:64;not null;uniqueIndex"`
	GroupID         int64     `gorm:"not null"`
	MessageText     string    `gorm:"type:text;not null"`
	Link            string    `gorm:"size:512"`
	ImageURL        string    `gorm:"size:512"`
	IntervalSeconds int       `gorm:"not null"`
	IsActive        bool      `gorm:"not null;default:true"`
	CreatedBy       int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// TableName устанавливает имя таблицы для модели CustomCommand
func (CustomCommand) TableName() string {
	return "custom_commands"
}

// TableName устанавливает имя таблицы для модели ScheduledProfile
func (ScheduledProfile) TableName() string {
	return "scheduled_profiles"
}
