package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы заказов
const (
	OrderPending   = "pending"
	OrderApproved  = "approved"
	OrderRejected  = "rejected"
	OrderDelivered = "delivered"
)

// MarketProduct товар каталога
type MarketProduct struct {
	ID          uint            `gorm:"primaryKey"`
	Name        string          `gorm:"size:255;not null"`
	CompanyName string          `gorm:"size:255"`
	CompanyLink string          `gorm:"size:512"`
	Category    string          `gorm:"size:64"`
	Price       decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Stock       int             `gorm:"not null;default:0;check:stock >= 0"`
	Description string          `gorm:"type:text"`
	IsActive    bool            `gorm:"not null;default:true"`
	CreatedBy   int64           `gorm:"not null"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

// MarketOrder заказ пользователя
type MarketOrder struct {
	ID          uint            `gorm:"primaryKey"`
	OrderNumber string          `gorm:"size:32;not null;uniqueIndex"`
	UserID      int64           `gorm:"not null;index"`
	ProductID   uint            `gorm:"not null;index"`
	Quantity    int             `gorm:"not null;default:1"`
	TotalPrice  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Status      string          `gorm:"size:16;not null;default:pending;index"`
	AdminNotes  string          `gorm:"type:text"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`

	Product MarketProduct `gorm:"foreignKey:ProductID"`
}

// TableName устанавливает имя таблицы для модели MarketProduct
func (MarketProduct) TableName() string {
	return "market_products"
}

// TableName устанавливает имя таблицы для модели MarketOrder
func (MarketOrder) TableName() string {
	return "market_orders"
}
