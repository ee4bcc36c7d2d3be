package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the slice of the order record the checkout core reads and updates.
// Order creation and fulfilment live elsewhere.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status        string              `gorm:"column:status;not null;default:'placed'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(18,2);not null"`
	Currency      string              `gorm:"column:currency;not null;default:'VND'"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
