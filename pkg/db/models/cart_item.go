package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one line of a CartRecord. Position keeps display order stable.
type CartItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CartID            uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:cart_items_line_key,priority:1"`
	ProductID         string          `gorm:"column:product_id;not null;uniqueIndex:cart_items_line_key,priority:2"`
	VariantID         string          `gorm:"column:variant_id;not null;default:'';uniqueIndex:cart_items_line_key,priority:3"`
	Name              string          `gorm:"column:name;not null;default:''"`
	BasePrice         decimal.Decimal `gorm:"column:base_price;type:numeric(18,2);not null"`
	VariantAdjustment decimal.Decimal `gorm:"column:variant_adjustment;type:numeric(18,2);not null"`
	DiscountPercent   decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null"`
	Quantity          int             `gorm:"column:quantity;not null"`
	Position          int             `gorm:"column:position;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartItem) TableName() string { return "cart_items" }
