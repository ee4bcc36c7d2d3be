package models

import (
	"time"

	"github.com/google/uuid"
)

// CartRecord is the server-side cart of a signed-in shopper. One per user.
type CartRecord struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:cart_records_user_id_key"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartRecord) TableName() string { return "cart_records" }
