package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository is the part of order persistence the checkout core touches:
// reading what is owed and recording how payment went.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	// UpdatePaymentStatus reports false when the order was already paid and
	// was left untouched.
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, at time.Time) (bool, error)
}
