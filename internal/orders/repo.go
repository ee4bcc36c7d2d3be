package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ErrOrderNotFound is returned when no order matches the id.
var ErrOrderNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")

type repository struct {
	repo.Base
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).Where("id = ?", orderID).First(&order).Error
	if repo.IsNotFound(err) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

// UpdatePaymentStatus records a payment outcome on the order. A paid order is
// final: the write is skipped and false is returned, so a late outcome from a
// sibling attempt never overwrites it.
func (r *repository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, at time.Time) (bool, error) {
	if !status.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	updates := map[string]any{
		"payment_status": status,
		"updated_at":     at,
	}
	if status == enums.PaymentStatusPaid {
		updates["paid_at"] = at
	}
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, enums.PaymentStatusPaid).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order payment status")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := r.DB(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if count == 0 {
		return false, ErrOrderNotFound
	}
	return false, nil
}
