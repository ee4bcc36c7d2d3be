package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var (
	errDuplicateRef = errors.New("duplicate transaction reference")
	errNoRows       = errors.New("transaction not found")
	errUnknownOrder = errors.New("transaction references a missing order")
)

// Repository persists payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	FindByTxnRef(ctx context.Context, txnRef string) (*models.PaymentTransaction, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)
	// Transition applies updates only while the row is in one of from. It
	// reports whether this call moved the row.
	Transition(ctx context.Context, txnRef string, from []enums.TransactionStatus, updates map[string]any) (bool, error)
	ListOlderThan(ctx context.Context, status enums.TransactionStatus, before time.Time, limit int) ([]models.PaymentTransaction, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if err := r.DB(ctx).Create(txn).Error; err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return errDuplicateRef
		case db.IsForeignKeyViolation(err):
			return errUnknownOrder
		}
		return err
	}
	return nil
}

func (r *repository) FindByTxnRef(ctx context.Context, txnRef string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.DB(ctx).Where("txn_ref = ?", txnRef).First(&txn).Error
	if repo.IsNotFound(err) {
		return nil, errNoRows
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	if err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) Transition(ctx context.Context, txnRef string, from []enums.TransactionStatus, updates map[string]any) (bool, error) {
	res := r.DB(ctx).
		Model(&models.PaymentTransaction{}).
		Where("txn_ref = ? AND status IN ?", txnRef, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListOlderThan(ctx context.Context, status enums.TransactionStatus, before time.Time, limit int) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	q := r.DB(ctx).
		Where("status = ? AND created_at < ?", status, before).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
