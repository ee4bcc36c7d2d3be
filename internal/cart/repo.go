package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Repository persists signed-in shoppers' carts in cart_records/cart_items.
type Repository struct {
	repo.Base
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// Load returns the user's lines in display order; a missing cart is empty.
func (r *Repository) Load(ctx context.Context, owner Owner) ([]types.CartItem, error) {
	if owner.UserID == uuid.Nil {
		return nil, fmt.Errorf("user cart requires a user owner")
	}
	record, err := r.findByUser(ctx, r.DB(ctx), owner.UserID)
	if repo.IsNotFound(err) {
		return []types.CartItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	return itemsFromRows(record.Items), nil
}

// Save replaces the user's lines, creating the cart record on first write.
func (r *Repository) Save(ctx context.Context, owner Owner, items []types.CartItem) error {
	if owner.UserID == uuid.Nil {
		return fmt.Errorf("user cart requires a user owner")
	}
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		record, err := r.findByUser(ctx, tx, owner.UserID)
		if repo.IsNotFound(err) {
			record = &models.CartRecord{ID: uuid.New(), UserID: owner.UserID}
			if err := tx.Omit("Items").Create(record).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else if err := tx.Model(&models.CartRecord{}).Where("id = ?", record.ID).Update("updated_at", time.Now().UTC()).Error; err != nil {
			return err
		}
		return replaceItems(tx, record.ID, items)
	})
}

// Delete removes the user's cart and its lines.
func (r *Repository) Delete(ctx context.Context, owner Owner) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		record, err := r.findByUser(ctx, tx, owner.UserID)
		if repo.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("cart_id = ?", record.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.CartRecord{}, "id = ?", record.ID).Error
	})
}

func (r *Repository) findByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	err := db.WithContext(ctx).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		Where("user_id = ?", userID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// replaceItems atomically swaps the lines of a cart.
func replaceItems(tx *gorm.DB, cartID uuid.UUID, items []types.CartItem) error {
	if err := tx.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	rows := make([]models.CartItem, 0, len(items))
	for i, item := range items {
		rows = append(rows, models.CartItem{
			ID:                uuid.New(),
			CartID:            cartID,
			ProductID:         item.ProductID,
			VariantID:         item.VariantID,
			Name:              item.Name,
			BasePrice:         item.BasePrice,
			VariantAdjustment: item.VariantAdjustment,
			DiscountPercent:   item.DiscountPercent,
			Quantity:          item.Quantity,
			Position:          i,
		})
	}
	return tx.Create(&rows).Error
}

func itemsFromRows(rows []models.CartItem) []types.CartItem {
	items := make([]types.CartItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, types.CartItem{
			ProductID:         row.ProductID,
			VariantID:         row.VariantID,
			Name:              row.Name,
			BasePrice:         row.BasePrice,
			VariantAdjustment: row.VariantAdjustment,
			DiscountPercent:   row.DiscountPercent,
			Quantity:          row.Quantity,
		})
	}
	return items
}
