package cartdto

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CartLine is a cart line as clients send it. Prices are denormalized from
// the catalog so guest carts can be priced offline.
type CartLine struct {
	ProductID         string          `json:"product_id" validate:"required,max=64"`
	VariantID         string          `json:"variant_id,omitempty" validate:"max=64"`
	Name              string          `json:"name,omitempty" validate:"max=255"`
	BasePrice         decimal.Decimal `json:"base_price" validate:"dec_gte0"`
	VariantAdjustment decimal.Decimal `json:"variant_adjustment"`
	DiscountPercent   decimal.Decimal `json:"discount_percent" validate:"dec_pct"`
	Quantity          int             `json:"quantity" validate:"min=1"`
}

func (l CartLine) Item() types.CartItem {
	return types.CartItem{
		ProductID:         l.ProductID,
		VariantID:         l.VariantID,
		Name:              l.Name,
		BasePrice:         l.BasePrice,
		VariantAdjustment: l.VariantAdjustment,
		DiscountPercent:   l.DiscountPercent,
		Quantity:          l.Quantity,
	}
}

// AddItemRequest is POST /api/v1/cart/items.
type AddItemRequest = CartLine

// UpdateQuantityRequest is PATCH /api/v1/cart/items. Zero or a negative
// quantity removes the line.
type UpdateQuantityRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	VariantID string `json:"variant_id,omitempty" validate:"max=64"`
	Quantity  int    `json:"quantity"`
}

// MergeCartRequest is POST /api/v1/cart/merge.
type MergeCartRequest struct {
	Items []CartLine `json:"items" validate:"max=200,dive"`
}

func (m MergeCartRequest) CartItems() []types.CartItem {
	items := make([]types.CartItem, 0, len(m.Items))
	for _, line := range m.Items {
		items = append(items, line.Item())
	}
	return items
}
