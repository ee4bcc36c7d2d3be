package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CartItem is one cart line. Pricing fields are denormalized so a guest cart
// can be priced without reaching the catalog.
type CartItem struct {
	ProductID         string          `json:"product_id"`
	VariantID         string          `json:"variant_id,omitempty"`
	Name              string          `json:"name,omitempty"`
	BasePrice         decimal.Decimal `json:"base_price"`
	VariantAdjustment decimal.Decimal `json:"variant_adjustment"`
	DiscountPercent   decimal.Decimal `json:"discount_percent"`
	Quantity          int             `json:"quantity"`
}

// LineKey identifies a cart line; one line per product and variant pair.
type LineKey struct {
	ProductID string
	VariantID string
}

func NewLineKey(productID, variantID string) LineKey {
	return LineKey{ProductID: strings.TrimSpace(productID), VariantID: strings.TrimSpace(variantID)}
}

func (i CartItem) Key() LineKey {
	return NewLineKey(i.ProductID, i.VariantID)
}

// CloneItems returns a copy of items safe to hand to callers.
func CloneItems(items []CartItem) []CartItem {
	if items == nil {
		return []CartItem{}
	}
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

// CartView is the authoritative cart returned by the cart API.
type CartView struct {
	Owner string     `json:"owner"`
	Mode  string     `json:"mode"`
	Items []CartItem `json:"items"`
}
