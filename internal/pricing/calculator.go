package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Line is the priced view of one cart line.
type Line struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Summary is the full price breakdown for a cart.
type Summary struct {
	Lines     []Line          `json:"lines"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
}

// Calculator prices carts with fixed tenant constants. It holds no mutable
// state and is safe for concurrent use.
type Calculator struct {
	cfg config.PricingConfig
}

func NewCalculator(cfg config.PricingConfig) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

// UnitPrice is base price plus variant adjustment, less the percentage
// discount, never below zero.
func UnitPrice(item types.CartItem) decimal.Decimal {
	price := item.BasePrice.Add(item.VariantAdjustment)
	if item.DiscountPercent.IsPositive() {
		price = price.Mul(hundred.Sub(item.DiscountPercent)).Div(hundred)
	}
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// Summarize prices items without modifying them.
func (c *Calculator) Summarize(items []types.CartItem) Summary {
	summary := Summary{
		Lines:    make([]Line, 0, len(items)),
		Subtotal: decimal.Zero,
		Currency: c.cfg.Currency,
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		unit := UnitPrice(item)
		lineTotal := unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		summary.Lines = append(summary.Lines, Line{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			UnitPrice: unit,
			Quantity:  item.Quantity,
			LineTotal: lineTotal,
		})
		summary.ItemCount += item.Quantity
		summary.Subtotal = summary.Subtotal.Add(lineTotal)
	}

	summary.Shipping = c.shippingFor(summary.Subtotal)
	summary.Tax = summary.Subtotal.Mul(c.cfg.TaxRate)
	summary.Total = summary.Subtotal.Add(summary.Shipping).Add(summary.Tax)
	return summary
}

func (c *Calculator) shippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(c.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return c.cfg.ShippingFee
}
