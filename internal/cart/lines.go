package cart

import (
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// The reducers below are shared by the server cart and the client engine so
// both sides agree on line identity and quantity rules. None of them mutate
// their input.

// AddLine sums quantity into the line matching item, or appends a new line.
func AddLine(items []types.CartItem, item types.CartItem, quantity int) []types.CartItem {
	out := types.CloneItems(items)
	key := item.Key()
	for i := range out {
		if out[i].Key() == key {
			out[i].Quantity += quantity
			return out
		}
	}
	item.ProductID = key.ProductID
	item.VariantID = key.VariantID
	item.Quantity = quantity
	return append(out, item)
}

// SetQuantity replaces the quantity of a line. A quantity of zero or less
// removes the line.
func SetQuantity(items []types.CartItem, key types.LineKey, quantity int) []types.CartItem {
	if quantity <= 0 {
		return RemoveLine(items, key)
	}
	out := types.CloneItems(items)
	for i := range out {
		if out[i].Key() == key {
			out[i].Quantity = quantity
			break
		}
	}
	return out
}

// RemoveLine drops the line for key; absent keys are a no-op.
func RemoveLine(items []types.CartItem, key types.LineKey) []types.CartItem {
	out := make([]types.CartItem, 0, len(items))
	for _, item := range items {
		if item.Key() == key {
			continue
		}
		out = append(out, item)
	}
	return out
}

// MergeLines folds incoming into base: matching lines sum quantities and keep
// base's position and pricing, new lines are appended in incoming order.
func MergeLines(base, incoming []types.CartItem) []types.CartItem {
	out := types.CloneItems(base)
	for _, item := range incoming {
		if item.Quantity <= 0 {
			continue
		}
		out = AddLine(out, item, item.Quantity)
	}
	return out
}

// ClampQuantities caps every line at max. A max of zero disables the cap.
func ClampQuantities(items []types.CartItem, max int) []types.CartItem {
	out := types.CloneItems(items)
	if max <= 0 {
		return out
	}
	for i := range out {
		if out[i].Quantity > max {
			out[i].Quantity = max
		}
	}
	return out
}
