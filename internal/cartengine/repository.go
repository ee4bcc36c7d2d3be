package cartengine

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Session carries the credentials a repository call is made under. Token is
// set in user mode; GuestID names the anonymous session.
type Session struct {
	Token   string
	GuestID string
}

// Repository is the server cart API. Every call returns the authoritative
// line collection after the operation.
type Repository interface {
	GetCart(ctx context.Context, session Session) ([]types.CartItem, error)
	AddItem(ctx context.Context, session Session, item types.CartItem, quantity int) ([]types.CartItem, error)
	UpdateQuantity(ctx context.Context, session Session, key types.LineKey, quantity int) ([]types.CartItem, error)
	RemoveItem(ctx context.Context, session Session, key types.LineKey) ([]types.CartItem, error)
	ClearCart(ctx context.Context, session Session) ([]types.CartItem, error)
	MergeCart(ctx context.Context, session Session, items []types.CartItem) ([]types.CartItem, error)
}
