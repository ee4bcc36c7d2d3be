package cart

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Owner identifies whose cart is addressed: a signed-in user or an anonymous
// guest session. Exactly one field is set.
type Owner struct {
	UserID       uuid.UUID
	GuestSession string
}

func UserOwner(userID uuid.UUID) Owner {
	return Owner{UserID: userID}
}

func GuestOwner(sessionID string) Owner {
	return Owner{GuestSession: strings.TrimSpace(sessionID)}
}

func (o Owner) Mode() enums.CartMode {
	if o.UserID != uuid.Nil {
		return enums.CartModeUser
	}
	return enums.CartModeGuest
}

func (o Owner) Valid() bool {
	return o.UserID != uuid.Nil || o.GuestSession != ""
}

func (o Owner) String() string {
	if o.UserID != uuid.Nil {
		return "user:" + o.UserID.String()
	}
	return "guest:" + o.GuestSession
}

// Store persists one owner's cart lines in display order.
type Store interface {
	Load(ctx context.Context, owner Owner) ([]types.CartItem, error)
	Save(ctx context.Context, owner Owner, items []types.CartItem) error
	Delete(ctx context.Context, owner Owner) error
}
