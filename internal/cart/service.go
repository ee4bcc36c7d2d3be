package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/keylock"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Service is the server side of the cart: every mutation returns the
// authoritative line collection for the owner.
type Service interface {
	GetCart(ctx context.Context, owner Owner) (*types.CartView, error)
	AddItem(ctx context.Context, owner Owner, item types.CartItem, quantity int) (*types.CartView, error)
	UpdateQuantity(ctx context.Context, owner Owner, key types.LineKey, quantity int) (*types.CartView, error)
	RemoveItem(ctx context.Context, owner Owner, key types.LineKey) (*types.CartView, error)
	ClearCart(ctx context.Context, owner Owner) (*types.CartView, error)
	// MergeCart folds guest items into the user's cart and discards the
	// server copy of the guest session, if any.
	MergeCart(ctx context.Context, user Owner, guestSession string, items []types.CartItem) (*types.CartView, error)
	// Summary prices the cart for display only. Line prices are whatever the
	// client sent, so the figure must never become a payment amount; payments
	// charge the order total owned by the order service.
	Summary(ctx context.Context, owner Owner) (*pricing.Summary, error)
}

type service struct {
	users      Store
	guests     Store
	calculator *pricing.Calculator
	cfg        config.CartConfig
	logg       *logger.Logger
	locks      *keylock.Map
}

// NewService builds a cart service backed by the provided stores.
func NewService(users, guests Store, calculator *pricing.Calculator, cfg config.CartConfig, logg *logger.Logger) (Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user cart store required")
	}
	if guests == nil {
		return nil, fmt.Errorf("guest cart store required")
	}
	if calculator == nil {
		return nil, fmt.Errorf("pricing calculator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		users:      users,
		guests:     guests,
		calculator: calculator,
		cfg:        cfg,
		logg:       logg,
		locks:      keylock.New(),
	}, nil
}

func (s *service) GetCart(ctx context.Context, owner Owner) (*types.CartView, error) {
	store, err := s.storeFor(owner)
	if err != nil {
		return nil, err
	}
	items, err := store.Load(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return view(owner, items), nil
}

func (s *service) AddItem(ctx context.Context, owner Owner, item types.CartItem, quantity int) (*types.CartView, error) {
	if strings.TrimSpace(item.ProductID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if item.BasePrice.IsNegative() || item.DiscountPercent.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prices must not be negative")
	}
	return s.mutate(ctx, owner, func(items []types.CartItem) ([]types.CartItem, error) {
		next := AddLine(items, item, quantity)
		if s.cfg.MaxLineQuantity > 0 {
			for _, line := range next {
				if line.Key() == item.Key() && line.Quantity > s.cfg.MaxLineQuantity {
					return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity exceeds the limit of %d per line", s.cfg.MaxLineQuantity))
				}
			}
		}
		return next, nil
	})
}

func (s *service) UpdateQuantity(ctx context.Context, owner Owner, key types.LineKey, quantity int) (*types.CartView, error) {
	if key.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if s.cfg.MaxLineQuantity > 0 && quantity > s.cfg.MaxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity exceeds the limit of %d per line", s.cfg.MaxLineQuantity))
	}
	return s.mutate(ctx, owner, func(items []types.CartItem) ([]types.CartItem, error) {
		return SetQuantity(items, key, quantity), nil
	})
}

func (s *service) RemoveItem(ctx context.Context, owner Owner, key types.LineKey) (*types.CartView, error) {
	if key.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	return s.mutate(ctx, owner, func(items []types.CartItem) ([]types.CartItem, error) {
		return RemoveLine(items, key), nil
	})
}

func (s *service) ClearCart(ctx context.Context, owner Owner) (*types.CartView, error) {
	store, err := s.storeFor(owner)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(owner.String())
	defer unlock()
	if err := store.Delete(ctx, owner); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return view(owner, nil), nil
}

func (s *service) MergeCart(ctx context.Context, user Owner, guestSession string, items []types.CartItem) (*types.CartView, error) {
	if user.Mode() != enums.CartModeUser {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merge requires a signed-in user")
	}
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
		}
	}

	merged, err := s.mutate(ctx, user, func(current []types.CartItem) ([]types.CartItem, error) {
		return ClampQuantities(MergeLines(current, items), s.cfg.MaxLineQuantity), nil
	})
	if err != nil {
		return nil, err
	}

	if guest := GuestOwner(guestSession); guest.Valid() {
		if err := s.guests.Delete(ctx, guest); err != nil {
			s.logg.Warn(s.logg.WithGuestSession(s.logg.Event(ctx, "cart.merge.guest_cleanup_failed"), guest.GuestSession), err.Error())
		}
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":       "cart.merged",
		"user_id":     user.UserID.String(),
		"guest_lines": len(items),
		"lines":       len(merged.Items),
	})
	s.logg.Info(logCtx, "guest cart merged into user cart")
	return merged, nil
}

// Summary is display-only; see Service.Summary.
func (s *service) Summary(ctx context.Context, owner Owner) (*pricing.Summary, error) {
	cart, err := s.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	summary := s.calculator.Summarize(cart.Items)
	return &summary, nil
}

// mutate serializes read-modify-write cycles per owner inside this process.
func (s *service) mutate(ctx context.Context, owner Owner, fn func([]types.CartItem) ([]types.CartItem, error)) (*types.CartView, error) {
	store, err := s.storeFor(owner)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(owner.String())
	defer unlock()

	current, err := store.Load(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, owner, next); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return view(owner, next), nil
}

func (s *service) storeFor(owner Owner) (Store, error) {
	if !owner.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart owner required")
	}
	if owner.Mode() == enums.CartModeUser {
		return s.users, nil
	}
	return s.guests, nil
}

func view(owner Owner, items []types.CartItem) *types.CartView {
	out := &types.CartView{Mode: owner.Mode().String(), Items: types.CloneItems(items)}
	if owner.Mode() == enums.CartModeUser {
		out.Owner = owner.UserID.String()
	} else {
		out.Owner = owner.GuestSession
	}
	return out
}
