package cart

import (
	"net/http"

	cartdto "github.com/angelmondragon/storefront-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const maxKeyLen = 64

// CartFetch returns the caller's cart.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) (any, error) {
		return svc.GetCart(r.Context(), owner)
	})
}

// CartAddItem adds a line or increases the quantity of an existing one.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) (any, error) {
		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), owner, payload.Item(), payload.Quantity)
	})
}

// CartUpdateQuantity sets a line's quantity; zero or less removes it.
func CartUpdateQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) (any, error) {
		var payload cartdto.UpdateQuantityRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateQuantity(r.Context(), owner, types.NewLineKey(payload.ProductID, payload.VariantID), payload.Quantity)
	})
}

// CartRemoveItem deletes the line named by product_id and variant_id.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) (any, error) {
		productID, err := validators.QueryString(r, "product_id", true, maxKeyLen)
		if err != nil {
			return nil, err
		}
		variantID, err := validators.QueryString(r, "variant_id", false, maxKeyLen)
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), owner, types.NewLineKey(productID, variantID))
	})
}

// CartClear empties the caller's cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) (any, error) {
		return svc.ClearCart(r.Context(), owner)
	})
}

// CartMerge folds a guest cart into the signed-in user's cart. The guest
// server copy named by X-Guest-Session, if any, is discarded.
func CartMerge(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		user, err := userFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cartdto.MergeCartRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.MergeCart(r.Context(), user, middleware.GuestSessionFromContext(r.Context()), payload.CartItems())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartSummary prices the caller's cart.
func CartSummary(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) (any, error) {
		return svc.Summary(r.Context(), owner)
	})
}

func withOwner(svc cartsvc.Service, logg *logger.Logger, fn func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		owner, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := fn(w, r, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
