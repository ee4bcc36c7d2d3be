package cart

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ownerFromRequest picks the signed-in user when present, otherwise the
// guest session named by X-Guest-Session.
func ownerFromRequest(r *http.Request) (cartsvc.Owner, error) {
	if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return cartsvc.Owner{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
		}
		return cartsvc.UserOwner(userID), nil
	}
	if session := middleware.GuestSessionFromContext(r.Context()); session != "" {
		return cartsvc.GuestOwner(session), nil
	}
	return cartsvc.Owner{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in or send "+middleware.GuestSessionHeader)
}

func userFromRequest(r *http.Request) (cartsvc.Owner, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return cartsvc.Owner{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "merge requires a signed-in user")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return cartsvc.Owner{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return cartsvc.UserOwner(userID), nil
}
