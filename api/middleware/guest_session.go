package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// GuestSessionHeader names the guest cart a client is working with.
const GuestSessionHeader = "X-Guest-Session"

var guestSessionRe = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// GuestSession validates X-Guest-Session when present and stores it on the
// context. The value becomes part of a redis key, so the charset is narrow.
func GuestSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := strings.TrimSpace(r.Header.Get(GuestSessionHeader))
			if session == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !guestSessionRe.MatchString(session) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid guest session"))
				return
			}
			ctx := WithGuestSession(r.Context(), session)
			if logg != nil {
				ctx = logg.WithGuestSession(ctx, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
