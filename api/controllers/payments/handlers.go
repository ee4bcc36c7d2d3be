package payments

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	paymentsvc "github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CallbackVerifier is the slice of the return verifier the gateway endpoints use.
type CallbackVerifier interface {
	Verify(ctx context.Context, params map[string]string) (*paymentsvc.Result, error)
	Cancel(ctx context.Context, txnRef string) (*paymentsvc.Result, error)
	HandleIPN(ctx context.Context, params map[string]string) paymentsvc.IPNResponse
}

// CreatePayment starts a gateway payment for one of the caller's orders.
func CreatePayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload CreatePaymentRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redirect, err := svc.CreatePayment(r.Context(), paymentsvc.CreatePaymentInput{
			UserID:    userID,
			OrderID:   payload.OrderID,
			ClientIP:  middleware.ClientIP(r),
			OrderInfo: validators.SanitizeString(payload.OrderInfo, 255),
			Locale:    payload.Locale,
			BankCode:  payload.BankCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, CreatePaymentResponse{
			PaymentURL: redirect.URL,
			TxnRef:     redirect.TxnRef,
			ExpiresAt:  redirect.ExpiresAt,
		})
	}
}

// PaymentStatus reports a payment attempt owned by the caller.
func PaymentStatus(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Transaction(r.Context(), userID, chi.URLParam(r, "txnRef"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionView(txn))
	}
}

// GatewayReturn handles the shopper's browser coming back from the gateway.
// Whatever happened, the shopper lands on a storefront page that carries only
// the transaction reference.
func GatewayReturn(verifier CallbackVerifier, pages config.PaymentsConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := paymentsvc.ParamsFromQuery(r.URL.Query())
		result, err := verifier.Verify(r.Context(), params)

		page := pages.FailurePageURL
		switch {
		case err != nil:
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "gateway return rejected")
			}
		case result.Status == enums.TransactionStatusSuccess:
			page = pages.SuccessPageURL
		case !result.Status.IsTerminal():
			page = pages.PendingPageURL
		}

		http.Redirect(w, r, landingURL(page, params[paymentsvc.ParamTxnRef]), http.StatusFound)
	}
}

// GatewayCancel handles the gateway's unsigned "shopper cancelled" redirect.
func GatewayCancel(verifier CallbackVerifier, pages config.PaymentsConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txnRef := strings.TrimSpace(r.URL.Query().Get(paymentsvc.ParamTxnRef))
		page := pages.FailurePageURL
		if result, err := verifier.Cancel(r.Context(), txnRef); err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "gateway cancel rejected")
			}
		} else if result.Status == enums.TransactionStatusSuccess {
			page = pages.SuccessPageURL
		}
		http.Redirect(w, r, landingURL(page, txnRef), http.StatusFound)
	}
}

// GatewayIPN acknowledges server-to-server notifications in the gateway's
// own response format. The gateway retries anything that is not a 200.
func GatewayIPN(verifier CallbackVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := paymentsvc.ParamsFromQuery(r.URL.Query())
		responses.WriteJSON(w, http.StatusOK, verifier.HandleIPN(r.Context(), params))
	}
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

// landingURL appends txn_ref to page, keeping any query the page already has.
func landingURL(page, txnRef string) string {
	u, err := url.Parse(page)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	if txnRef != "" {
		q := u.Query()
		q.Set("txn_ref", txnRef)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
