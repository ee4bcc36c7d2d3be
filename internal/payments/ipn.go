package payments

import (
	"context"
	"errors"
)

// IPNResponse is the acknowledgement body the gateway expects from the IPN
// endpoint.
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

var (
	ipnConfirmed        = IPNResponse{RspCode: "00", Message: "Confirm Success"}
	ipnOrderNotFound    = IPNResponse{RspCode: "01", Message: "Order not found"}
	ipnAlreadyConfirmed = IPNResponse{RspCode: "02", Message: "Order already confirmed"}
	ipnInvalidAmount    = IPNResponse{RspCode: "04", Message: "Invalid amount"}
	ipnInvalidSignature = IPNResponse{RspCode: "97", Message: "Invalid signature"}
	ipnUnknownError     = IPNResponse{RspCode: "99", Message: "Unknown error"}
)

// HandleIPN verifies a server-to-server notification and maps the outcome to
// the gateway's acknowledgement codes.
func (v *ReturnVerifier) HandleIPN(ctx context.Context, params map[string]string) IPNResponse {
	result, err := v.Verify(ctx, params)
	switch {
	case errors.Is(err, ErrSignatureMismatch):
		return ipnInvalidSignature
	case errors.Is(err, ErrTransactionNotFound):
		return ipnOrderNotFound
	case errors.Is(err, ErrAmountMismatch):
		return ipnInvalidAmount
	case err != nil:
		return ipnUnknownError
	case result.AlreadyFinal:
		return ipnAlreadyConfirmed
	default:
		return ipnConfirmed
	}
}
