package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// CreatePaymentRequest is POST /api/v1/payments.
type CreatePaymentRequest struct {
	OrderID   uuid.UUID `json:"order_id" validate:"required"`
	OrderInfo string    `json:"order_info,omitempty" validate:"max=255"`
	Locale    string    `json:"locale,omitempty" validate:"omitempty,oneof=vn en"`
	BankCode  string    `json:"bank_code,omitempty" validate:"omitempty,max=20,alphanum"`
}

// CreatePaymentResponse hands the client the gateway redirect.
type CreatePaymentResponse struct {
	PaymentURL string     `json:"payment_url"`
	TxnRef     string     `json:"txn_ref"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// TransactionView is the shopper-visible state of one payment attempt.
type TransactionView struct {
	TxnRef       string          `json:"txn_ref"`
	OrderID      uuid.UUID       `json:"order_id"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ResponseCode *string         `json:"response_code,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

func newTransactionView(txn *models.PaymentTransaction) TransactionView {
	return TransactionView{
		TxnRef:       txn.TxnRef,
		OrderID:      txn.OrderID,
		Status:       txn.Status.String(),
		Amount:       txn.Amount,
		Currency:     txn.Currency,
		ResponseCode: txn.ResponseCode,
		CreatedAt:    txn.CreatedAt,
		CompletedAt:  txn.CompletedAt,
	}
}
