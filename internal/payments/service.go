package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// CreatePaymentInput is what a signed-in shopper submits to pay for an order.
// It carries no amount: the charge is always the order's stored total.
type CreatePaymentInput struct {
	UserID    uuid.UUID
	OrderID   uuid.UUID
	ClientIP  string
	OrderInfo string
	Locale    string
	BankCode  string
}

// Service is the checkout-facing surface: start a payment for an order and
// look up where an attempt stands.
type Service interface {
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*Redirect, error)
	Transaction(ctx context.Context, userID uuid.UUID, txnRef string) (*models.PaymentTransaction, error)
}

type service struct {
	builder *RequestBuilder
	ledger  ledger.Service
	orders  orders.Repository
}

// NewService wires the checkout payment service.
func NewService(builder *RequestBuilder, ledgerSvc ledger.Service, orderRepo orders.Repository) (Service, error) {
	if builder == nil {
		return nil, fmt.Errorf("request builder required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{builder: builder, ledger: ledgerSvc, orders: orderRepo}, nil
}

func (s *service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*Redirect, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != input.UserID {
		return nil, orders.ErrOrderNotFound
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}

	return s.builder.Build(ctx, BuildInput{
		OrderID:   order.ID,
		Amount:    order.TotalAmount,
		OrderInfo: input.OrderInfo,
		ClientIP:  input.ClientIP,
		Locale:    input.Locale,
		BankCode:  input.BankCode,
	})
}

func (s *service) Transaction(ctx context.Context, userID uuid.UUID, txnRef string) (*models.PaymentTransaction, error) {
	txn, err := s.ledger.Get(ctx, txnRef)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, txn.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}
