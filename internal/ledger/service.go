package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var (
	// ErrTransactionNotFound marks an unknown transaction reference.
	ErrTransactionNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	// ErrDuplicateTxnRef is returned when Open races an existing reference.
	ErrDuplicateTxnRef = pkgerrors.New(pkgerrors.CodeConflict, "transaction reference already exists")
	// ErrOrderNotFound is returned when Open names an order that does not exist.
	ErrOrderNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
)

// Service owns the payment transaction state machine.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Open(ctx context.Context, input OpenInput) (*models.PaymentTransaction, error)
	Get(ctx context.Context, txnRef string) (*models.PaymentTransaction, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)
	// Transition moves an open entry to input.Status. It returns false without
	// error when another caller already moved the entry out of the states it
	// could legally come from.
	Transition(ctx context.Context, txnRef string, input TransitionInput) (bool, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentTransaction, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// OpenInput captures what a new pending entry records.
type OpenInput struct {
	TxnRef        string
	OrderID       uuid.UUID
	Provider      string
	Amount        decimal.Decimal
	AmountMinor   int64
	Currency      string
	RequestParams map[string]string
}

// TransitionInput is the target status plus the callback diagnostics to keep.
type TransitionInput struct {
	Status         enums.TransactionStatus
	ResponseParams map[string]string
	ResponseCode   string
	GatewayTxnNo   string
	BankCode       string
	ErrorDetail    string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx), now: s.now}
}

func (s *service) Open(ctx context.Context, input OpenInput) (*models.PaymentTransaction, error) {
	if strings.TrimSpace(input.TxnRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Amount.IsPositive() || input.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	provider := input.Provider
	if provider == "" {
		provider = "vnpay"
	}

	txn := &models.PaymentTransaction{
		TxnRef:        input.TxnRef,
		OrderID:       input.OrderID,
		Provider:      provider,
		Amount:        input.Amount,
		AmountMinor:   input.AmountMinor,
		Currency:      input.Currency,
		RequestParams: input.RequestParams,
		Status:        enums.TransactionStatusPending,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		if errors.Is(err, errDuplicateRef) {
			return nil, ErrDuplicateTxnRef
		}
		if errors.Is(err, errUnknownOrder) {
			return nil, ErrOrderNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
	}
	return txn, nil
}

func (s *service) Get(ctx context.Context, txnRef string) (*models.PaymentTransaction, error) {
	if strings.TrimSpace(txnRef) == "" {
		return nil, ErrTransactionNotFound
	}
	txn, err := s.repo.FindByTxnRef(ctx, txnRef)
	if errors.Is(err, errNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	return txn, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	txns, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment transactions")
	}
	return txns, nil
}

func (s *service) Transition(ctx context.Context, txnRef string, input TransitionInput) (bool, error) {
	from := sourcesFor(input.Status)
	if len(from) == 0 {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot transition to %q", input.Status))
	}

	now := s.now().UTC()
	updates := map[string]any{
		"status":     input.Status,
		"updated_at": now,
	}
	if input.ResponseParams != nil {
		updates["response_params"] = encodeParams(input.ResponseParams)
	}
	setOptional(updates, "response_code", input.ResponseCode)
	setOptional(updates, "gateway_txn_no", input.GatewayTxnNo)
	setOptional(updates, "bank_code", input.BankCode)
	setOptional(updates, "error_detail", input.ErrorDetail)
	if input.Status.IsTerminal() {
		updates["completed_at"] = now
	}

	moved, err := s.repo.Transition(ctx, txnRef, from, updates)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
	}
	return moved, nil
}

func (s *service) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentTransaction, error) {
	txns, err := s.repo.ListOlderThan(ctx, enums.TransactionStatusPending, olderThan, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale transactions")
	}
	return txns, nil
}

// sourcesFor lists the states from which target is reachable.
func sourcesFor(target enums.TransactionStatus) []enums.TransactionStatus {
	var from []enums.TransactionStatus
	for _, candidate := range enums.OpenTransactionStatuses {
		if candidate.CanTransitionTo(target) {
			from = append(from, candidate)
		}
	}
	return from
}

// encodeParams serializes params for a map-based update, where gorm skips the
// column serializer.
func encodeParams(params map[string]string) string {
	raw, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func setOptional(updates map[string]any, column, value string) {
	if value != "" {
		updates[column] = value
	}
}
