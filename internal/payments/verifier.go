package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/keylock"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

var (
	// ErrSignatureMismatch marks a callback whose secure hash did not verify.
	ErrSignatureMismatch = pkgerrors.New(pkgerrors.CodeSignature, "secure hash mismatch")
	// ErrAmountMismatch marks an authentic callback for a different amount
	// than the one requested.
	ErrAmountMismatch = pkgerrors.New(pkgerrors.CodeValidation, "callback amount does not match request")
	// ErrTransactionNotFound re-exports the ledger sentinel for callers of this package.
	ErrTransactionNotFound = ledger.ErrTransactionNotFound
)

const (
	errorDetailSignature = "signature mismatch"
	errorDetailAmount    = "amount mismatch"
	errorDetailCancelled = "cancelled by shopper"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Result is the normalized outcome of a callback or cancel signal.
type Result struct {
	TxnRef       string
	OrderID      uuid.UUID
	Authentic    bool
	Status       enums.TransactionStatus
	ResponseCode string
	// AlreadyFinal is set when the entry was terminal before this call, so
	// nothing changed.
	AlreadyFinal bool
}

// VerifierParams wires a ReturnVerifier.
type VerifierParams struct {
	Gateway config.GatewayConfig
	Ledger  ledger.Service
	Orders  orders.Repository
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
	Clock   func() time.Time
}

// ReturnVerifier authenticates gateway callbacks and drives the ledger state
// machine. Callbacks for one reference are handled one at a time inside the
// process; the conditional ledger update covers other instances.
type ReturnVerifier struct {
	cfg     config.GatewayConfig
	ledger  ledger.Service
	orders  orders.Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
	locks   *keylock.Map
	now     func() time.Time
}

func NewReturnVerifier(params VerifierParams) (*ReturnVerifier, error) {
	if err := params.Gateway.Validate(); err != nil {
		return nil, err
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ReturnVerifier{
		cfg:     params.Gateway,
		ledger:  params.Ledger,
		orders:  params.Orders,
		tx:      params.Tx,
		logg:    params.Logger,
		metrics: params.Metrics,
		locks:   keylock.New(),
		now:     clock,
	}, nil
}

// Authentic reports whether params carry a valid secure hash. No state is read
// or written.
func (v *ReturnVerifier) Authentic(params map[string]string) bool {
	return VerifyDigest(v.cfg.HashSecret.Reveal(), params)
}

// Verify authenticates a gateway callback and applies its outcome.
func (v *ReturnVerifier) Verify(ctx context.Context, params map[string]string) (*Result, error) {
	txnRef := params[ParamTxnRef]
	ctx = v.logg.WithTxnRef(ctx, txnRef)
	result := &Result{
		TxnRef:       txnRef,
		Authentic:    v.Authentic(params),
		ResponseCode: params[ParamResponseCode],
	}

	if !result.Authentic {
		v.metrics.IncSignatureMismatch()
		v.logg.Warn(v.logg.Event(ctx, "payment.signature_mismatch"), "gateway callback failed signature check")
	}

	unlock := v.locks.Lock(txnRef)
	defer unlock()

	txn, err := v.ledger.Get(ctx, txnRef)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			v.logg.Warn(v.logg.Event(ctx, "payment.callback.unknown_ref"), "callback for unknown transaction reference")
		}
		return result, err
	}
	result.OrderID = txn.OrderID

	if txn.Status.IsTerminal() {
		result.Status = txn.Status
		result.AlreadyFinal = true
		v.logg.Info(v.logg.Event(ctx, "payment.callback.duplicate"), "transaction already final, ignoring callback")
		if !result.Authentic {
			return result, ErrSignatureMismatch
		}
		return result, nil
	}

	if !result.Authentic {
		// A forged callback fails the attempt but never touches the order.
		status, err := v.apply(ctx, txn, ledger.TransitionInput{
			Status:         enums.TransactionStatusFailed,
			ResponseParams: params,
			ErrorDetail:    errorDetailSignature,
		}, false)
		if err != nil {
			return result, err
		}
		result.Status = status.status
		result.AlreadyFinal = !status.moved
		return result, ErrSignatureMismatch
	}

	input := v.classify(params)
	var outcomeErr error
	if amount, err := strconv.ParseInt(params[ParamAmount], 10, 64); err != nil || amount != txn.AmountMinor {
		input.Status = enums.TransactionStatusFailed
		input.ErrorDetail = errorDetailAmount
		outcomeErr = ErrAmountMismatch
		v.logg.Warn(v.logg.Event(ctx, "payment.amount_mismatch"), "callback amount differs from requested amount")
	}

	status, err := v.apply(ctx, txn, input, true)
	if err != nil {
		return result, err
	}
	result.Status = status.status
	result.AlreadyFinal = !status.moved && status.status.IsTerminal()

	logCtx := v.logg.WithFields(ctx, map[string]any{
		"event":         "payment.callback.verified",
		"status":        result.Status.String(),
		"response_code": result.ResponseCode,
		"order_id":      txn.OrderID.String(),
	})
	v.logg.Info(logCtx, "gateway callback applied")
	return result, outcomeErr
}

// Cancel handles the gateway's unsigned cancel redirect.
func (v *ReturnVerifier) Cancel(ctx context.Context, txnRef string) (*Result, error) {
	ctx = v.logg.WithTxnRef(ctx, txnRef)
	unlock := v.locks.Lock(txnRef)
	defer unlock()

	txn, err := v.ledger.Get(ctx, txnRef)
	if err != nil {
		return &Result{TxnRef: txnRef}, err
	}
	result := &Result{TxnRef: txnRef, OrderID: txn.OrderID}
	if txn.Status.IsTerminal() {
		result.Status = txn.Status
		result.AlreadyFinal = true
		v.logg.Info(v.logg.Event(ctx, "payment.cancel.duplicate"), "transaction already final, ignoring cancel")
		return result, nil
	}

	status, err := v.apply(ctx, txn, ledger.TransitionInput{
		Status:      enums.TransactionStatusCancelled,
		ErrorDetail: errorDetailCancelled,
	}, true)
	if err != nil {
		return result, err
	}
	result.Status = status.status
	result.AlreadyFinal = !status.moved
	v.logg.Info(v.logg.Event(ctx, "payment.cancelled"), "payment cancelled by shopper")
	return result, nil
}

// classify maps an authentic callback to the ledger status it implies.
func (v *ReturnVerifier) classify(params map[string]string) ledger.TransitionInput {
	input := ledger.TransitionInput{
		ResponseParams: params,
		ResponseCode:   params[ParamResponseCode],
		GatewayTxnNo:   params[ParamTransactionNo],
		BankCode:       params[ParamBankCode],
	}
	switch {
	case v.cfg.InFlightStatus != "" && params[ParamTransactionStatus] == v.cfg.InFlightStatus:
		input.Status = enums.TransactionStatusProcessing
	case params[ParamResponseCode] == v.cfg.SuccessCode:
		input.Status = enums.TransactionStatusSuccess
	default:
		input.Status = enums.TransactionStatusFailed
		input.ErrorDetail = "gateway response code " + params[ParamResponseCode]
	}
	return input
}

type applied struct {
	status enums.TransactionStatus
	moved  bool
	// orderKept is set when the order was already paid by another attempt.
	orderKept bool
}

// apply runs the conditional transition and, for the winning terminal move,
// the order update in one database transaction. A lost race reports the
// status the winner stored.
func (v *ReturnVerifier) apply(ctx context.Context, txn *models.PaymentTransaction, input ledger.TransitionInput, updateOrder bool) (applied, error) {
	out := applied{status: input.Status}
	err := v.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := v.ledger.WithTx(tx).Transition(ctx, txn.TxnRef, input)
		if err != nil {
			return err
		}
		out.moved = moved
		if !moved || !updateOrder {
			return nil
		}
		orderStatus, ok := enums.PaymentStatusFor(input.Status)
		if !ok {
			return nil
		}
		updated, err := v.orders.WithTx(tx).UpdatePaymentStatus(ctx, txn.OrderID, orderStatus, v.now().UTC())
		if err != nil {
			return err
		}
		out.orderKept = !updated
		return nil
	})
	if err != nil {
		v.logg.Error(ctx, "failed to apply payment transition", err)
		return out, err
	}
	if out.orderKept {
		v.logg.Warn(v.logg.Event(ctx, "payment.order.already_paid"), "order already paid by another attempt, order left unchanged")
	}
	if !out.moved {
		current, err := v.ledger.Get(ctx, txn.TxnRef)
		if err != nil {
			return out, err
		}
		out.status = current.Status
		v.logg.Info(v.logg.Event(ctx, "payment.callback.duplicate"), "transition lost to a concurrent callback")
	}
	v.metrics.IncCallback(out.status.String())
	return out, nil
}
