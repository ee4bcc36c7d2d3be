package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	gatewayDateLayout = "20060102150405"
	providerVNPay     = "vnpay"
	maxRefAttempts    = 2
)

var minorUnitFactor = decimal.NewFromInt(100)

// BuildInput describes one checkout attempt for an order.
type BuildInput struct {
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	OrderInfo string
	ClientIP  string
	Locale    string
	BankCode  string
}

// Redirect is the signed gateway URL plus the reference it was issued under.
type Redirect struct {
	URL       string
	TxnRef    string
	Params    map[string]string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// BuilderParams wires a RequestBuilder.
type BuilderParams struct {
	Gateway config.GatewayConfig
	Ledger  ledger.Service
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
	Clock   func() time.Time
}

// RequestBuilder signs gateway redirects and opens the matching ledger entry.
type RequestBuilder struct {
	cfg     config.GatewayConfig
	loc     *time.Location
	ledger  ledger.Service
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
	now     func() time.Time
}

func NewRequestBuilder(params BuilderParams) (*RequestBuilder, error) {
	if err := params.Gateway.Validate(); err != nil {
		return nil, err
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RequestBuilder{
		cfg:     params.Gateway,
		loc:     params.Gateway.Location(),
		ledger:  params.Ledger,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

// Build produces the signed redirect for input and records a pending entry.
func (b *RequestBuilder) Build(ctx context.Context, input BuildInput) (*Redirect, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if strings.TrimSpace(input.ClientIP) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client ip is required")
	}
	minor, err := MinorUnits(input.Amount)
	if err != nil {
		return nil, err
	}

	created := b.now().In(b.loc)
	for attempt := 0; attempt < maxRefAttempts; attempt++ {
		txnRef := NewTxnRef(input.OrderID, created.Add(time.Duration(attempt)*time.Microsecond))
		redirect := b.sign(input, txnRef, minor, created)

		_, err := b.ledger.Open(ctx, ledger.OpenInput{
			TxnRef:        txnRef,
			OrderID:       input.OrderID,
			Provider:      providerVNPay,
			Amount:        input.Amount,
			AmountMinor:   minor,
			Currency:      b.cfg.CurrCode,
			RequestParams: redirect.Params,
		})
		if errors.Is(err, ledger.ErrDuplicateTxnRef) {
			b.logg.Warn(b.logg.WithTxnRef(ctx, txnRef), "transaction reference collision, regenerating")
			continue
		}
		if err != nil {
			b.metrics.IncRequest("error")
			return nil, err
		}

		b.metrics.IncRequest("ok")
		logCtx := b.logg.WithFields(ctx, map[string]any{
			"event":    "payment.request.built",
			"txn_ref":  txnRef,
			"order_id": input.OrderID.String(),
		})
		b.logg.Info(logCtx, "payment redirect created")
		return redirect, nil
	}

	b.metrics.IncRequest("collision")
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique transaction reference")
}

func (b *RequestBuilder) sign(input BuildInput, txnRef string, minor int64, created time.Time) *Redirect {
	locale := strings.TrimSpace(input.Locale)
	if locale == "" {
		locale = b.cfg.Locale
	}
	info := strings.TrimSpace(input.OrderInfo)
	if info == "" {
		info = "Payment for order " + input.OrderID.String()
	}

	params := map[string]string{
		ParamVersion:    b.cfg.Version,
		ParamCommand:    b.cfg.Command,
		ParamTmnCode:    b.cfg.MerchantCode,
		ParamLocale:     locale,
		ParamCurrCode:   b.cfg.CurrCode,
		ParamTxnRef:     txnRef,
		ParamOrderInfo:  info,
		ParamOrderType:  b.cfg.OrderType,
		ParamAmount:     fmt.Sprintf("%d", minor),
		ParamReturnURL:  b.cfg.ReturnURL,
		ParamIPAddr:     input.ClientIP,
		ParamCreateDate: created.Format(gatewayDateLayout),
	}
	if bank := strings.TrimSpace(input.BankCode); bank != "" {
		params[ParamBankCode] = bank
	}

	redirect := &Redirect{TxnRef: txnRef, CreatedAt: created}
	if b.cfg.ExpireAfter > 0 {
		expires := created.Add(b.cfg.ExpireAfter)
		params[ParamExpireDate] = expires.Format(gatewayDateLayout)
		redirect.ExpiresAt = &expires
	}

	query := Canonicalize(params)
	hash := Sign(b.cfg.HashSecret.Reveal(), query)
	params[ParamSecureHash] = hash

	redirect.Params = params
	redirect.URL = b.cfg.BaseURL + "?" + query + "&" + ParamSecureHash + "=" + hash
	return redirect
}

// MinorUnits converts a display amount to the gateway's x100 integer form.
// Amounts with sub-minor precision are rejected rather than rounded.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	minor := amount.Mul(minorUnitFactor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount has more precision than the gateway accepts")
	}
	return minor.IntPart(), nil
}

// NewTxnRef derives a reference from the order id and creation instant. The
// microsecond suffix keeps repeated attempts on one order distinct.
func NewTxnRef(orderID uuid.UUID, at time.Time) string {
	compact := strings.ReplaceAll(orderID.String(), "-", "")
	return fmt.Sprintf("%s_%s%06d", compact, at.Format(gatewayDateLayout), at.Nanosecond()/1000)
}
