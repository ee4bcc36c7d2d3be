package payments

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func TestBuild_SignedRedirect(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "3325000")

	redirect := h.build(t, order)

	compact := strings.ReplaceAll(order.ID.String(), "-", "")
	assert.Equal(t, compact+"_20240501103000000123", redirect.TxnRef)
	assert.Equal(t, "332500000", redirect.Params[ParamAmount])
	assert.Equal(t, "20240501103000", redirect.Params[ParamCreateDate], "create date is rendered in GMT+7")
	assert.Equal(t, "DEMO0001", redirect.Params[ParamTmnCode])
	assert.Equal(t, "203.0.113.7", redirect.Params[ParamIPAddr])

	require.True(t, strings.HasPrefix(redirect.URL, testGateway().BaseURL+"?"))
	query := strings.TrimPrefix(redirect.URL, testGateway().BaseURL+"?")
	hashIdx := strings.LastIndex(query, "&"+ParamSecureHash+"=")
	require.Positive(t, hashIdx, "secure hash is appended last")
	signed := query[:hashIdx]
	hash := query[hashIdx+len(ParamSecureHash)+2:]
	assert.Equal(t, Sign(testSecret, signed), hash)
	assert.NotContains(t, redirect.URL, testSecret)

	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	assert.True(t, VerifyDigest(testSecret, ParamsFromQuery(values)), "redirect params verify with the same procedure")
}

func TestBuild_OpensPendingLedgerEntry(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "125000.50")

	redirect := h.build(t, order)

	txn, err := h.ledger.Get(context.Background(), redirect.TxnRef)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, txn.Status)
	assert.Equal(t, int64(12500050), txn.AmountMinor)
	assert.Equal(t, order.ID, txn.OrderID)
	assert.Equal(t, redirect.Params[ParamSecureHash], txn.RequestParams[ParamSecureHash])
}

func TestBuild_RepeatedAttemptsGetDistinctRefs(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, "100000")

	first := h.build(t, order)
	second := h.build(t, order)

	assert.NotEqual(t, first.TxnRef, second.TxnRef, "same clock reading must still yield a fresh reference")
	txns, err := h.ledger.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestBuild_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.builder.Build(ctx, BuildInput{Amount: decimal.NewFromInt(1000), ClientIP: "1.1.1.1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.builder.Build(ctx, BuildInput{OrderID: uuid.New(), Amount: decimal.NewFromInt(1000)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.builder.Build(ctx, BuildInput{OrderID: uuid.New(), Amount: decimal.RequireFromString("10.005"), ClientIP: "1.1.1.1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBuild_ExpireDate(t *testing.T) {
	cfg := testGateway()
	cfg.ExpireAfter = 15 * time.Minute
	ledgerSvc := &stubLedger{}
	builder, err := NewRequestBuilder(BuilderParams{
		Gateway: cfg,
		Ledger:  ledgerSvc,
		Logger:  logger.Nop(),
		Clock:   func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	redirect, err := builder.Build(context.Background(), BuildInput{OrderID: uuid.New(), Amount: decimal.NewFromInt(50000), ClientIP: "1.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, "20240501104500", redirect.Params[ParamExpireDate])
	require.NotNil(t, redirect.ExpiresAt)
}

func TestBuild_RegeneratesOnCollisionThenGivesUp(t *testing.T) {
	ledgerSvc := &stubLedger{openErrs: []error{ledger.ErrDuplicateTxnRef, nil}}
	builder, err := NewRequestBuilder(BuilderParams{
		Gateway: testGateway(),
		Ledger:  ledgerSvc,
		Logger:  logger.Nop(),
		Clock:   func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	redirect, err := builder.Build(context.Background(), BuildInput{OrderID: uuid.New(), Amount: decimal.NewFromInt(50000), ClientIP: "1.1.1.1"})
	require.NoError(t, err)
	require.Len(t, ledgerSvc.opened, 2)
	assert.NotEqual(t, ledgerSvc.opened[0], ledgerSvc.opened[1])
	assert.Equal(t, ledgerSvc.opened[1], redirect.TxnRef)

	ledgerSvc.openErrs = []error{ledger.ErrDuplicateTxnRef, ledger.ErrDuplicateTxnRef}
	_, err = builder.Build(context.Background(), BuildInput{OrderID: uuid.New(), Amount: decimal.NewFromInt(50000), ClientIP: "1.1.1.1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestNewRequestBuilder_FailsFastOnMissingConfig(t *testing.T) {
	cfg := testGateway()
	cfg.HashSecret = config.Secret("")
	_, err := NewRequestBuilder(BuilderParams{Gateway: cfg, Ledger: &stubLedger{}, Logger: logger.Nop()})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testSecret)
}

func TestMinorUnits(t *testing.T) {
	got, err := MinorUnits(decimal.RequireFromString("3325000"))
	require.NoError(t, err)
	assert.Equal(t, int64(332500000), got)

	got, err = MinorUnits(decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	_, err = MinorUnits(decimal.Zero)
	require.Error(t, err)
}
