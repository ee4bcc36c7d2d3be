package payments

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const checkoutDDL = `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'placed',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  total_amount TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'VND',
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  txn_ref TEXT NOT NULL,
  order_id TEXT NOT NULL,
  provider TEXT NOT NULL DEFAULT 'vnpay',
  amount TEXT NOT NULL,
  amount_minor INTEGER NOT NULL,
  currency TEXT NOT NULL,
  request_params TEXT,
  response_params TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  response_code TEXT,
  gateway_txn_no TEXT,
  bank_code TEXT,
  error_detail TEXT,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS payment_transactions_txn_ref_key ON payment_transactions (txn_ref);`

var fixedNow = time.Date(2024, 5, 1, 3, 30, 0, 123000, time.UTC)

func testGateway() config.GatewayConfig {
	return config.GatewayConfig{
		Version:        "2.1.0",
		Command:        "pay",
		MerchantCode:   "DEMO0001",
		HashSecret:     testSecret,
		BaseURL:        "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:      "https://shop.example/api/v1/payments/vnpay/return",
		Locale:         "vn",
		CurrCode:       "VND",
		OrderType:      "other",
		Timezone:       "Asia/Ho_Chi_Minh",
		SuccessCode:    "00",
		InFlightStatus: "01",
	}
}

// countingOrders records how many times an order payment status was written.
type countingOrders struct {
	orders.Repository
	updates *atomic.Int32
}

func (c countingOrders) WithTx(tx *gorm.DB) orders.Repository {
	return countingOrders{Repository: c.Repository.WithTx(tx), updates: c.updates}
}

func (c countingOrders) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, at time.Time) (bool, error) {
	c.updates.Add(1)
	return c.Repository.UpdatePaymentStatus(ctx, orderID, status, at)
}

type harness struct {
	db       *gorm.DB
	ledger   ledger.Service
	orders   countingOrders
	builder  *RequestBuilder
	verifier *ReturnVerifier
	service  Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.Exec(checkoutDDL).Error)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	orderRepo := countingOrders{Repository: orders.NewRepository(conn), updates: &atomic.Int32{}}
	clock := func() time.Time { return fixedNow }

	builder, err := NewRequestBuilder(BuilderParams{
		Gateway: testGateway(),
		Ledger:  ledgerSvc,
		Logger:  logger.Nop(),
		Clock:   clock,
	})
	require.NoError(t, err)

	verifier, err := NewReturnVerifier(VerifierParams{
		Gateway: testGateway(),
		Ledger:  ledgerSvc,
		Orders:  orderRepo,
		Tx:      db.Wrap(conn),
		Logger:  logger.Nop(),
		Clock:   clock,
	})
	require.NoError(t, err)

	svc, err := NewService(builder, ledgerSvc, orderRepo)
	require.NoError(t, err)

	return &harness{db: conn, ledger: ledgerSvc, orders: orderRepo, builder: builder, verifier: verifier, service: svc}
}

func (h *harness) seedOrder(t *testing.T, total string) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Status:        "placed",
		PaymentStatus: enums.PaymentStatusUnpaid,
		TotalAmount:   decimal.RequireFromString(total),
		Currency:      "VND",
	}
	require.NoError(t, h.db.Create(order).Error)
	return order
}

func (h *harness) build(t *testing.T, order *models.Order) *Redirect {
	t.Helper()
	redirect, err := h.builder.Build(context.Background(), BuildInput{
		OrderID:  order.ID,
		Amount:   order.TotalAmount,
		ClientIP: "203.0.113.7",
	})
	require.NoError(t, err)
	return redirect
}

func (h *harness) order(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, h.db.Where("id = ?", id).First(&order).Error)
	return &order
}

// signedCallback builds the parameter set the gateway sends back for redirect.
func signedCallback(redirect *Redirect, responseCode, transactionStatus string) map[string]string {
	params := map[string]string{
		ParamAmount:            redirect.Params[ParamAmount],
		ParamBankCode:          "NCB",
		ParamBankTranNo:        "VNP14012345",
		ParamOrderInfo:         redirect.Params[ParamOrderInfo],
		ParamPayDate:           "20240501103512",
		ParamResponseCode:      responseCode,
		ParamTmnCode:           redirect.Params[ParamTmnCode],
		ParamTransactionNo:     "14012345",
		ParamTransactionStatus: transactionStatus,
		ParamTxnRef:            redirect.TxnRef,
		"vnp_CardType":         "ATM",
	}
	params[ParamSecureHash] = Sign(testSecret, Canonicalize(params))
	params[ParamSecureHashType] = "HmacSHA512"
	return params
}
