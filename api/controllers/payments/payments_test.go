package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	paymentsvc "github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type stubPaymentService struct {
	lastInput paymentsvc.CreatePaymentInput
	redirect  *paymentsvc.Redirect
	txn       *models.PaymentTransaction
	err       error
}

func (s *stubPaymentService) CreatePayment(_ context.Context, input paymentsvc.CreatePaymentInput) (*paymentsvc.Redirect, error) {
	s.lastInput = input
	return s.redirect, s.err
}

func (s *stubPaymentService) Transaction(_ context.Context, _ uuid.UUID, _ string) (*models.PaymentTransaction, error) {
	return s.txn, s.err
}

type stubVerifier struct {
	result    *paymentsvc.Result
	err       error
	ipn       paymentsvc.IPNResponse
	seen      map[string]string
	cancelled string
}

func (s *stubVerifier) Verify(_ context.Context, params map[string]string) (*paymentsvc.Result, error) {
	s.seen = params
	return s.result, s.err
}

func (s *stubVerifier) Cancel(_ context.Context, txnRef string) (*paymentsvc.Result, error) {
	s.cancelled = txnRef
	return s.result, s.err
}

func (s *stubVerifier) HandleIPN(_ context.Context, params map[string]string) paymentsvc.IPNResponse {
	s.seen = params
	return s.ipn
}

var pages = config.PaymentsConfig{
	SuccessPageURL: "https://shop.example/checkout/success",
	FailurePageURL: "https://shop.example/checkout/failure?from=gateway",
	PendingPageURL: "/checkout/pending",
}

func TestCreatePayment_ReturnsRedirect(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubPaymentService{redirect: &paymentsvc.Redirect{URL: "https://gw.example/pay?x=1", TxnRef: "ref-1"}}

	body := `{"order_id":"` + orderID.String() + `","locale":"en"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5000"
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	resp := httptest.NewRecorder()

	CreatePayment(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, userID, svc.lastInput.UserID)
	assert.Equal(t, orderID, svc.lastInput.OrderID)
	assert.Equal(t, "203.0.113.7", svc.lastInput.ClientIP)
	assert.Equal(t, "en", svc.lastInput.Locale)

	var envelope struct {
		Data CreatePaymentResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "ref-1", envelope.Data.TxnRef)
	assert.Equal(t, "https://gw.example/pay?x=1", envelope.Data.PaymentURL)
}

func TestCreatePayment_RejectsBadLocale(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{"order_id":"`+uuid.NewString()+`","locale":"fr"}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()

	CreatePayment(&stubPaymentService{}, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreatePayment_RequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	CreatePayment(&stubPaymentService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPaymentStatus_RendersView(t *testing.T) {
	code := "00"
	done := time.Date(2024, 5, 1, 3, 31, 0, 0, time.UTC)
	svc := &stubPaymentService{txn: &models.PaymentTransaction{
		TxnRef:        "ref-1",
		OrderID:       uuid.New(),
		Status:        enums.TransactionStatusSuccess,
		Amount:        decimal.RequireFromString("125000.50"),
		Currency:      "VND",
		ResponseCode:  &code,
		CompletedAt:   &done,
		RequestParams: map[string]string{"vnp_SecureHash": "abc"},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/ref-1", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("txnRef", "ref-1")
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	req = req.WithContext(middleware.WithUserID(ctx, uuid.NewString()))
	resp := httptest.NewRecorder()

	PaymentStatus(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"success"`)
	assert.NotContains(t, resp.Body.String(), "vnp_SecureHash")
}

func TestGatewayReturn_RedirectsByOutcome(t *testing.T) {
	tests := []struct {
		name   string
		result *paymentsvc.Result
		err    error
		want   string
	}{
		{name: "success", result: &paymentsvc.Result{Status: enums.TransactionStatusSuccess}, want: "https://shop.example/checkout/success?txn_ref=ref-1"},
		{name: "declined", result: &paymentsvc.Result{Status: enums.TransactionStatusFailed}, want: "https://shop.example/checkout/failure?from=gateway&txn_ref=ref-1"},
		{name: "in flight", result: &paymentsvc.Result{Status: enums.TransactionStatusProcessing}, want: "/checkout/pending?txn_ref=ref-1"},
		{name: "forged", result: &paymentsvc.Result{Status: enums.TransactionStatusFailed}, err: paymentsvc.ErrSignatureMismatch, want: "https://shop.example/checkout/failure?from=gateway&txn_ref=ref-1"},
		{name: "unknown ref", result: &paymentsvc.Result{}, err: paymentsvc.ErrTransactionNotFound, want: "https://shop.example/checkout/failure?from=gateway&txn_ref=ref-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &stubVerifier{result: tt.result, err: tt.err}
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/return?vnp_TxnRef=ref-1&vnp_ResponseCode=00&vnp_SecureHash=abc", nil)
			resp := httptest.NewRecorder()

			GatewayReturn(verifier, pages, nil).ServeHTTP(resp, req)

			require.Equal(t, http.StatusFound, resp.Code)
			assert.Equal(t, tt.want, resp.Header().Get("Location"))
			assert.Equal(t, "abc", verifier.seen["vnp_SecureHash"])
		})
	}
}

func TestGatewayReturn_LandingCarriesOnlyTxnRef(t *testing.T) {
	verifier := &stubVerifier{result: &paymentsvc.Result{Status: enums.TransactionStatusSuccess}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/return?vnp_TxnRef=ref-1&vnp_Amount=100&vnp_SecureHash=abc", nil)
	resp := httptest.NewRecorder()

	GatewayReturn(verifier, pages, nil).ServeHTTP(resp, req)

	loc, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, url.Values{"txn_ref": {"ref-1"}}, loc.Query())
}

func TestGatewayCancel(t *testing.T) {
	verifier := &stubVerifier{result: &paymentsvc.Result{Status: enums.TransactionStatusCancelled}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/cancel?vnp_TxnRef=ref-9", nil)
	resp := httptest.NewRecorder()

	GatewayCancel(verifier, pages, nil).ServeHTTP(resp, req)

	assert.Equal(t, "ref-9", verifier.cancelled)
	assert.Equal(t, "https://shop.example/checkout/failure?from=gateway&txn_ref=ref-9", resp.Header().Get("Location"))
}

func TestGatewayIPN_WritesGatewayShape(t *testing.T) {
	verifier := &stubVerifier{ipn: paymentsvc.IPNResponse{RspCode: "97", Message: "Invalid signature"}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/ipn?vnp_TxnRef=ref-1", nil)
	resp := httptest.NewRecorder()

	GatewayIPN(verifier).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"RspCode":"97","Message":"Invalid signature"}`, resp.Body.String())
	assert.Equal(t, "ref-1", verifier.seen["vnp_TxnRef"])
}
