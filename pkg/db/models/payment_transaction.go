package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PaymentTransaction is the ledger entry for one gateway payment attempt,
// keyed by the transaction reference sent to the gateway.
type PaymentTransaction struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TxnRef         string                  `gorm:"column:txn_ref;not null;uniqueIndex:payment_transactions_txn_ref_key"`
	OrderID        uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Provider       string                  `gorm:"column:provider;not null;default:'vnpay'"`
	Amount         decimal.Decimal         `gorm:"column:amount;type:numeric(18,2);not null"`
	AmountMinor    int64                   `gorm:"column:amount_minor;not null"`
	Currency       string                  `gorm:"column:currency;not null"`
	RequestParams  map[string]string       `gorm:"column:request_params;type:jsonb;serializer:json"`
	ResponseParams map[string]string       `gorm:"column:response_params;type:jsonb;serializer:json"`
	Status         enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`
	ResponseCode   *string                 `gorm:"column:response_code"`
	GatewayTxnNo   *string                 `gorm:"column:gateway_txn_no"`
	BankCode       *string                 `gorm:"column:bank_code"`
	ErrorDetail    *string                 `gorm:"column:error_detail"`
	CompletedAt    *time.Time              `gorm:"column:completed_at"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }
