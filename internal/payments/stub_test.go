package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// stubLedger records Open calls and replays queued errors.
type stubLedger struct {
	openErrs []error
	opened   []string
}

func (s *stubLedger) WithTx(*gorm.DB) ledger.Service { return s }

func (s *stubLedger) Open(_ context.Context, input ledger.OpenInput) (*models.PaymentTransaction, error) {
	s.opened = append(s.opened, input.TxnRef)
	if len(s.openErrs) > 0 {
		err := s.openErrs[0]
		s.openErrs = s.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.PaymentTransaction{TxnRef: input.TxnRef, OrderID: input.OrderID}, nil
}

func (s *stubLedger) Get(context.Context, string) (*models.PaymentTransaction, error) {
	return nil, ledger.ErrTransactionNotFound
}

func (s *stubLedger) ListByOrder(context.Context, uuid.UUID) ([]models.PaymentTransaction, error) {
	return nil, nil
}

func (s *stubLedger) Transition(context.Context, string, ledger.TransitionInput) (bool, error) {
	return false, nil
}

func (s *stubLedger) ListStalePending(context.Context, time.Time, int) ([]models.PaymentTransaction, error) {
	return nil, nil
}
