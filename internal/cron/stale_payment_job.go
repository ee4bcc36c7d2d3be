package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultStaleAfter = 30 * time.Minute
	defaultBatchSize  = 100
	staleErrorDetail  = "expired without gateway callback"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StalePaymentJobParams configure the abandoned-checkout sweeper.
type StalePaymentJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Ledger     ledger.Service
	Orders     orders.Repository
	Metrics    *metrics.PaymentMetrics
	StaleAfter time.Duration
	BatchSize  int
}

// NewStalePaymentJob builds the job that fails pending payment attempts the
// gateway never called back about.
func NewStalePaymentJob(params StalePaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &stalePaymentJob{
		logg:       params.Logger,
		db:         params.DB,
		ledger:     params.Ledger,
		orders:     params.Orders,
		metrics:    params.Metrics,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type stalePaymentJob struct {
	logg       *logger.Logger
	db         txRunner
	ledger     ledger.Service
	orders     orders.Repository
	metrics    *metrics.PaymentMetrics
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *stalePaymentJob) Name() string { return "stale-payments" }

func (j *stalePaymentJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	txns, err := j.ledger.ListStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale payments: %w", err)
	}

	var errs error
	expired := 0
	for _, txn := range txns {
		moved, err := j.expire(ctx, txn)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", txn.TxnRef, err))
			continue
		}
		if moved {
			expired++
			j.metrics.IncCallback(enums.TransactionStatusFailed.String())
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"event":   "payment.stale.swept",
		"scanned": len(txns),
		"expired": expired,
		"cutoff":  cutoff.Format(time.RFC3339),
	})
	j.logg.Info(logCtx, "stale payment sweep complete")
	return errs
}

// expire fails one attempt and its order together. A callback that lands
// first wins and the attempt is left alone. A paid order stays paid.
func (j *stalePaymentJob) expire(ctx context.Context, txn models.PaymentTransaction) (bool, error) {
	var moved bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		moved, err = j.ledger.WithTx(tx).Transition(ctx, txn.TxnRef, ledger.TransitionInput{
			Status:      enums.TransactionStatusFailed,
			ErrorDetail: staleErrorDetail,
		})
		if err != nil || !moved {
			return err
		}
		updated, err := j.orders.WithTx(tx).UpdatePaymentStatus(ctx, txn.OrderID, enums.PaymentStatusFailed, j.now().UTC())
		if err == nil && !updated {
			j.logg.Info(j.logg.WithTxnRef(ctx, txn.TxnRef), "order already paid by another attempt, order left unchanged")
		}
		return err
	})
	return moved, err
}
