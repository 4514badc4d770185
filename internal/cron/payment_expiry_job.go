package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/lootbay/marketplace-backend/pkg/logger"
)

const defaultSettlementBatch = 100

// PaymentExpiryJobParams configure the unpaid-order sweeper.
type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	Orders   staleOrderReader
	Payments paymentExpirer
	Window   time.Duration
	Batch    int
}

// NewPaymentExpiryJob cancels orders left CREATED or AWAITING_PAYMENT past the
// payment window. Each order is expired in its own transaction.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Window <= 0 {
		return nil, fmt.Errorf("payment window must be positive")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultSettlementBatch
	}
	return &paymentExpiryJob{
		logg:     params.Logger,
		orders:   params.Orders,
		payments: params.Payments,
		window:   params.Window,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	orders   staleOrderReader
	payments paymentExpirer
	window   time.Duration
	batch    int
	now      func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	stale, err := j.orders.StaleUnpaid(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale orders: %w", err)
	}
	var (
		errs    error
		expired int
	)
	for _, order := range stale {
		ok, err := j.payments.Expire(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if ok {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": len(stale),
		"expired": expired,
	})
	j.logg.Info(logCtx, "payment expiry loop complete")
	return errs
}
