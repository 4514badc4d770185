package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/lootbay/marketplace-backend/pkg/logger"
)

// AutoReleaseJobParams configure the settlement sweeper.
type AutoReleaseJobParams struct {
	Logger     *logger.Logger
	Orders     staleOrderReader
	Settlement autoReleaser
	After      time.Duration
	Batch      int
}

// NewAutoReleaseJob completes DELIVERED orders nobody disputed within After
// and releases the seller's held funds.
func NewAutoReleaseJob(params AutoReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if params.After <= 0 {
		return nil, fmt.Errorf("auto release delay must be positive")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultSettlementBatch
	}
	return &autoReleaseJob{
		logg:       params.Logger,
		orders:     params.Orders,
		settlement: params.Settlement,
		after:      params.After,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type autoReleaseJob struct {
	logg       *logger.Logger
	orders     staleOrderReader
	settlement autoReleaser
	after      time.Duration
	batch      int
	now        func() time.Time
}

func (j *autoReleaseJob) Name() string { return "auto-release" }

func (j *autoReleaseJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	due, err := j.orders.Releasable(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query releasable orders: %w", err)
	}
	var (
		errs     error
		released int
	)
	for _, order := range due {
		ok, err := j.settlement.AutoRelease(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release order %s: %w", order.ID, err))
			continue
		}
		if ok {
			released++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"scanned":  len(due),
		"released": released,
	})
	j.logg.Info(logCtx, "auto release loop complete")
	return errs
}
