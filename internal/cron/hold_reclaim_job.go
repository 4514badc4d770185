package cron

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/logger"
)

const (
	defaultReclaimBatch = 500
	maxReclaimRounds    = 20
)

// HoldReclaimJobParams configure the expired-hold sweeper.
type HoldReclaimJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Inventory holdReclaimer
	Batch     int
}

// NewHoldReclaimJob returns expired RESERVED units to AVAILABLE. Reserve also
// reclaims lazily; this keeps availability counts honest between checkouts.
func NewHoldReclaimJob(params HoldReclaimJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory allocator required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultReclaimBatch
	}
	return &holdReclaimJob{
		logg:      params.Logger,
		db:        params.DB,
		inventory: params.Inventory,
		batch:     batch,
	}, nil
}

type holdReclaimJob struct {
	logg      *logger.Logger
	db        txRunner
	inventory holdReclaimer
	batch     int
}

func (j *holdReclaimJob) Name() string { return "hold-reclaim" }

func (j *holdReclaimJob) Run(ctx context.Context) error {
	var total int64
	for round := 0; round < maxReclaimRounds; round++ {
		var reclaimed int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.inventory.ReclaimExpired(ctx, tx, j.batch)
			reclaimed = n
			return err
		})
		if err != nil {
			return fmt.Errorf("reclaim expired holds: %w", err)
		}
		total += reclaimed
		if reclaimed < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "reclaimed", total), "hold reclaim complete")
	return nil
}
