package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/tracing"
)

const (
	defaultClaimRounds    = 3
	defaultCandidateBatch = 5
)

// Allocator hands individual inventory units to order items.
type Allocator struct {
	repo   Repository
	logg   *logger.Logger
	now    func() time.Time
	rounds int
	batch  int
}

// AllocatorParams wires allocator dependencies.
type AllocatorParams struct {
	Repository Repository
	Logger     *logger.Logger
	// Now overrides the clock; tests use it to age holds.
	Now func() time.Time
}

// NewAllocator validates dependencies and builds an allocator.
func NewAllocator(params AllocatorParams) (*Allocator, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Allocator{
		repo:   params.Repository,
		logg:   params.Logger,
		now:    now,
		rounds: defaultClaimRounds,
		batch:  defaultCandidateBatch,
	}, nil
}

func (a *Allocator) clock() time.Time {
	return a.now().UTC().Truncate(time.Microsecond)
}

// Reserve allocates one unit of listingID to orderItemID for holdDuration.
// Expired holds are treated as available. When every candidate is lost to a
// concurrent caller the result is an OUT_OF_STOCK error.
func (a *Allocator) Reserve(ctx context.Context, tx *gorm.DB, listingID, orderItemID uuid.UUID, holdDuration time.Duration) (item *models.InventoryItem, err error) {
	if holdDuration <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold duration must be positive")
	}
	ctx, span := tracing.Start(ctx, "inventory.reserve",
		attribute.String("listing_id", listingID.String()),
		attribute.String("order_item_id", orderItemID.String()),
	)
	defer func() { tracing.End(span, err) }()

	repo := a.repo.WithTx(tx)

	existing, err := repo.FindByOrderItem(ctx, orderItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup existing hold")
	}
	if existing != nil {
		if existing.ListingID != listingID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order item already holds a unit of another listing")
		}
		return existing, nil
	}

	for round := 0; round < a.rounds; round++ {
		now := a.clock()
		candidates, err := repo.Candidates(ctx, listingID, now, a.batch)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select inventory candidates")
		}
		if len(candidates) == 0 {
			break
		}
		until := now.Add(holdDuration)
		for _, unitID := range candidates {
			claimed, err := repo.Claim(ctx, unitID, orderItemID, now, until)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim inventory unit")
			}
			if !claimed {
				continue
			}
			unit, err := repo.FindByOrderItem(ctx, orderItemID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload claimed unit")
			}
			if unit == nil {
				return nil, pkgerrors.New(pkgerrors.CodeInternal, "claimed unit vanished")
			}
			return unit, nil
		}
	}

	logCtx := a.logg.WithFields(ctx, map[string]any{
		"listing_id":    listingID.String(),
		"order_item_id": orderItemID.String(),
	})
	a.logg.Info(logCtx, "inventory.out_of_stock")
	return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "out of stock").
		WithDetails(map[string]any{"listing_id": listingID.String()})
}

// Release returns a RESERVED unit to AVAILABLE. It reports false when the item
// holds nothing, which makes repeated releases harmless.
func (a *Allocator) Release(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (bool, error) {
	released, err := a.repo.WithTx(tx).Release(ctx, orderItemID, a.clock())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release inventory hold")
	}
	return released, nil
}

// MarkDelivered moves the unit held by orderItemID to DELIVERED. Delivery is
// terminal; calling it again returns the delivered unit.
func (a *Allocator) MarkDelivered(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (*models.InventoryItem, error) {
	repo := a.repo.WithTx(tx)
	if _, err := repo.MarkDelivered(ctx, orderItemID, a.clock()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark inventory delivered")
	}
	unit, err := repo.FindByOrderItem(ctx, orderItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload delivered unit")
	}
	if unit == nil || unit.Status != enums.InventoryStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "inventory hold lost").
			WithDetails(map[string]any{"order_item_id": orderItemID.String()})
	}
	return unit, nil
}

// Secure makes the hold of a paid order item permanent. If the hold expired and
// was reclaimed, a fresh unit of the listing is claimed instead. It reports
// false when no unit could be secured.
func (a *Allocator) Secure(ctx context.Context, tx *gorm.DB, listingID, orderItemID uuid.UUID) (bool, error) {
	repo := a.repo.WithTx(tx)
	now := a.clock()
	pinned, err := repo.Pin(ctx, orderItemID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pin inventory hold")
	}
	if pinned {
		return true, nil
	}
	if unit, err := repo.FindByOrderItem(ctx, orderItemID); err == nil && unit != nil && unit.Status == enums.InventoryStatusDelivered {
		return true, nil
	}

	if _, err := a.Reserve(ctx, tx, listingID, orderItemID, time.Minute); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock) {
			return false, nil
		}
		return false, err
	}
	if _, err := repo.Pin(ctx, orderItemID, now); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pin inventory hold")
	}
	return true, nil
}

// ReclaimExpired returns up to limit expired holds to AVAILABLE.
func (a *Allocator) ReclaimExpired(ctx context.Context, tx *gorm.DB, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	n, err := a.repo.WithTx(tx).ReclaimExpired(ctx, a.clock(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reclaim expired holds")
	}
	return n, nil
}

// CountAvailable counts units a new reservation could claim right now.
func (a *Allocator) CountAvailable(ctx context.Context, listingID uuid.UUID) (int64, error) {
	n, err := a.repo.CountAvailable(ctx, listingID, a.clock())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count available inventory")
	}
	return n, nil
}
