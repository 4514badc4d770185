package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lootbay/marketplace-backend/pkg/db"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// Repository is the only writer of inventory_items.status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Candidates(ctx context.Context, listingID uuid.UUID, now time.Time, limit int) ([]uuid.UUID, error)
	Claim(ctx context.Context, unitID, orderItemID uuid.UUID, now, until time.Time) (bool, error)
	FindByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*models.InventoryItem, error)
	Release(ctx context.Context, orderItemID uuid.UUID, now time.Time) (bool, error)
	Pin(ctx context.Context, orderItemID uuid.UUID, now time.Time) (bool, error)
	MarkDelivered(ctx context.Context, orderItemID uuid.UUID, now time.Time) (bool, error)
	ReclaimExpired(ctx context.Context, now time.Time, limit int) (int64, error)
	CountAvailable(ctx context.Context, listingID uuid.UUID, now time.Time) (int64, error)
	Create(ctx context.Context, units []models.InventoryItem) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

const reclaimableCondition = "(status = ? OR (status = ? AND reserved_until IS NOT NULL AND reserved_until < ?))"

func reclaimableArgs(now time.Time) []any {
	return []any{enums.InventoryStatusAvailable, enums.InventoryStatusReserved, now}
}

func (r *repository) Candidates(ctx context.Context, listingID uuid.UUID, now time.Time, limit int) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("listing_id = ?", listingID).
		Where(reclaimableCondition, reclaimableArgs(now)...).
		Order("created_at ASC, id ASC").
		Limit(limit)
	if db.IsPostgres(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var ids []uuid.UUID
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Claim flips a single unit to RESERVED only if it is still reclaimable at the
// moment of the update. A false result means another caller won the unit.
func (r *repository) Claim(ctx context.Context, unitID, orderItemID uuid.UUID, now, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", unitID).
		Where(reclaimableCondition, reclaimableArgs(now)...).
		Updates(map[string]any{
			"status":         enums.InventoryStatusReserved,
			"order_item_id":  orderItemID,
			"reserved_at":    now,
			"reserved_until": until,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("order_item_id = ?", orderItemID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) Release(ctx context.Context, orderItemID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("order_item_id = ? AND status = ?", orderItemID, enums.InventoryStatusReserved).
		Updates(map[string]any{
			"status":         enums.InventoryStatusAvailable,
			"order_item_id":  nil,
			"reserved_at":    nil,
			"reserved_until": nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Pin clears the hold expiry of a paid unit so reclaim never touches it.
func (r *repository) Pin(ctx context.Context, orderItemID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("order_item_id = ? AND status = ?", orderItemID, enums.InventoryStatusReserved).
		Updates(map[string]any{
			"reserved_until": nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkDelivered(ctx context.Context, orderItemID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("order_item_id = ? AND status = ?", orderItemID, enums.InventoryStatusReserved).
		Updates(map[string]any{
			"status":         enums.InventoryStatusDelivered,
			"reserved_until": nil,
			"delivered_at":   now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReclaimExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	expired := r.db.
		Model(&models.InventoryItem{}).
		Select("id").
		Where("status = ? AND reserved_until IS NOT NULL AND reserved_until < ?", enums.InventoryStatusReserved, now).
		Limit(limit)

	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id IN (?)", expired).
		Where("status = ? AND reserved_until IS NOT NULL AND reserved_until < ?", enums.InventoryStatusReserved, now).
		Updates(map[string]any{
			"status":         enums.InventoryStatusAvailable,
			"order_item_id":  nil,
			"reserved_at":    nil,
			"reserved_until": nil,
			"updated_at":     now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CountAvailable(ctx context.Context, listingID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("listing_id = ?", listingID).
		Where(reclaimableCondition, reclaimableArgs(now)...).
		Count(&count).Error
	return count, err
}

func (r *repository) Create(ctx context.Context, units []models.InventoryItem) error {
	if len(units) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&units).Error
}
