package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their event log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, now time.Time) (bool, error)
	AppendEvent(ctx context.Context, event *models.OrderEvent) error
	HasEvent(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (bool, error)
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
	ListByParty(ctx context.Context, column string, partyID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	FindStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindReleasable(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves the order only if it is still in from. A false result
// means another writer changed the order first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if column := timestampColumn(to); column != "" {
		updates[column] = now
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendEvent(ctx context.Context, event *models.OrderEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) HasEvent(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderEvent{}).
		Where("order_id = ? AND type = ?", orderID, status).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	var events []models.OrderEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

// ListByParty pages orders where column (buyer_id or seller_id) matches,
// newest first. It fetches limit rows; callers add one to detect a next page.
func (r *repository) ListByParty(ctx context.Context, column string, partyID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where(column+" = ?", partyID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var orders []models.Order
	err := query.
		Preload("Items").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// FindStaleUnpaid returns CREATED and AWAITING_PAYMENT orders created before
// cutoff.
func (r *repository) FindStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusAwaitingPayment}, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// FindReleasable returns DELIVERED orders delivered before cutoff that have no
// open dispute.
func (r *repository) FindReleasable(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND delivered_at IS NOT NULL AND delivered_at < ?", enums.OrderStatusDelivered, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM disputes d WHERE d.order_id = orders.id AND d.status = ?)", enums.DisputeStatusOpen).
		Order("delivered_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
