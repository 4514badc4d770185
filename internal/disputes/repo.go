package disputes

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

// openIndex is the partial unique index allowing one OPEN dispute per order.
const openIndex = "ux_disputes_open_order"

// CloseInput describes the final state of a dispute.
type CloseInput struct {
	Status     enums.DisputeStatus
	Action     enums.DisputeAction
	Note       string
	ResolvedBy *uuid.UUID
	At         time.Time
}

// Repository persists disputes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dispute *models.Dispute) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	Close(ctx context.Context, id uuid.UUID, input CloseInput) (bool, error)
	ListByStatus(ctx context.Context, status enums.DisputeStatus, limit int, cursor *pagination.Cursor) ([]models.Dispute, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a disputes repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, dispute *models.Dispute) error {
	return r.db.WithContext(ctx).Create(dispute).Error
}

func (r *repository) first(query *gorm.DB) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := query.First(&dispute).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	return r.first(r.db.WithContext(ctx).Where("order_id = ? AND status = ?", orderID, enums.DisputeStatusOpen))
}

// Close finalizes an OPEN dispute. False means another resolver got there first.
func (r *repository) Close(ctx context.Context, id uuid.UUID, input CloseInput) (bool, error) {
	updates := map[string]any{
		"status":      input.Status,
		"resolution":  input.Action,
		"resolved_at": input.At,
		"updated_at":  input.At,
	}
	if input.Note != "" {
		updates["resolution_note"] = input.Note
	}
	if input.ResolvedBy != nil {
		updates["resolved_by"] = *input.ResolvedBy
	}
	res := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND status = ?", id, enums.DisputeStatusOpen).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ListByStatus(ctx context.Context, status enums.DisputeStatus, limit int, cursor *pagination.Cursor) ([]models.Dispute, error) {
	query := r.db.WithContext(ctx).Where("status = ?", status)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Dispute
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
