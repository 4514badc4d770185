package payments

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

// Repository persists payments and rejected webhook deliveries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByTxID(ctx context.Context, provider, txid string) (*models.Payment, error)
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error)
	CreateRejection(ctx context.Context, rejection *models.WebhookRejection) error
	ListRejections(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.WebhookRejection, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a payments repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) first(query *gorm.DB) (*models.Payment, error) {
	var payment models.Payment
	if err := query.First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByTxID(ctx context.Context, provider, txid string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("provider = ? AND txid = ?", provider, txid))
}

func (r *repository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Order("created_at DESC"))
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at DESC"))
}

// MarkConfirmed flips PENDING to CONFIRMED. False means the payment already
// left PENDING.
func (r *repository) MarkConfirmed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":       enums.PaymentStatusConfirmed,
			"confirmed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkFailed flips PENDING to FAILED with reason.
func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failed_at":      now,
			"failure_reason": reason,
			"updated_at":     now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) CreateRejection(ctx context.Context, rejection *models.WebhookRejection) error {
	return r.db.WithContext(ctx).Create(rejection).Error
}

func (r *repository) ListRejections(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.WebhookRejection, error) {
	query := r.db.WithContext(ctx).Model(&models.WebhookRejection{})
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.WebhookRejection
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
