package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/db"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

const postingIndex = "ux_ledger_entries_posting"

// ErrDuplicatePosting reports that the (payment, type, state, source) posting
// already exists.
var ErrDuplicatePosting = errors.New("ledger posting already exists")

// Repository appends and aggregates ledger entries. Entries are never updated.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *models.LedgerEntry) error
	FindPosting(ctx context.Context, paymentID uuid.UUID, entryType enums.LedgerEntryType, state enums.LedgerEntryState, source enums.LedgerSource) (*models.LedgerEntry, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error)
	Sum(ctx context.Context, userID uuid.UUID, currency enums.Currency, state enums.LedgerEntryState) (int64, error)
	LockUser(ctx context.Context, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Insert writes the entry behind a savepoint so a duplicate posting leaves the
// surrounding transaction usable. Duplicates surface as ErrDuplicatePosting.
func (r *repository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	conn := r.db.WithContext(ctx)
	const savepoint = "ledger_posting"
	if err := conn.SavePoint(savepoint).Error; err != nil {
		return err
	}
	if err := conn.Create(entry).Error; err != nil {
		if db.IsUniqueViolation(err, postingIndex) {
			if rbErr := conn.RollbackTo(savepoint).Error; rbErr != nil {
				return rbErr
			}
			return ErrDuplicatePosting
		}
		return err
	}
	return nil
}

func (r *repository) FindPosting(ctx context.Context, paymentID uuid.UUID, entryType enums.LedgerEntryType, state enums.LedgerEntryState, source enums.LedgerSource) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND type = ? AND state = ? AND source = ?", paymentID, entryType, state, source).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var entries []models.LedgerEntry
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Sum is the signed balance of one state: credits minus debits.
func (r *repository) Sum(ctx context.Context, userID uuid.UUID, currency enums.Currency, state enums.LedgerEntryState) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount_cents ELSE -amount_cents END), 0)", enums.LedgerCredit).
		Where("user_id = ? AND currency = ? AND state = ?", userID, currency, state).
		Scan(&total).Error
	return total, err
}

// LockUser serializes balance-checked writes for one user until the
// transaction ends. It is a no-op outside Postgres.
func (r *repository) LockUser(ctx context.Context, userID uuid.UUID) error {
	if !db.IsPostgres(r.db) {
		return nil
	}
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "ledger:"+userID.String()).Error
}
