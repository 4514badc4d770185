package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
)

// Reader is the read-only view of the catalog that settlement needs.
type Reader interface {
	Listing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// GormReader reads listings from the local listings projection.
type GormReader struct {
	db *gorm.DB
}

// NewGormReader binds the reader to a database handle.
func NewGormReader(db *gorm.DB) *GormReader {
	return &GormReader{db: db}
}

func (r *GormReader) Listing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return &listing, nil
}
