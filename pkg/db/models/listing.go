package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// Listing is the local projection of a catalog listing.
type Listing struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID     uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Title        string              `gorm:"column:title;not null"`
	PriceCents   int64               `gorm:"column:price_cents;not null"`
	Currency     enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status       enums.ListingStatus `gorm:"column:status;type:text;not null;default:'DRAFT'"`
	DeliveryMode enums.DeliveryMode  `gorm:"column:delivery_mode;type:text;not null;default:'AUTO'"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}
