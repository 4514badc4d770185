package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// Dispute is a buyer or admin challenge against an order.
type Dispute struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	OpenedBy       uuid.UUID            `gorm:"column:opened_by;type:uuid;not null"`
	Status         enums.DisputeStatus  `gorm:"column:status;type:text;not null;default:'OPEN';index"`
	Reason         string               `gorm:"column:reason;not null"`
	Resolution     *enums.DisputeAction `gorm:"column:resolution;type:text"`
	ResolutionNote *string              `gorm:"column:resolution_note"`
	ResolvedBy     *uuid.UUID           `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt     *time.Time           `gorm:"column:resolved_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Dispute) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}
