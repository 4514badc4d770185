package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// InventoryItem is one sellable unit of a listing.
type InventoryItem struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ListingID     uuid.UUID             `gorm:"column:listing_id;type:uuid;not null;index:ix_inventory_items_listing_status,priority:1"`
	SealedCode    *string               `gorm:"column:sealed_code"`
	Status        enums.InventoryStatus `gorm:"column:status;type:text;not null;default:'AVAILABLE';index:ix_inventory_items_listing_status,priority:2"`
	OrderItemID   *uuid.UUID            `gorm:"column:order_item_id;type:uuid;uniqueIndex:ux_inventory_items_order_item"`
	ReservedAt    *time.Time            `gorm:"column:reserved_at"`
	ReservedUntil *time.Time            `gorm:"column:reserved_until"`
	DeliveredAt   *time.Time            `gorm:"column:delivered_at"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *InventoryItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// Reclaimable reports whether the unit can be handed to a new order at now.
func (i InventoryItem) Reclaimable(now time.Time) bool {
	switch i.Status {
	case enums.InventoryStatusAvailable:
		return true
	case enums.InventoryStatusReserved:
		return i.ReservedUntil != nil && i.ReservedUntil.Before(now)
	default:
		return false
	}
}
