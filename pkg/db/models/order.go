package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// Order is the purchase aggregate root.
type Order struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID          uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID         uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index"`
	ListingID        uuid.UUID          `gorm:"column:listing_id;type:uuid;not null"`
	Status           enums.OrderStatus  `gorm:"column:status;type:text;not null;default:'CREATED';index"`
	TotalAmountCents int64              `gorm:"column:total_amount_cents;not null"`
	Currency         enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	DeliveryMode     enums.DeliveryMode `gorm:"column:delivery_mode;type:text;not null;default:'AUTO'"`
	PaidAt           *time.Time         `gorm:"column:paid_at"`
	DeliveredAt      *time.Time         `gorm:"column:delivered_at"`
	CompletedAt      *time.Time         `gorm:"column:completed_at"`
	CancelledAt      *time.Time         `gorm:"column:cancelled_at"`
	Items            []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is an immutable snapshot of one purchased unit.
type OrderItem struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index"`
	ListingID      uuid.UUID      `gorm:"column:listing_id;type:uuid;not null"`
	Title          string         `gorm:"column:title;not null"`
	UnitPriceCents int64          `gorm:"column:unit_price_cents;not null"`
	Currency       enums.Currency `gorm:"column:currency;type:text;not null"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// OrderEvent is one row of the append-only order transition log. Type is the
// status entered, so each status appears at most once per order.
type OrderEvent struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_order_events_order_type,priority:1"`
	Type       enums.OrderStatus `gorm:"column:type;type:text;not null;uniqueIndex:ux_order_events_order_type,priority:2"`
	FromStatus enums.OrderStatus `gorm:"column:from_status;type:text;not null"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	ActorRole  string            `gorm:"column:actor_role;not null;default:'system'"`
	Note       *string           `gorm:"column:note"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (e *OrderEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
