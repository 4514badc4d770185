package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// Payment is the provider-side charge for an order.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	PayerID       uuid.UUID           `gorm:"column:payer_id;type:uuid;not null"`
	Provider      string              `gorm:"column:provider;not null;uniqueIndex:ux_payments_provider_txid,priority:1"`
	TxID          string              `gorm:"column:txid;not null;uniqueIndex:ux_payments_provider_txid,priority:2"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	AmountCents   int64               `gorm:"column:amount_cents;not null"`
	Currency      enums.Currency      `gorm:"column:currency;type:text;not null"`
	ConfirmedAt   *time.Time          `gorm:"column:confirmed_at"`
	FailedAt      *time.Time          `gorm:"column:failed_at"`
	FailureReason *string             `gorm:"column:failure_reason"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// WebhookRejection keeps a malformed provider delivery for manual inspection.
type WebhookRejection struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Provider  string    `gorm:"column:provider;not null"`
	Reason    string    `gorm:"column:reason;not null"`
	Payload   string    `gorm:"column:payload;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (r *WebhookRejection) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
