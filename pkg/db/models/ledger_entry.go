package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// LedgerEntry is one immutable balance posting. The unique posting index makes
// each (payment, type, state, source) combination single-shot.
type LedgerEntry struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID     *uuid.UUID             `gorm:"column:order_id;type:uuid;index"`
	PaymentID   *uuid.UUID             `gorm:"column:payment_id;type:uuid;uniqueIndex:ux_ledger_entries_posting,priority:1"`
	Type        enums.LedgerEntryType  `gorm:"column:type;type:text;not null;uniqueIndex:ux_ledger_entries_posting,priority:2"`
	State       enums.LedgerEntryState `gorm:"column:state;type:text;not null;uniqueIndex:ux_ledger_entries_posting,priority:3"`
	Source      enums.LedgerSource     `gorm:"column:source;type:text;not null;uniqueIndex:ux_ledger_entries_posting,priority:4"`
	AmountCents int64                  `gorm:"column:amount_cents;not null"`
	Currency    enums.Currency         `gorm:"column:currency;type:text;not null"`
	Description string                 `gorm:"column:description;not null;default:''"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// Signed returns the amount as it contributes to a balance.
func (e LedgerEntry) Signed() int64 {
	if e.Type == enums.LedgerDebit {
		return -e.AmountCents
	}
	return e.AmountCents
}
