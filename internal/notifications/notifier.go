// Package notifications delivers user-facing messages after a state change
// commits. Delivery is fire-and-forget: failures are logged, never returned to
// the business operation.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/money"
)

// Kind names the message template.
type Kind string

const (
	KindPaymentConfirmed Kind = "payment_confirmed"
	KindOrderDelivered   Kind = "order_delivered"
	KindPayoutConfirmed  Kind = "payout_confirmed"
	KindRefundIssued     Kind = "refund_issued"
)

// Message is one notification for one recipient.
type Message struct {
	Kind        Kind           `json:"kind"`
	UserID      uuid.UUID      `json:"user_id"`
	OrderID     *uuid.UUID     `json:"order_id,omitempty"`
	AmountCents int64          `json:"amount_cents"`
	Currency    enums.Currency `json:"currency"`
	Text        string         `json:"text"`
	SentAt      time.Time      `json:"sent_at"`
}

// Notifier is the outbound notification port.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Dispatcher sends messages and swallows delivery failures.
type Dispatcher struct {
	notifier Notifier
	logg     *logger.Logger
}

// NewDispatcher wraps notifier. A nil notifier drops every message.
func NewDispatcher(notifier Notifier, logg *logger.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, logg: logg}
}

// Send delivers each message; call it only after the transaction committed.
func (d *Dispatcher) Send(ctx context.Context, msgs ...Message) {
	if d == nil || d.notifier == nil {
		return
	}
	for _, msg := range msgs {
		if msg.SentAt.IsZero() {
			msg.SentAt = time.Now().UTC()
		}
		if err := d.notifier.Notify(ctx, msg); err != nil && d.logg != nil {
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"kind":    msg.Kind,
				"user_id": msg.UserID.String(),
			})
			d.logg.Error(logCtx, "notification delivery failed", err)
		}
	}
}

// PaymentConfirmed tells the buyer their payment landed.
func PaymentConfirmed(buyerID, orderID uuid.UUID, cents int64, currency enums.Currency) Message {
	return orderMessage(KindPaymentConfirmed, buyerID, orderID, cents, currency,
		"Payment of "+money.Format(cents, currency)+" confirmed")
}

// OrderDelivered tells the buyer their items are ready.
func OrderDelivered(buyerID, orderID uuid.UUID, cents int64, currency enums.Currency) Message {
	return orderMessage(KindOrderDelivered, buyerID, orderID, cents, currency,
		"Your order has been delivered")
}

// PayoutConfirmed tells the seller funds became available or were paid out.
func PayoutConfirmed(sellerID uuid.UUID, orderID *uuid.UUID, cents int64, currency enums.Currency) Message {
	return Message{
		Kind:        KindPayoutConfirmed,
		UserID:      sellerID,
		OrderID:     orderID,
		AmountCents: cents,
		Currency:    currency,
		Text:        "Payout of " + money.Format(cents, currency) + " confirmed",
	}
}

// RefundIssued tells the buyer their money is coming back.
func RefundIssued(buyerID, orderID uuid.UUID, cents int64, currency enums.Currency) Message {
	return orderMessage(KindRefundIssued, buyerID, orderID, cents, currency,
		"Refund of "+money.Format(cents, currency)+" issued")
}

func orderMessage(kind Kind, userID, orderID uuid.UUID, cents int64, currency enums.Currency, text string) Message {
	id := orderID
	return Message{
		Kind:        kind,
		UserID:      userID,
		OrderID:     &id,
		AmountCents: cents,
		Currency:    currency,
		Text:        text,
	}
}
