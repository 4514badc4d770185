package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once checkout hands the buyer a payment txid.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID      `json:"order_id"`
	BuyerID          uuid.UUID      `json:"buyer_id"`
	SellerID         uuid.UUID      `json:"seller_id"`
	ListingID        uuid.UUID      `json:"listing_id"`
	Quantity         int            `json:"quantity"`
	TotalAmountCents int64          `json:"total_amount_cents"`
	Currency         enums.Currency `json:"currency"`
	PaymentID        uuid.UUID      `json:"payment_id"`
	TxID             string         `json:"txid"`
}

// OrderStatusEvent covers every order transition after creation.
type OrderStatusEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	SellerID   uuid.UUID         `json:"seller_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Reason     string            `json:"reason,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// OrderPaidEvent carries the settlement facts of a confirmed payment.
type OrderPaidEvent struct {
	OrderID          uuid.UUID      `json:"order_id"`
	PaymentID        uuid.UUID      `json:"payment_id"`
	TxID             string         `json:"txid"`
	SellerID         uuid.UUID      `json:"seller_id"`
	TotalAmountCents int64          `json:"total_amount_cents"`
	Currency         enums.Currency `json:"currency"`
	PaidAt           time.Time      `json:"paid_at"`
}

// PaymentFailedEvent reports a provider-side failure or an expired payment.
type PaymentFailedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	TxID      string    `json:"txid"`
	Reason    string    `json:"reason"`
}

// DisputeResolvedEvent is emitted when an admin closes a dispute.
type DisputeResolvedEvent struct {
	DisputeID  uuid.UUID           `json:"dispute_id"`
	OrderID    uuid.UUID           `json:"order_id"`
	Action     enums.DisputeAction `json:"action"`
	Status     enums.DisputeStatus `json:"status"`
	ResolvedBy uuid.UUID           `json:"resolved_by"`
	Note       string              `json:"note"`
}

// PayoutRequestedEvent asks the payout rail to move available funds.
type PayoutRequestedEvent struct {
	EntryID     uuid.UUID      `json:"entry_id"`
	SellerID    uuid.UUID      `json:"seller_id"`
	AmountCents int64          `json:"amount_cents"`
	Currency    enums.Currency `json:"currency"`
}
