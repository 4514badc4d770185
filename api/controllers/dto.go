package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/money"
)

type orderItemResponse struct {
	ID        uuid.UUID    `json:"id"`
	ListingID uuid.UUID    `json:"listing_id"`
	Title     string       `json:"title"`
	UnitPrice money.Amount `json:"unit_price"`
	Code      string       `json:"code,omitempty"`
}

type orderResponse struct {
	ID           uuid.UUID           `json:"id"`
	BuyerID      uuid.UUID           `json:"buyer_id"`
	SellerID     uuid.UUID           `json:"seller_id"`
	ListingID    uuid.UUID           `json:"listing_id"`
	Status       string              `json:"status"`
	DeliveryMode string              `json:"delivery_mode"`
	Total        money.Amount        `json:"total"`
	Items        []orderItemResponse `json:"items,omitempty"`
	PaidAt       *time.Time          `json:"paid_at,omitempty"`
	DeliveredAt  *time.Time          `json:"delivered_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	CancelledAt  *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

func newOrderResponse(order *models.Order, codes map[uuid.UUID]string) *orderResponse {
	if order == nil {
		return nil
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			ListingID: item.ListingID,
			Title:     item.Title,
			UnitPrice: money.NewAmount(item.UnitPriceCents, item.Currency),
			Code:      codes[item.ID],
		})
	}
	return &orderResponse{
		ID:           order.ID,
		BuyerID:      order.BuyerID,
		SellerID:     order.SellerID,
		ListingID:    order.ListingID,
		Status:       string(order.Status),
		DeliveryMode: string(order.DeliveryMode),
		Total:        money.NewAmount(order.TotalAmountCents, order.Currency),
		Items:        items,
		PaidAt:       order.PaidAt,
		DeliveredAt:  order.DeliveredAt,
		CompletedAt:  order.CompletedAt,
		CancelledAt:  order.CancelledAt,
		CreatedAt:    order.CreatedAt,
	}
}

type orderEventResponse struct {
	Type       string     `json:"type"`
	FromStatus string     `json:"from_status"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	ActorRole  string     `json:"actor_role"`
	Note       *string    `json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newOrderEventResponses(events []models.OrderEvent) []orderEventResponse {
	out := make([]orderEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, orderEventResponse{
			Type:       string(event.Type),
			FromStatus: string(event.FromStatus),
			ActorID:    event.ActorID,
			ActorRole:  event.ActorRole,
			Note:       event.Note,
			CreatedAt:  event.CreatedAt,
		})
	}
	return out
}

type paymentResponse struct {
	ID            uuid.UUID    `json:"id"`
	OrderID       uuid.UUID    `json:"order_id"`
	Provider      string       `json:"provider"`
	TxID          string       `json:"txid"`
	Status        string       `json:"status"`
	Amount        money.Amount `json:"amount"`
	ConfirmedAt   *time.Time   `json:"confirmed_at,omitempty"`
	FailureReason *string      `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

func newPaymentResponse(payment *models.Payment) *paymentResponse {
	if payment == nil {
		return nil
	}
	return &paymentResponse{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Provider:      payment.Provider,
		TxID:          payment.TxID,
		Status:        string(payment.Status),
		Amount:        money.NewAmount(payment.AmountCents, payment.Currency),
		ConfirmedAt:   payment.ConfirmedAt,
		FailureReason: payment.FailureReason,
		CreatedAt:     payment.CreatedAt,
	}
}

type disputeResponse struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        uuid.UUID  `json:"order_id"`
	OpenedBy       uuid.UUID  `json:"opened_by"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason"`
	Resolution     string     `json:"resolution,omitempty"`
	ResolutionNote *string    `json:"resolution_note,omitempty"`
	ResolvedBy     *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newDisputeResponse(dispute *models.Dispute) *disputeResponse {
	if dispute == nil {
		return nil
	}
	resp := &disputeResponse{
		ID:             dispute.ID,
		OrderID:        dispute.OrderID,
		OpenedBy:       dispute.OpenedBy,
		Status:         string(dispute.Status),
		Reason:         dispute.Reason,
		ResolutionNote: dispute.ResolutionNote,
		ResolvedBy:     dispute.ResolvedBy,
		ResolvedAt:     dispute.ResolvedAt,
		CreatedAt:      dispute.CreatedAt,
	}
	if dispute.Resolution != nil {
		resp.Resolution = string(*dispute.Resolution)
	}
	return resp
}

type ledgerEntryResponse struct {
	ID          uuid.UUID    `json:"id"`
	OrderID     *uuid.UUID   `json:"order_id,omitempty"`
	Type        string       `json:"type"`
	State       string       `json:"state"`
	Source      string       `json:"source"`
	Amount      money.Amount `json:"amount"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

func newLedgerEntryResponse(entry *models.LedgerEntry) *ledgerEntryResponse {
	if entry == nil {
		return nil
	}
	return &ledgerEntryResponse{
		ID:          entry.ID,
		OrderID:     entry.OrderID,
		Type:        string(entry.Type),
		State:       string(entry.State),
		Source:      string(entry.Source),
		Amount:      money.NewAmount(entry.AmountCents, entry.Currency),
		Description: entry.Description,
		CreatedAt:   entry.CreatedAt,
	}
}

type orderListResponse struct {
	Orders     []*orderResponse `json:"orders"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type disputeListResponse struct {
	Disputes   []*disputeResponse `json:"disputes"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type ledgerListResponse struct {
	Entries    []*ledgerEntryResponse `json:"entries"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type rejectionResponse struct {
	ID        uuid.UUID `json:"id"`
	Provider  string    `json:"provider"`
	Reason    string    `json:"reason"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type rejectionListResponse struct {
	Rejections []rejectionResponse `json:"rejections"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
