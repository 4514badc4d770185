package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/outbox/payloads"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

// Actor identifies who drives a transition. The zero value is the system.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// SystemActor is used by webhooks and background jobs.
var SystemActor = Actor{}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// Label is the role recorded on order events.
func (a Actor) Label() string {
	if a.Role == "" {
		return "system"
	}
	return string(a.Role)
}

func (a Actor) ref() *outbox.Actor {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.Actor{UserID: a.UserID, Role: a.Label()}
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// Service owns order creation, the transition log, and order reads.
type Service struct {
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// ServiceParams wires order service dependencies.
type ServiceParams struct {
	Repository Repository
	Outbox     outboxPublisher
	Logger     *logger.Logger
	Now        func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   params.Repository,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateInput describes a new order for quantity units of one listing.
type CreateInput struct {
	BuyerID  uuid.UUID
	Listing  *models.Listing
	Quantity int
}

// Create inserts a CREATED order with one immutable snapshot per unit.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error) {
	if input.Listing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	listing := input.Listing
	items := make([]models.OrderItem, 0, input.Quantity)
	for i := 0; i < input.Quantity; i++ {
		items = append(items, models.OrderItem{
			ListingID:      listing.ID,
			Title:          listing.Title,
			UnitPriceCents: listing.PriceCents,
			Currency:       listing.Currency,
		})
	}
	order := &models.Order{
		BuyerID:          input.BuyerID,
		SellerID:         listing.SellerID,
		ListingID:        listing.ID,
		Status:           enums.OrderStatusCreated,
		TotalAmountCents: listing.PriceCents * int64(input.Quantity),
		Currency:         listing.Currency,
		DeliveryMode:     listing.DeliveryMode,
		Items:            items,
	}

	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	buyer := input.BuyerID
	if err := repo.AppendEvent(ctx, &models.OrderEvent{
		OrderID:   order.ID,
		Type:      enums.OrderStatusCreated,
		ActorID:   &buyer,
		ActorRole: string(enums.RoleBuyer),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order event")
	}
	return order, nil
}

// TransitionResult reports what a transition did. Applied is false when the
// order had already entered the target status.
type TransitionResult struct {
	Order   *models.Order
	From    enums.OrderStatus
	Applied bool
}

// Transition moves an order to status to inside tx. The OrderEvent log makes
// it idempotent: a status already entered is reported with Applied=false.
func (s *Service) Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus, actor Actor, note string) (*TransitionResult, error) {
	repo := s.repo.WithTx(tx)
	order, err := s.load(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, tx, repo, order, to, actor, note)
}

func (s *Service) transition(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, to enums.OrderStatus, actor Actor, note string) (*TransitionResult, error) {
	from := order.Status
	seen, err := repo.HasEvent(ctx, order.ID, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order event")
	}
	if seen {
		return &TransitionResult{Order: order, From: from, Applied: false}, nil
	}
	if err := checkTransition(from, to); err != nil {
		return nil, err
	}

	now := s.clock()
	moved, err := repo.UpdateStatus(ctx, order.ID, from, to, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "order changed concurrently").
			WithDetails(map[string]any{"order_id": order.ID.String(), "expected": from})
	}

	event := &models.OrderEvent{
		OrderID:    order.ID,
		Type:       to,
		FromStatus: from,
		ActorRole:  actor.Label(),
	}
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		event.ActorID = &id
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		event.Note = &trimmed
	}
	if err := repo.AppendEvent(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order event")
	}

	applyStatus(order, to, now)
	if eventType, ok := statusEvent(to); ok {
		if err := s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.ref(),
			OccurredAt:    now,
			Data: payloads.OrderStatusEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				SellerID:   order.SellerID,
				FromStatus: from,
				ToStatus:   to,
				Reason:     strings.TrimSpace(note),
				OccurredAt: now,
			},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
		}
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"from":       from,
		"to":         to,
		"actor_role": actor.Label(),
	})
	s.logg.Info(logCtx, "order.transition")

	return &TransitionResult{Order: order, From: from, Applied: true}, nil
}

func applyStatus(order *models.Order, to enums.OrderStatus, now time.Time) {
	order.Status = to
	order.UpdatedAt = now
	stamp := now
	switch to {
	case enums.OrderStatusPaid:
		order.PaidAt = &stamp
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &stamp
	case enums.OrderStatusCompleted:
		order.CompletedAt = &stamp
	case enums.OrderStatusCancelled:
		order.CancelledAt = &stamp
	}
}

// MarkPaid records a confirmed payment.
func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*TransitionResult, error) {
	return s.Transition(ctx, tx, orderID, enums.OrderStatusPaid, SystemActor, "payment confirmed")
}

// StartDelivery moves a paid order into delivery.
func (s *Service) StartDelivery(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*TransitionResult, error) {
	return s.Transition(ctx, tx, orderID, enums.OrderStatusInDelivery, SystemActor, "")
}

// MarkDelivered closes delivery. note carries the seller attestation for
// manual deliveries.
func (s *Service) MarkDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, note string) (*TransitionResult, error) {
	return s.Transition(ctx, tx, orderID, enums.OrderStatusDelivered, actor, note)
}

// Complete finishes an order after buyer confirmation, auto-release or an
// admin release.
func (s *Service) Complete(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, note string) (*TransitionResult, error) {
	return s.Transition(ctx, tx, orderID, enums.OrderStatusCompleted, actor, note)
}

// Cancel abandons an order that was never paid.
func (s *Service) Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, reason string) (*TransitionResult, error) {
	return s.Transition(ctx, tx, orderID, enums.OrderStatusCancelled, actor, reason)
}

// Refund marks the order refunded.
func (s *Service) Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, note string) (*TransitionResult, error) {
	return s.Transition(ctx, tx, orderID, enums.OrderStatusRefunded, actor, note)
}

// OpenDispute moves the order to DISPUTED. Buyers may only dispute their own
// orders after delivery; admins may also dispute orders stuck in delivery.
func (s *Service) OpenDispute(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, reason string) (*TransitionResult, error) {
	repo := s.repo.WithTx(tx)
	order, err := s.load(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case enums.RoleAdmin:
	case enums.RoleBuyer:
		if order.BuyerID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}
		delivered, err := repo.HasEvent(ctx, order.ID, enums.OrderStatusDelivered)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check delivery")
		}
		if !delivered {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "order not delivered")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers and admins may dispute orders")
	}
	return s.transition(ctx, tx, repo, order, enums.OrderStatusDisputed, actor, reason)
}

// Load reads an order inside tx.
func (s *Service) Load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	return s.load(ctx, s.repo.WithTx(tx), orderID)
}

func (s *Service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// Get returns an order visible to viewer: its buyer, its seller, or an admin.
func (s *Service) Get(ctx context.Context, viewer Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(viewer, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Events returns the order's transition log, oldest first.
func (s *Service) Events(ctx context.Context, viewer Actor, orderID uuid.UUID) ([]models.OrderEvent, error) {
	if _, err := s.Get(ctx, viewer, orderID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order events")
	}
	return events, nil
}

func authorizeView(viewer Actor, order *models.Order) error {
	switch {
	case viewer.IsAdmin():
		return nil
	case viewer.UserID != uuid.Nil && viewer.UserID == order.BuyerID:
		return nil
	case viewer.UserID != uuid.Nil && viewer.UserID == order.SellerID:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
	}
}

// OrderList is one page of orders plus the cursor of the next page.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListForBuyer pages the buyer's orders, newest first.
func (s *Service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return s.list(ctx, "buyer_id", buyerID, params)
}

// ListForSeller pages the seller's orders, newest first.
func (s *Service) ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return s.list(ctx, "seller_id", sellerID, params)
}

func (s *Service) list(ctx context.Context, column string, partyID uuid.UUID, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByParty(ctx, column, partyID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	list := &OrderList{}
	list.Orders, list.NextCursor = pagination.Trim(rows, params.Limit, func(row models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return list, nil
}

// StaleUnpaid lists orders created before cutoff that never got paid. A
// CREATED order in the list is a checkout that died before its payment was
// opened.
func (s *Service) StaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindStaleUnpaid(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale orders")
	}
	return rows, nil
}

// Releasable lists DELIVERED orders older than cutoff with no open dispute.
func (s *Service) Releasable(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindReleasable(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find releasable orders")
	}
	return rows, nil
}
