// Package settlement drives the money-moving order transitions outside the
// dispute flow: admin release/refund, buyer confirmation, seller delivery and
// the auto-release sweep.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/internal/disputes"
	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/notifications"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/tracing"
)

const defaultMinReasonLength = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderService interface {
	Load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	MarkDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, note string) (*orders.TransitionResult, error)
	Complete(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, note string) (*orders.TransitionResult, error)
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, note string) (*orders.TransitionResult, error)
}

type ledgerSettler interface {
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*ledger.Settlement, error)
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*ledger.Settlement, error)
}

type disputeCloser interface {
	CloseOpen(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, action enums.DisputeAction, note string) (*models.Dispute, error)
	HasOpen(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error)
}

type inventoryAllocator interface {
	Release(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (bool, error)
	MarkDelivered(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (*models.InventoryItem, error)
}

// ServiceParams wires the settlement orchestrator. MinReasonLength applies to
// optional admin reasons and defaults to 10 characters.
type ServiceParams struct {
	Tx              txRunner
	Orders          orderService
	Ledger          ledgerSettler
	Disputes        disputeCloser
	Inventory       inventoryAllocator
	Notifier        *notifications.Dispatcher
	Logger          *logger.Logger
	MinReasonLength int
}

// Service settles orders outside the dispute flow. Each operation commits its
// order transition and ledger move together and notifies after commit.
type Service struct {
	tx        txRunner
	orders    orderService
	ledger    ledgerSettler
	disputes  disputeCloser
	inventory inventoryAllocator
	notifier  *notifications.Dispatcher
	logg      *logger.Logger
	minReason int
}

// NewService validates dependencies and builds the service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Disputes == nil:
		return nil, fmt.Errorf("disputes service required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory allocator required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	minReason := params.MinReasonLength
	if minReason <= 0 {
		minReason = defaultMinReasonLength
	}
	return &Service{
		tx:        params.Tx,
		orders:    params.Orders,
		ledger:    params.Ledger,
		disputes:  params.Disputes,
		inventory: params.Inventory,
		notifier:  params.Notifier,
		logg:      params.Logger,
		minReason: minReason,
	}, nil
}

// Outcome reports an order after a settlement step.
type Outcome struct {
	Order      *models.Order      `json:"order"`
	Settlement *ledger.Settlement `json:"settlement,omitempty"`
	Dispute    *models.Dispute    `json:"dispute,omitempty"`
}

var (
	releasable = []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusDisputed}
	refundable = []enums.OrderStatus{
		enums.OrderStatusPaid,
		enums.OrderStatusInDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusDisputed,
	}
)

// Release pays the seller for a delivered or disputed order. An open dispute
// is closed as REJECTED.
func (s *Service) Release(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (out *Outcome, err error) {
	ctx, span := tracing.Start(ctx, "settlement.release", attribute.String("order_id", orderID.String()))
	defer func() { tracing.End(span, err) }()

	reason, err = s.checkAdmin(actor, reason)
	if err != nil {
		return nil, err
	}
	out = &Outcome{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := requireStatus(order, "released", releasable...); err != nil {
			return err
		}
		if out.Dispute, err = s.disputes.CloseOpen(ctx, tx, order.ID, actor, enums.DisputeActionRelease, reason); err != nil {
			return err
		}
		if out.Settlement, err = s.ledger.Release(ctx, tx, order.ID); err != nil {
			return err
		}
		res, err := s.orders.Complete(ctx, tx, order.ID, actor, reason)
		if err != nil {
			return err
		}
		out.Order = res.Order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Send(ctx, disputes.SettlementNotice(out.Order, enums.DisputeActionRelease))
	s.logSettled(ctx, out.Order, "settlement.released", actor)
	return out, nil
}

// Refund returns the held funds to the buyer. Undelivered holds go back to
// stock and an open dispute is closed as RESOLVED.
func (s *Service) Refund(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (out *Outcome, err error) {
	ctx, span := tracing.Start(ctx, "settlement.refund", attribute.String("order_id", orderID.String()))
	defer func() { tracing.End(span, err) }()

	reason, err = s.checkAdmin(actor, reason)
	if err != nil {
		return nil, err
	}
	out = &Outcome{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := requireStatus(order, "refunded", refundable...); err != nil {
			return err
		}
		if out.Dispute, err = s.disputes.CloseOpen(ctx, tx, order.ID, actor, enums.DisputeActionRefund, reason); err != nil {
			return err
		}
		if out.Settlement, err = s.ledger.Refund(ctx, tx, order.ID); err != nil {
			return err
		}
		for _, item := range order.Items {
			if _, err := s.inventory.Release(ctx, tx, item.ID); err != nil {
				return err
			}
		}
		res, err := s.orders.Refund(ctx, tx, order.ID, actor, reason)
		if err != nil {
			return err
		}
		out.Order = res.Order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Send(ctx, disputes.SettlementNotice(out.Order, enums.DisputeActionRefund))
	s.logSettled(ctx, out.Order, "settlement.refunded", actor)
	return out, nil
}

// ConfirmReceipt lets the buyer accept a delivered order, which completes it
// and releases the seller's funds.
func (s *Service) ConfirmReceipt(ctx context.Context, buyerID, orderID uuid.UUID) (*Outcome, error) {
	actor := orders.Actor{UserID: buyerID, Role: enums.RoleBuyer}
	out := &Outcome{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}
		if err := requireStatus(order, "confirmed", enums.OrderStatusDelivered); err != nil {
			return err
		}
		if out.Settlement, err = s.ledger.Release(ctx, tx, order.ID); err != nil {
			return err
		}
		res, err := s.orders.Complete(ctx, tx, order.ID, actor, "buyer confirmed receipt")
		if err != nil {
			return err
		}
		out.Order = res.Order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Send(ctx, disputes.SettlementNotice(out.Order, enums.DisputeActionRelease))
	s.logSettled(ctx, out.Order, "settlement.confirmed", actor)
	return out, nil
}

// DeliverManual records the seller's attestation that a MANUAL order was
// handed over.
func (s *Service) DeliverManual(ctx context.Context, sellerID, orderID uuid.UUID, note string) (*Outcome, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery note required")
	}
	actor := orders.Actor{UserID: sellerID, Role: enums.RoleSeller}
	out := &Outcome{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != sellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
		}
		if err := requireStatus(order, "delivered", enums.OrderStatusInDelivery); err != nil {
			return err
		}
		for _, item := range order.Items {
			if _, err := s.inventory.MarkDelivered(ctx, tx, item.ID); err != nil {
				return err
			}
		}
		res, err := s.orders.MarkDelivered(ctx, tx, order.ID, actor, note)
		if err != nil {
			return err
		}
		out.Order = res.Order
		return nil
	})
	if err != nil {
		return nil, err
	}
	o := out.Order
	s.notifier.Send(ctx, notifications.OrderDelivered(o.BuyerID, o.ID, o.TotalAmountCents, o.Currency))
	s.logSettled(ctx, o, "settlement.delivered", actor)
	return out, nil
}

// AutoRelease completes a DELIVERED order whose dispute window has passed. It
// reports false when the order moved on or a dispute is open.
func (s *Service) AutoRelease(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.orders.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if loaded.Status != enums.OrderStatusDelivered {
			return nil
		}
		open, err := s.disputes.HasOpen(ctx, tx, orderID)
		if err != nil || open {
			return err
		}
		if _, err := s.ledger.Release(ctx, tx, orderID); err != nil {
			return err
		}
		res, err := s.orders.Complete(ctx, tx, orderID, orders.SystemActor, "auto release")
		if err != nil {
			return err
		}
		if res.Applied {
			order = res.Order
		}
		return nil
	})
	if err != nil || order == nil {
		return false, err
	}
	s.notifier.Send(ctx, disputes.SettlementNotice(order, enums.DisputeActionRelease))
	s.logSettled(ctx, order, "settlement.auto_released", orders.SystemActor)
	return true, nil
}

func (s *Service) checkAdmin(actor orders.Actor, reason string) (string, error) {
	if !actor.IsAdmin() {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	reason = strings.TrimSpace(reason)
	if reason != "" && utf8.RuneCountInString(reason) < s.minReason {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at least %d characters", s.minReason))
	}
	return reason, nil
}

func requireStatus(order *models.Order, verb string, allowed ...enums.OrderStatus) error {
	for _, status := range allowed {
		if order.Status == status {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("order cannot be %s from %s", verb, order.Status)).
		WithDetails(map[string]any{"order_id": order.ID.String(), "status": order.Status})
}

func (s *Service) logSettled(ctx context.Context, order *models.Order, msg string, actor orders.Actor) {
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"status":     order.Status,
		"actor_role": actor.Label(),
	}), msg)
}
