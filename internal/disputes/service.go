package disputes

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/notifications"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/pkg/db"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/outbox/payloads"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
	"github.com/lootbay/marketplace-backend/pkg/tracing"
)

const defaultMinReasonLength = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderService interface {
	Load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	OpenDispute(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, reason string) (*orders.TransitionResult, error)
	Complete(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, note string) (*orders.TransitionResult, error)
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, note string) (*orders.TransitionResult, error)
}

type ledgerSettler interface {
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*ledger.Settlement, error)
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*ledger.Settlement, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// ServiceParams wires the dispute orchestrator.
type ServiceParams struct {
	Repository      Repository
	Tx              txRunner
	Orders          orderService
	Ledger          ledgerSettler
	Outbox          outboxPublisher
	Notifier        *notifications.Dispatcher
	Logger          *logger.Logger
	MinReasonLength int
	Now             func() time.Time
}

// Service opens and resolves disputes.
type Service struct {
	repo      Repository
	tx        txRunner
	orders    orderService
	ledger    ledgerSettler
	outbox    outboxPublisher
	notifier  *notifications.Dispatcher
	logg      *logger.Logger
	minReason int
	now       func() time.Time
}

// NewService validates dependencies.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("disputes repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	minReason := params.MinReasonLength
	if minReason <= 0 {
		minReason = defaultMinReasonLength
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      params.Repository,
		tx:        params.Tx,
		orders:    params.Orders,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		notifier:  params.Notifier,
		logg:      params.Logger,
		minReason: minReason,
		now:       now,
	}, nil
}

// MinReasonLength is the shortest admin resolution reason accepted.
func (s *Service) MinReasonLength() int {
	return s.minReason
}

// Open files a dispute against an order and moves it to DISPUTED.
func (s *Service) Open(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}

	var dispute *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindOpenByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open dispute")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has an open dispute").
				WithDetails(map[string]any{"dispute_id": existing.ID.String()})
		}
		res, err := s.orders.OpenDispute(ctx, tx, orderID, actor, reason)
		if err != nil {
			return err
		}
		if !res.Applied {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was already disputed")
		}
		dispute = &models.Dispute{
			OrderID:  orderID,
			OpenedBy: actor.UserID,
			Status:   enums.DisputeStatusOpen,
			Reason:   reason,
		}
		if err := repo.Create(ctx, dispute); err != nil {
			if db.IsUniqueViolation(err, openIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has an open dispute")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   orderID.String(),
		"dispute_id": dispute.ID.String(),
		"actor_role": actor.Label(),
	}), "dispute.opened")
	return dispute, nil
}

// Resolution is the outcome of an admin decision.
type Resolution struct {
	Dispute    *models.Dispute    `json:"dispute"`
	Settlement *ledger.Settlement `json:"settlement"`
}

// Resolve applies an admin decision. release pays the seller, completes the
// order and rejects the buyer's claim; refund returns the held funds, refunds
// the order and resolves the dispute in the buyer's favor.
func (s *Service) Resolve(ctx context.Context, actor orders.Actor, disputeID uuid.UUID, action enums.DisputeAction, reason string) (result *Resolution, err error) {
	ctx, span := tracing.Start(ctx, "disputes.resolve",
		attribute.String("dispute_id", disputeID.String()),
		attribute.String("action", action.String()),
	)
	defer func() { tracing.End(span, err) }()

	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may resolve disputes")
	}
	if !action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action must be release or refund")
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < s.minReason {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at least %d characters", s.minReason))
	}

	var (
		order *models.Order
		out   = &Resolution{}
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		dispute, err := s.repo.WithTx(tx).FindByID(ctx, disputeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
		}
		if dispute == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		if dispute.Status != enums.DisputeStatusOpen {
			return errAlreadyResolved
		}

		order, err = s.orders.Load(ctx, tx, dispute.OrderID)
		if err != nil {
			return err
		}
		if err := s.close(ctx, tx, dispute, actor, action, reason); err != nil {
			return err
		}
		switch action {
		case enums.DisputeActionRelease:
			out.Settlement, err = s.ledger.Release(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			_, err = s.orders.Complete(ctx, tx, order.ID, actor, reason)
		case enums.DisputeActionRefund:
			out.Settlement, err = s.ledger.Refund(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			_, err = s.orders.Refund(ctx, tx, order.ID, actor, reason)
		}
		if err != nil {
			return err
		}
		out.Dispute = dispute
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, SettlementNotice(order, action))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.ID.String(),
		"dispute_id": disputeID.String(),
		"action":     action,
	}), "dispute.resolved")
	return out, nil
}

var errAlreadyResolved = pkgerrors.New(pkgerrors.CodeInvalidState, "dispute already resolved")

// CloseOpen closes the order's OPEN dispute, if any, as the outcome of an
// admin settlement. It returns nil when the order had no open dispute.
func (s *Service) CloseOpen(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, action enums.DisputeAction, note string) (*models.Dispute, error) {
	dispute, err := s.repo.WithTx(tx).FindOpenByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open dispute")
	}
	if dispute == nil {
		return nil, nil
	}
	if err := s.close(ctx, tx, dispute, actor, action, note); err != nil {
		return nil, err
	}
	return dispute, nil
}

// HasOpen reports whether the order has an OPEN dispute.
func (s *Service) HasOpen(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	dispute, err := s.repo.WithTx(tx).FindOpenByOrder(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open dispute")
	}
	return dispute != nil, nil
}

// StatusFor maps an admin action to the dispute's final status: releasing
// funds rejects the claim, refunding resolves it.
func StatusFor(action enums.DisputeAction) enums.DisputeStatus {
	if action == enums.DisputeActionRefund {
		return enums.DisputeStatusResolved
	}
	return enums.DisputeStatusRejected
}

func (s *Service) close(ctx context.Context, tx *gorm.DB, dispute *models.Dispute, actor orders.Actor, action enums.DisputeAction, note string) error {
	now := s.now().UTC()
	status := StatusFor(action)
	var resolvedBy *uuid.UUID
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		resolvedBy = &id
	}
	closed, err := s.repo.WithTx(tx).Close(ctx, dispute.ID, CloseInput{
		Status:     status,
		Action:     action,
		Note:       note,
		ResolvedBy: resolvedBy,
		At:         now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close dispute")
	}
	if !closed {
		return errAlreadyResolved
	}

	dispute.Status = status
	dispute.Resolution = &action
	dispute.ResolvedBy = resolvedBy
	dispute.ResolvedAt = &now
	if note != "" {
		dispute.ResolutionNote = &note
	}

	var (
		by  uuid.UUID
		ref *outbox.Actor
	)
	if resolvedBy != nil {
		by = *resolvedBy
		ref = &outbox.Actor{UserID: by, Role: actor.Label()}
	}
	return s.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     enums.EventDisputeResolved,
		AggregateType: enums.AggregateDispute,
		AggregateID:   dispute.ID,
		Actor:         ref,
		OccurredAt:    now,
		Data: payloads.DisputeResolvedEvent{
			DisputeID:  dispute.ID,
			OrderID:    dispute.OrderID,
			Action:     action,
			Status:     status,
			ResolvedBy: by,
			Note:       note,
		},
	})
}

// SettlementNotice is the post-commit message for a settled order: the seller
// hears about released funds, the buyer about a refund.
func SettlementNotice(order *models.Order, action enums.DisputeAction) notifications.Message {
	if action == enums.DisputeActionRefund {
		return notifications.RefundIssued(order.BuyerID, order.ID, order.TotalAmountCents, order.Currency)
	}
	orderID := order.ID
	return notifications.PayoutConfirmed(order.SellerID, &orderID, order.TotalAmountCents, order.Currency)
}

// DisputeList is one page of disputes.
type DisputeList struct {
	Disputes   []models.Dispute `json:"disputes"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// ListOpen pages OPEN disputes, newest first.
func (s *Service) ListOpen(ctx context.Context, params pagination.Params) (*DisputeList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByStatus(ctx, enums.DisputeStatusOpen, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list disputes")
	}
	list := &DisputeList{}
	list.Disputes, list.NextCursor = pagination.Trim(rows, params.Limit, func(row models.Dispute) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return list, nil
}
