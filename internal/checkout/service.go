package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/internal/catalog"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/internal/payments"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/metrics"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/outbox/payloads"
	"github.com/lootbay/marketplace-backend/pkg/tracing"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderService interface {
	Create(ctx context.Context, tx *gorm.DB, input orders.CreateInput) (*models.Order, error)
	Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus, actor orders.Actor, note string) (*orders.TransitionResult, error)
}

type inventoryAllocator interface {
	Reserve(ctx context.Context, tx *gorm.DB, listingID, orderItemID uuid.UUID, hold time.Duration) (*models.InventoryItem, error)
	Release(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (bool, error)
	CountAvailable(ctx context.Context, listingID uuid.UUID) (int64, error)
}

type paymentOpener interface {
	Quote(ctx context.Context, order *models.Order) (*payments.Quote, error)
	Open(ctx context.Context, tx *gorm.DB, order *models.Order, quote *payments.Quote) (*models.Payment, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// Checkout outcomes recorded in metrics.
const (
	outcomeOK            = "ok"
	outcomeOutOfStock    = "out_of_stock"
	outcomePaymentFailed = "payment_failed"
	outcomeRejected      = "rejected"
	outcomeError         = "error"
)

// ServiceParams wires the checkout orchestrator.
type ServiceParams struct {
	Tx           txRunner
	Catalog      catalog.Reader
	Orders       orderService
	Inventory    inventoryAllocator
	Payments     paymentOpener
	Outbox       outboxPublisher
	Metrics      *metrics.CheckoutMetrics
	Logger       *logger.Logger
	HoldDuration time.Duration
	MaxQuantity  int
}

// Service executes checkout orchestration.
type Service struct {
	tx          txRunner
	catalog     catalog.Reader
	orders      orderService
	inventory   inventoryAllocator
	payments    paymentOpener
	outbox      outboxPublisher
	metrics     *metrics.CheckoutMetrics
	logg        *logger.Logger
	hold        time.Duration
	maxQuantity int
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog reader required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory allocator required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payments service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.HoldDuration <= 0:
		return nil, fmt.Errorf("hold duration must be positive")
	}
	return &Service{
		tx:          params.Tx,
		catalog:     params.Catalog,
		orders:      params.Orders,
		inventory:   params.Inventory,
		payments:    params.Payments,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		hold:        params.HoldDuration,
		maxQuantity: params.MaxQuantity,
	}, nil
}

// CheckoutInput is the buyer's purchase request.
type CheckoutInput struct {
	ListingID uuid.UUID
	Quantity  int
}

// Result is the order awaiting payment and the payment the buyer must settle.
type Result struct {
	Order   *models.Order   `json:"order"`
	Payment *models.Payment `json:"payment"`
}

// Checkout reserves quantity units of a listing for buyerID, opens a provider
// payment and leaves the order AWAITING_PAYMENT. No transaction spans the
// provider call: reservations are committed first and compensated if the
// quote fails.
func (s *Service) Checkout(ctx context.Context, buyerID uuid.UUID, input CheckoutInput) (result *Result, err error) {
	ctx, span := tracing.Start(ctx, "checkout",
		attribute.String("listing_id", input.ListingID.String()),
		attribute.Int("quantity", input.Quantity),
	)
	defer func() {
		s.metrics.Inc(outcome(err))
		tracing.End(span, err)
	}()

	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer required")
	}
	if err := ValidateQuantity(input.Quantity, s.maxQuantity); err != nil {
		return nil, err
	}
	listing, err := s.catalog.Listing(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}
	if err := ValidateListing(listing, buyerID); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"buyer_id":   buyerID.String(),
		"listing_id": listing.ID.String(),
		"quantity":   input.Quantity,
	})

	available, err := s.inventory.CountAvailable(ctx, listing.ID)
	if err != nil {
		return nil, err
	}
	if available < int64(input.Quantity) {
		s.logg.Info(logCtx, "checkout.out_of_stock")
		return nil, outOfStock(listing.ID)
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.orders.Create(ctx, tx, orders.CreateInput{
			BuyerID:  buyerID,
			Listing:  listing,
			Quantity: input.Quantity,
		})
		if err != nil {
			return err
		}
		for _, item := range created.Items {
			if _, err := s.inventory.Reserve(ctx, tx, listing.ID, item.ID, s.hold); err != nil {
				return err
			}
		}
		order = created
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock) {
			s.logg.Info(logCtx, "checkout.out_of_stock")
			return nil, outOfStock(listing.ID)
		}
		return nil, err
	}
	logCtx = s.logg.WithOrderID(logCtx, order.ID.String())

	quote, err := s.payments.Quote(ctx, order)
	if err != nil {
		s.logg.Warn(logCtx, "checkout.quote_failed: "+err.Error())
		s.abandon(ctx, order, "payment could not be initiated")
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "payment could not be initiated")
	}

	var payment *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		opened, err := s.payments.Open(ctx, tx, order, quote)
		if err != nil {
			return err
		}
		res, err := s.orders.Transition(ctx, tx, order.ID, enums.OrderStatusAwaitingPayment, orders.Actor{UserID: buyerID, Role: enums.RoleBuyer}, "")
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.Actor{UserID: buyerID, Role: string(enums.RoleBuyer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:          order.ID,
				BuyerID:          buyerID,
				SellerID:         order.SellerID,
				ListingID:        listing.ID,
				Quantity:         input.Quantity,
				TotalAmountCents: order.TotalAmountCents,
				Currency:         order.Currency,
				PaymentID:        opened.ID,
				TxID:             opened.TxID,
			},
		}); err != nil {
			return err
		}
		order = res.Order
		payment = opened
		return nil
	})
	if err != nil {
		s.logg.Error(logCtx, "checkout.open_payment_failed", err)
		s.abandon(ctx, order, "payment could not be recorded")
		return nil, err
	}

	s.logg.Info(s.logg.WithTxID(logCtx, payment.TxID), "checkout.completed")
	return &Result{Order: order, Payment: payment}, nil
}

// abandon releases the order's holds and cancels it. Failures are logged; the
// hold sweeper reclaims anything left behind.
func (s *Service) abandon(ctx context.Context, order *models.Order, reason string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, item := range order.Items {
			if _, err := s.inventory.Release(ctx, tx, item.ID); err != nil {
				return err
			}
		}
		_, err := s.orders.Transition(ctx, tx, order.ID, enums.OrderStatusCancelled, orders.SystemActor, reason)
		return err
	})
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "checkout.abandon_failed", err)
	}
}

func outOfStock(listingID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "out of stock").
		WithDetails(map[string]any{"listing_id": listingID.String()})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock):
		return outcomeOutOfStock
	case pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed):
		return outcomePaymentFailed
	case pkgerrors.IsCode(err, pkgerrors.CodeDependency), pkgerrors.IsCode(err, pkgerrors.CodeInternal):
		return outcomeError
	default:
		return outcomeRejected
	}
}
