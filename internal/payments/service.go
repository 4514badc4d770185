package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/notifications"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/metrics"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/outbox/payloads"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
	"github.com/lootbay/marketplace-backend/pkg/tracing"
)

const maxRejectionPayload = 64 * 1024

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderService interface {
	Load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*orders.TransitionResult, error)
	StartDelivery(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*orders.TransitionResult, error)
	MarkDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, note string) (*orders.TransitionResult, error)
	Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, reason string) (*orders.TransitionResult, error)
}

type inventoryAllocator interface {
	Secure(ctx context.Context, tx *gorm.DB, listingID, orderItemID uuid.UUID) (bool, error)
	MarkDelivered(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (*models.InventoryItem, error)
	Release(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (bool, error)
}

type ledgerPoster interface {
	Credit(ctx context.Context, tx *gorm.DB, input ledger.CreditInput) (*models.LedgerEntry, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// ServiceParams wires the payment gateway adapter.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Provider   Provider
	Orders     orderService
	Inventory  inventoryAllocator
	Ledger     ledgerPoster
	Outbox     outboxPublisher
	Notifier   *notifications.Dispatcher
	Guard      *TxGuard
	Metrics    *metrics.WebhookMetrics
	Logger     *logger.Logger
	// Secret enables webhook signature checks when non-empty.
	Secret string
	Now    func() time.Time
}

// Service turns provider notifications into payment, order, inventory and
// ledger changes.
type Service struct {
	repo      Repository
	tx        txRunner
	provider  Provider
	orders    orderService
	inventory inventoryAllocator
	ledger    ledgerPoster
	outbox    outboxPublisher
	notifier  *notifications.Dispatcher
	guard     *TxGuard
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
	secret    string
	now       func() time.Time
}

// NewService validates dependencies. Guard, Notifier and Metrics are optional.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Provider == nil:
		return nil, fmt.Errorf("payment provider required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory allocator required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      params.Repository,
		tx:        params.Tx,
		provider:  params.Provider,
		orders:    params.Orders,
		inventory: params.Inventory,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		notifier:  params.Notifier,
		guard:     params.Guard,
		metrics:   params.Metrics,
		logg:      params.Logger,
		secret:    params.Secret,
		now:       now,
	}, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// ProviderName is the provider recorded on payments opened by this service.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Quote opens a provider intent for order. It must run outside any transaction.
func (s *Service) Quote(ctx context.Context, order *models.Order) (*Quote, error) {
	quote, err := s.provider.Quote(ctx, QuoteRequest{
		OrderID:     order.ID,
		PayerID:     order.BuyerID,
		AmountCents: order.TotalAmountCents,
		Currency:    order.Currency,
	})
	if err != nil {
		return nil, err
	}
	if quote.Provider == "" {
		quote.Provider = s.provider.Name()
	}
	return quote, nil
}

// Open inserts the PENDING payment for order inside tx.
func (s *Service) Open(ctx context.Context, tx *gorm.DB, order *models.Order, quote *Quote) (*models.Payment, error) {
	payment := &models.Payment{
		OrderID:     order.ID,
		PayerID:     order.BuyerID,
		Provider:    quote.Provider,
		TxID:        quote.TxID,
		Status:      enums.PaymentStatusPending,
		AmountCents: order.TotalAmountCents,
		Currency:    order.Currency,
	}
	if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	return payment, nil
}

// VerifySignature rejects bodies whose signature header does not match the
// configured secret.
func (s *Service) VerifySignature(signature string, body []byte) error {
	if !VerifySignature(s.secret, signature, body) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

// Ack is the webhook response body.
type Ack struct {
	Processed int `json:"processed"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Ignored   int `json:"ignored"`
	Rejected  int `json:"rejected"`
}

func (a *Ack) add(outcome enums.WebhookOutcome) {
	a.Processed++
	switch outcome {
	case enums.WebhookOutcomeConfirmed:
		a.Confirmed++
	case enums.WebhookOutcomeFailed:
		a.Failed++
	case enums.WebhookOutcomeRejected:
		a.Rejected++
	default:
		a.Ignored++
	}
}

// HandleWebhook processes every record of a provider delivery, one
// transaction per txid. Unknown and already-settled txids are acknowledged
// without side effects. A store error on any record fails the delivery so the
// provider retries; records that already committed are no-ops on retry.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte) (ack *Ack, err error) {
	ctx, span := tracing.Start(ctx, "payments.webhook", attribute.Int("body_bytes", len(raw)))
	defer func() { tracing.End(span, err) }()

	records, parseErr := ParseRecords(raw)
	if parseErr != nil {
		s.reject(ctx, "unparseable body: "+parseErr.Error(), raw)
		s.metrics.Observe(string(enums.WebhookOutcomeRejected), 1)
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, parseErr, "webhook body could not be parsed")
	}

	ack = &Ack{}
	var errs error
	for _, record := range records {
		outcome, recErr := s.handleRecord(ctx, record, raw)
		if recErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("txid %s: %w", record.TxID, recErr))
			continue
		}
		ack.add(outcome)
		s.metrics.Observe(string(outcome), 1)
	}
	if errs != nil {
		s.logg.Error(ctx, "payment webhook failed", errs)
		return ack, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "webhook processing failed")
	}
	return ack, nil
}

func (s *Service) handleRecord(ctx context.Context, record Record, raw []byte) (enums.WebhookOutcome, error) {
	logCtx := s.logg.WithTxID(ctx, record.TxID)
	if record.TxID == "" {
		payload, _ := json.Marshal(record)
		if len(payload) == 0 {
			payload = raw
		}
		s.logg.Warn(logCtx, "payment webhook record missing txid")
		s.reject(ctx, "record missing txid", payload)
		return enums.WebhookOutcomeRejected, nil
	}
	status, known := record.NormalizedStatus()
	if !known {
		payload, _ := json.Marshal(record)
		s.logg.Warn(s.logg.WithField(logCtx, "status", record.Status), "payment webhook record has unknown status")
		s.reject(ctx, fmt.Sprintf("unknown status %q", record.Status), payload)
		return enums.WebhookOutcomeRejected, nil
	}

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, record.TxID)
		if err != nil {
			s.logg.Warn(logCtx, "txid guard unavailable: "+err.Error())
		} else if seen {
			s.logg.Debug(logCtx, "payment webhook short-circuited")
			return enums.WebhookOutcomeIgnored, nil
		}
	}

	var (
		outcome = enums.WebhookOutcomeIgnored
		msgs    []notifications.Message
		settled bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByTxID(ctx, s.provider.Name(), record.TxID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment")
		}
		if payment == nil {
			s.logg.Info(logCtx, "payment webhook for unknown txid")
			return nil
		}
		settled = true
		if payment.Status != enums.PaymentStatusPending {
			return nil
		}
		if status == RecordFailed {
			outcome, err = s.fail(ctx, tx, payment, failureReason(record))
			return err
		}
		outcome, msgs, err = s.confirm(ctx, tx, payment)
		return err
	})
	if err != nil || !settled {
		s.clearGuard(ctx, record.TxID)
	}
	if err != nil {
		return "", err
	}

	s.notifier.Send(ctx, msgs...)
	return outcome, nil
}

func failureReason(record Record) string {
	if record.Reason != "" {
		return record.Reason
	}
	return "declined by provider"
}

func (s *Service) clearGuard(ctx context.Context, txid string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Clear(ctx, txid); err != nil {
		s.logg.Warn(s.logg.WithTxID(ctx, txid), "clear txid guard: "+err.Error())
	}
}

// confirm settles a PENDING payment: the order becomes PAID, the seller gets a
// HELD credit, and AUTO listings are delivered in the same transaction.
func (s *Service) confirm(ctx context.Context, tx *gorm.DB, payment *models.Payment) (enums.WebhookOutcome, []notifications.Message, error) {
	now := s.clock()
	flipped, err := s.repo.WithTx(tx).MarkConfirmed(ctx, payment.ID, now)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
	}
	if !flipped {
		return enums.WebhookOutcomeIgnored, nil, nil
	}

	order, err := s.orders.Load(ctx, tx, payment.OrderID)
	if err != nil {
		return "", nil, err
	}
	if _, err := s.orders.MarkPaid(ctx, tx, order.ID); err != nil {
		return "", nil, err
	}
	if _, err := s.ledger.Credit(ctx, tx, ledger.CreditInput{
		UserID:      order.SellerID,
		OrderID:     order.ID,
		PaymentID:   payment.ID,
		AmountCents: order.TotalAmountCents,
		Currency:    order.Currency,
		State:       enums.LedgerHeld,
		Source:      enums.LedgerSourceOrderPayment,
		Description: "order payment held",
	}); err != nil {
		return "", nil, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:          order.ID,
			PaymentID:        payment.ID,
			TxID:             payment.TxID,
			SellerID:         order.SellerID,
			TotalAmountCents: order.TotalAmountCents,
			Currency:         order.Currency,
			PaidAt:           now,
		},
	}); err != nil {
		return "", nil, err
	}

	msgs := []notifications.Message{
		notifications.PaymentConfirmed(order.BuyerID, order.ID, order.TotalAmountCents, order.Currency),
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.ID.String(),
		"payment_id": payment.ID.String(),
		"txid":       payment.TxID,
	})
	s.logg.Info(logCtx, "payment.confirmed")

	delivered, err := s.deliver(ctx, tx, order)
	if err != nil {
		return "", nil, err
	}
	if delivered {
		msgs = append(msgs, notifications.OrderDelivered(order.BuyerID, order.ID, order.TotalAmountCents, order.Currency))
	}
	return enums.WebhookOutcomeConfirmed, msgs, nil
}

// deliver moves a paid order into delivery and, for AUTO listings, hands every
// unit over. A unit lost to hold reclaim leaves the order IN_DELIVERY for an
// admin to resolve.
func (s *Service) deliver(ctx context.Context, tx *gorm.DB, order *models.Order) (bool, error) {
	if _, err := s.orders.StartDelivery(ctx, tx, order.ID); err != nil {
		return false, err
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	for _, item := range order.Items {
		secured, err := s.inventory.Secure(ctx, tx, order.ListingID, item.ID)
		if err != nil {
			return false, err
		}
		if !secured {
			s.logg.Warn(s.logg.WithField(logCtx, "order_item_id", item.ID.String()), "payment.delivery_unit_lost")
			return false, nil
		}
	}
	if order.DeliveryMode != enums.DeliveryModeAuto {
		return false, nil
	}
	for _, item := range order.Items {
		if _, err := s.inventory.MarkDelivered(ctx, tx, item.ID); err != nil {
			return false, err
		}
	}
	if _, err := s.orders.MarkDelivered(ctx, tx, order.ID, orders.SystemActor, "auto delivery"); err != nil {
		return false, err
	}
	return true, nil
}

// fail records a provider decline: the payment becomes FAILED, the order is
// cancelled and its holds are released.
func (s *Service) fail(ctx context.Context, tx *gorm.DB, payment *models.Payment, reason string) (enums.WebhookOutcome, error) {
	flipped, err := s.repo.WithTx(tx).MarkFailed(ctx, payment.ID, reason, s.clock())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment")
	}
	if !flipped {
		return enums.WebhookOutcomeIgnored, nil
	}
	if err := s.cancelOrder(ctx, tx, payment.OrderID, "payment failed: "+reason); err != nil {
		return "", err
	}
	if err := s.emitFailed(ctx, tx, payment, reason); err != nil {
		return "", err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   payment.OrderID.String(),
		"payment_id": payment.ID.String(),
		"reason":     reason,
	}), "payment.failed")
	return enums.WebhookOutcomeFailed, nil
}

func (s *Service) cancelOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error {
	order, err := s.orders.Load(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if _, err := s.orders.Cancel(ctx, tx, order.ID, orders.SystemActor, reason); err != nil {
		return err
	}
	for _, item := range order.Items {
		if _, err := s.inventory.Release(ctx, tx, item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) emitFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentFailedEvent{
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			TxID:      payment.TxID,
			Reason:    reason,
		},
	})
}

// Expire cancels an unpaid order after its payment window: a PENDING payment
// fails as "expired" and the holds are released. A CREATED order, left by a
// checkout that never opened its payment, is cancelled the same way. It
// reports false when the order had already moved on.
func (s *Service) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	expired := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		reason := "payment window elapsed"
		switch order.Status {
		case enums.OrderStatusAwaitingPayment:
		case enums.OrderStatusCreated:
			reason = "checkout abandoned"
		default:
			return nil
		}
		payment, err := s.repo.WithTx(tx).FindPendingByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pending payment")
		}
		if payment != nil {
			flipped, err := s.repo.WithTx(tx).MarkFailed(ctx, payment.ID, "expired", s.clock())
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire payment")
			}
			if !flipped {
				return nil
			}
			if err := s.emitFailed(ctx, tx, payment, "expired"); err != nil {
				return err
			}
		}
		if err := s.cancelOrder(ctx, tx, orderID, reason); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "payment.expired")
	}
	return expired, nil
}

func (s *Service) reject(ctx context.Context, reason string, payload []byte) {
	if len(payload) > maxRejectionPayload {
		payload = payload[:maxRejectionPayload]
	}
	rejection := &models.WebhookRejection{
		Provider: s.provider.Name(),
		Reason:   reason,
		Payload:  string(payload),
	}
	if err := s.repo.CreateRejection(ctx, rejection); err != nil {
		s.logg.Error(ctx, "persist webhook rejection", err)
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "rejection_id", rejection.ID.String()), "payment webhook rejected: "+reason)
}

// RejectionList is one page of rejected deliveries.
type RejectionList struct {
	Rejections []models.WebhookRejection `json:"rejections"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

// Rejections pages rejected webhook deliveries, newest first.
func (s *Service) Rejections(ctx context.Context, params pagination.Params) (*RejectionList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListRejections(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhook rejections")
	}
	list := &RejectionList{}
	list.Rejections, list.NextCursor = pagination.Trim(rows, params.Limit, func(row models.WebhookRejection) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return list, nil
}

// ForOrder returns the latest payment of an order, or nil.
func (s *Service) ForOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order payment")
	}
	return payment, nil
}
