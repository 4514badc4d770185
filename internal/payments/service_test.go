package payments

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/internal/inventory"
	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/notifications"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/pkg/db"
	"github.com/lootbay/marketplace-backend/pkg/db/dbtest"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notifications.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingNotifier) kinds() []notifications.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.Kind, 0, len(r.sent))
	for _, msg := range r.sent {
		out = append(out, msg.Kind)
	}
	return out
}

type memoryGuardStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryGuardStore() *memoryGuardStore {
	return &memoryGuardStore{keys: map[string]bool{}}
}

func (m *memoryGuardStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryGuardStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryGuardStore) IdempotencyKey(scope, id string) string {
	return "lb:idempotency:" + scope + ":" + id
}

func (m *memoryGuardStore) has(scope, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[m.IdempotencyKey(scope, id)]
}

type paymentsHarness struct {
	client    *db.Client
	service   *Service
	orders    *orders.Service
	allocator *inventory.Allocator
	notifier  *recordingNotifier
	listing   *models.Listing
	buyerID   uuid.UUID
}

func newPaymentsHarness(t *testing.T, mode enums.DeliveryMode, units int, guard *TxGuard) *paymentsHarness {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ob := outbox.NewWriter(outbox.NewRepository(client.DB()), logg)

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(client.DB()),
		Outbox:     ob,
		Logger:     logg,
	})
	require.NoError(t, err)
	allocator, err := inventory.NewAllocator(inventory.AllocatorParams{
		Repository: inventory.NewRepository(client.DB()),
		Logger:     logg,
	})
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(client.DB()),
		Tx:         client,
		Outbox:     ob,
		Logger:     logg,
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(client.DB()),
		Tx:         client,
		Provider:   NewLocalProvider(),
		Orders:     ordersSvc,
		Inventory:  allocator,
		Ledger:     ledgerSvc,
		Outbox:     ob,
		Notifier:   notifications.NewDispatcher(notifier, logg),
		Guard:      guard,
		Logger:     logg,
	})
	require.NoError(t, err)

	return &paymentsHarness{
		client:    client,
		service:   svc,
		orders:    ordersSvc,
		allocator: allocator,
		notifier:  notifier,
		listing:   dbtest.SeedListing(t, client, uuid.New(), 1500, mode, units),
		buyerID:   uuid.New(),
	}
}

// checkout reproduces the order + PENDING payment a buyer checkout leaves behind.
func (h *paymentsHarness) checkout(t *testing.T, qty int) (*models.Order, *models.Payment) {
	t.Helper()
	ctx := context.Background()
	var order *models.Order
	require.NoError(t, h.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = h.orders.Create(ctx, tx, orders.CreateInput{BuyerID: h.buyerID, Listing: h.listing, Quantity: qty})
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			if _, err := h.allocator.Reserve(ctx, tx, h.listing.ID, item.ID, 15*time.Minute); err != nil {
				return err
			}
		}
		return nil
	}))

	quote, err := h.service.Quote(ctx, order)
	require.NoError(t, err)

	var payment *models.Payment
	require.NoError(t, h.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payment, err = h.service.Open(ctx, tx, order, quote)
		if err != nil {
			return err
		}
		_, err = h.orders.Transition(ctx, tx, order.ID, enums.OrderStatusAwaitingPayment, orders.SystemActor, "")
		return err
	}))
	return order, payment
}

func (h *paymentsHarness) order(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, h.client.DB().Where("id = ?", id).First(&order).Error)
	return &order
}

func (h *paymentsHarness) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.client.DB().Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func webhookBody(txid string) []byte {
	return []byte(fmt.Sprintf(`{"txid":%q,"timestamp":1700000000}`, txid))
}

func TestConfirmAutoListingPaysAndDelivers(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 2, nil)
	order, payment := h.checkout(t, 2)

	ack, err := h.service.HandleWebhook(context.Background(), webhookBody(payment.TxID))
	require.NoError(t, err)
	assert.Equal(t, &Ack{Processed: 1, Confirmed: 1}, ack)

	stored := h.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
	assert.NotNil(t, stored.PaidAt)

	var entries []models.LedgerEntry
	require.NoError(t, h.client.DB().Where("order_id = ?", order.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.LedgerCredit, entries[0].Type)
	assert.Equal(t, enums.LedgerHeld, entries[0].State)
	assert.Equal(t, enums.LedgerSourceOrderPayment, entries[0].Source)
	assert.Equal(t, order.TotalAmountCents, entries[0].AmountCents)
	assert.Equal(t, h.listing.SellerID, entries[0].UserID)

	assert.Equal(t, int64(2), h.count(t, &models.InventoryItem{}, "listing_id = ? AND status = ?", h.listing.ID, enums.InventoryStatusDelivered))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderPaid))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderDelivered))
	assert.Equal(t, []notifications.Kind{notifications.KindPaymentConfirmed, notifications.KindOrderDelivered}, h.notifier.kinds())
}

func TestDuplicateWebhookAddsNothing(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 1, nil)
	order, payment := h.checkout(t, 1)

	_, err := h.service.HandleWebhook(context.Background(), webhookBody(payment.TxID))
	require.NoError(t, err)
	entries := h.count(t, &models.LedgerEntry{}, "order_id = ?", order.ID)
	events := h.count(t, &models.OrderEvent{}, "order_id = ?", order.ID)

	ack, err := h.service.HandleWebhook(context.Background(), webhookBody(payment.TxID))
	require.NoError(t, err)
	assert.Equal(t, &Ack{Processed: 1, Ignored: 1}, ack)
	assert.Equal(t, entries, h.count(t, &models.LedgerEntry{}, "order_id = ?", order.ID))
	assert.Equal(t, events, h.count(t, &models.OrderEvent{}, "order_id = ?", order.ID))
	assert.Len(t, h.notifier.kinds(), 2)
}

func TestConfirmManualListingWaitsForSeller(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeManual, 1, nil)
	order, payment := h.checkout(t, 1)

	_, err := h.service.HandleWebhook(context.Background(), webhookBody(payment.TxID))
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusInDelivery, h.order(t, order.ID).Status)
	assert.Equal(t, int64(1), h.count(t, &models.InventoryItem{}, "listing_id = ? AND status = ? AND reserved_until IS NULL", h.listing.ID, enums.InventoryStatusReserved))
	assert.Equal(t, []notifications.Kind{notifications.KindPaymentConfirmed}, h.notifier.kinds())
}

func TestFailedRecordCancelsAndReleasesHolds(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 1, nil)
	order, payment := h.checkout(t, 1)

	body := []byte(fmt.Sprintf(`[{"txid":%q,"timestamp":"2024-01-01T00:00:00Z","status":"failed","reason":"card declined"}]`, payment.TxID))
	ack, err := h.service.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Failed)

	assert.Equal(t, enums.OrderStatusCancelled, h.order(t, order.ID).Status)
	var stored models.Payment
	require.NoError(t, h.client.DB().Where("id = ?", payment.ID).First(&stored).Error)
	assert.Equal(t, enums.PaymentStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "card declined", *stored.FailureReason)

	assert.Equal(t, int64(1), h.count(t, &models.InventoryItem{}, "listing_id = ? AND status = ?", h.listing.ID, enums.InventoryStatusAvailable))
	assert.Equal(t, int64(0), h.count(t, &models.LedgerEntry{}, "order_id = ?", order.ID))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderCancelled))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentFailed))

	ack, err = h.service.HandleWebhook(context.Background(), webhookBody(payment.TxID))
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Ignored, "a late confirm for a failed payment is ignored")
}

func TestUnknownStatusIsRejectedWithoutStateChange(t *testing.T) {
	for _, status := range []string{"declined", "pending", "cancelled", "confirmd"} {
		t.Run(status, func(t *testing.T) {
			guard := newMemoryGuardStore()
			txGuard, err := NewTxGuard(guard, time.Hour, "payments")
			require.NoError(t, err)
			h := newPaymentsHarness(t, enums.DeliveryModeAuto, 1, txGuard)
			order, payment := h.checkout(t, 1)

			body := []byte(fmt.Sprintf(`[{"txid":%q,"status":%q}]`, payment.TxID, status))
			ack, err := h.service.HandleWebhook(context.Background(), body)
			require.NoError(t, err)
			assert.Equal(t, &Ack{Processed: 1, Rejected: 1}, ack)

			assert.Equal(t, enums.OrderStatusAwaitingPayment, h.order(t, order.ID).Status)
			var stored models.Payment
			require.NoError(t, h.client.DB().Where("id = ?", payment.ID).First(&stored).Error)
			assert.Equal(t, enums.PaymentStatusPending, stored.Status)
			assert.Equal(t, int64(0), h.count(t, &models.LedgerEntry{}, "order_id = ?", order.ID))
			assert.Equal(t, int64(0), h.count(t, &models.InventoryItem{}, "listing_id = ? AND status = ?", h.listing.ID, enums.InventoryStatusDelivered))
			assert.Equal(t, int64(1), h.count(t, &models.WebhookRejection{}, "reason = ?", fmt.Sprintf("unknown status %q", status)))
			assert.False(t, guard.has("payments", payment.TxID), "a rejected record must not claim the txid")
			assert.Empty(t, h.notifier.kinds())

			ack, err = h.service.HandleWebhook(context.Background(), webhookBody(payment.TxID))
			require.NoError(t, err)
			assert.Equal(t, 1, ack.Confirmed, "a later valid record still settles")
		})
	}
}

func TestExpireCancelsAbandonedCheckout(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 1, nil)
	ctx := context.Background()

	var order *models.Order
	require.NoError(t, h.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = h.orders.Create(ctx, tx, orders.CreateInput{BuyerID: h.buyerID, Listing: h.listing, Quantity: 1})
		if err != nil {
			return err
		}
		_, err = h.allocator.Reserve(ctx, tx, h.listing.ID, order.Items[0].ID, 15*time.Minute)
		return err
	}))

	expired, err := h.service.Expire(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, enums.OrderStatusCancelled, h.order(t, order.ID).Status)
	assert.Equal(t, int64(1), h.count(t, &models.InventoryItem{}, "listing_id = ? AND status = ?", h.listing.ID, enums.InventoryStatusAvailable))
	assert.Equal(t, int64(0), h.count(t, &models.Payment{}, "order_id = ?", order.ID))

	again, err := h.service.Expire(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestBatchAcknowledgesUnknownAndRejectsMissingTxID(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 1, nil)
	_, payment := h.checkout(t, 1)

	body := []byte(fmt.Sprintf(`{"transactions":[{"txid":%q,"timestamp":1},{"txid":"unknown","timestamp":2},{"timestamp":3}]}`, payment.TxID))
	ack, err := h.service.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, &Ack{Processed: 3, Confirmed: 1, Ignored: 1, Rejected: 1}, ack)
	assert.Equal(t, int64(1), h.count(t, &models.WebhookRejection{}, "reason = ?", "record missing txid"))
}

func TestUnparseableBodyIsRejected(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 0, nil)

	ack, err := h.service.HandleWebhook(context.Background(), []byte(`{"txid":`))
	require.Error(t, err)
	assert.Nil(t, ack)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformed))
	assert.Equal(t, int64(1), h.count(t, &models.WebhookRejection{}, "payload = ?", `{"txid":`))

	list, err := h.service.Rejections(context.Background(), pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Rejections, 1)
	assert.Equal(t, LocalProviderName, list.Rejections[0].Provider)
}

func TestGuardKeepsSettledTxIDsAndClearsUnknown(t *testing.T) {
	store := newMemoryGuardStore()
	guard, err := NewTxGuard(store, time.Hour, "payments-webhook")
	require.NoError(t, err)
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 1, guard)
	_, payment := h.checkout(t, 1)

	_, err = h.service.HandleWebhook(context.Background(), webhookBody("not-yet-known"))
	require.NoError(t, err)
	assert.False(t, store.has("payments-webhook", "not-yet-known"))

	_, err = h.service.HandleWebhook(context.Background(), webhookBody(payment.TxID))
	require.NoError(t, err)
	assert.True(t, store.has("payments-webhook", payment.TxID))

	ack, err := h.service.HandleWebhook(context.Background(), webhookBody(payment.TxID))
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Ignored)
}

func TestExpireCancelsUnpaidOrder(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 1, nil)
	order, payment := h.checkout(t, 1)

	expired, err := h.service.Expire(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	assert.Equal(t, enums.OrderStatusCancelled, h.order(t, order.ID).Status)
	var stored models.Payment
	require.NoError(t, h.client.DB().Where("id = ?", payment.ID).First(&stored).Error)
	assert.Equal(t, enums.PaymentStatusFailed, stored.Status)
	assert.Equal(t, int64(1), h.count(t, &models.InventoryItem{}, "listing_id = ? AND status = ?", h.listing.ID, enums.InventoryStatusAvailable))

	expired, err = h.service.Expire(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestVerifySignatureWithSecret(t *testing.T) {
	h := newPaymentsHarness(t, enums.DeliveryModeAuto, 0, nil)
	h.service.secret = "whsec"
	body := webhookBody("tx")

	require.NoError(t, h.service.VerifySignature(Sign("whsec", body), body))
	err := h.service.VerifySignature(Sign("other", body), body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
