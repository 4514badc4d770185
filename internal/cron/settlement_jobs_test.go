package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/internal/inventory"
	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/notifications"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/internal/payments"
	"github.com/lootbay/marketplace-backend/pkg/db/dbtest"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeReclaimer struct {
	results []int64
	calls   int
	limits  []int
}

func (f *fakeReclaimer) ReclaimExpired(_ context.Context, _ *gorm.DB, limit int) (int64, error) {
	f.limits = append(f.limits, limit)
	if f.calls >= len(f.results) {
		f.calls++
		return 0, nil
	}
	n := f.results[f.calls]
	f.calls++
	return n, nil
}

func TestHoldReclaimJobDrainsFullBatches(t *testing.T) {
	reclaimer := &fakeReclaimer{results: []int64{10, 10, 3}}
	job, err := NewHoldReclaimJob(HoldReclaimJobParams{
		Logger:    testLogger(),
		DB:        passthroughTx{},
		Inventory: reclaimer,
		Batch:     10,
	})
	if err != nil {
		t.Fatalf("NewHoldReclaimJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reclaimer.calls != 3 {
		t.Fatalf("expected 3 rounds, got %d", reclaimer.calls)
	}
	for _, limit := range reclaimer.limits {
		if limit != 10 {
			t.Fatalf("expected batch 10, got %d", limit)
		}
	}
}

type fakeOrderReader struct {
	stale      []models.Order
	releasable []models.Order
	cutoff     time.Time
	limit      int
}

func (f *fakeOrderReader) StaleUnpaid(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.cutoff, f.limit = cutoff, limit
	return f.stale, nil
}

func (f *fakeOrderReader) Releasable(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.cutoff, f.limit = cutoff, limit
	return f.releasable, nil
}

type fakeOrderStep struct {
	seen    []uuid.UUID
	skip    map[uuid.UUID]bool
	failing map[uuid.UUID]bool
}

func (f *fakeOrderStep) step(id uuid.UUID) (bool, error) {
	f.seen = append(f.seen, id)
	if f.failing[id] {
		return false, errors.New("db down")
	}
	return !f.skip[id], nil
}

func (f *fakeOrderStep) Expire(_ context.Context, id uuid.UUID) (bool, error) { return f.step(id) }

func (f *fakeOrderStep) AutoRelease(_ context.Context, id uuid.UUID) (bool, error) {
	return f.step(id)
}

func ordersWithIDs(ids ...uuid.UUID) []models.Order {
	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Order{ID: id})
	}
	return out
}

func TestPaymentExpiryJobUsesWindowAndContinuesPastFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	reader := &fakeOrderReader{stale: ordersWithIDs(a, b, c)}
	step := &fakeOrderStep{failing: map[uuid.UUID]bool{b: true}}

	jobIface, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:   testLogger(),
		Orders:   reader,
		Payments: step,
		Window:   30 * time.Minute,
		Batch:    25,
	})
	if err != nil {
		t.Fatalf("NewPaymentExpiryJob: %v", err)
	}
	job := jobIface.(*paymentExpiryJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(step.seen) != 3 {
		t.Fatalf("expected every order attempted, got %d", len(step.seen))
	}
	if want := now.Add(-30 * time.Minute); !reader.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, reader.cutoff)
	}
	if reader.limit != 25 {
		t.Fatalf("expected limit 25, got %d", reader.limit)
	}
}

func TestPaymentExpiryJobCancelsAbandonedCheckouts(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	logg := testLogger()
	ob := outbox.NewWriter(outbox.NewRepository(client.DB()), logg)

	ordersSvc, err := orders.NewService(orders.ServiceParams{Repository: orders.NewRepository(client.DB()), Outbox: ob, Logger: logg})
	require.NoError(t, err)
	allocator, err := inventory.NewAllocator(inventory.AllocatorParams{Repository: inventory.NewRepository(client.DB()), Logger: logg})
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repository: ledger.NewRepository(client.DB()), Tx: client, Outbox: ob, Logger: logg})
	require.NoError(t, err)
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repository: payments.NewRepository(client.DB()),
		Tx:         client,
		Provider:   payments.NewLocalProvider(),
		Orders:     ordersSvc,
		Inventory:  allocator,
		Ledger:     ledgerSvc,
		Outbox:     ob,
		Notifier:   notifications.NewDispatcher(notifications.NewLogNotifier(logg), logg),
		Logger:     logg,
	})
	require.NoError(t, err)

	listing := dbtest.SeedListing(t, client, uuid.New(), 900, enums.DeliveryModeAuto, 2)
	reserve := func() *models.Order {
		var order *models.Order
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			order, err = ordersSvc.Create(ctx, tx, orders.CreateInput{BuyerID: uuid.New(), Listing: listing, Quantity: 1})
			if err != nil {
				return err
			}
			_, err = allocator.Reserve(ctx, tx, listing.ID, order.Items[0].ID, 15*time.Minute)
			return err
		}))
		return order
	}
	// the first checkout died right after reserving, the second is still running
	stuck := reserve()
	fresh := reserve()
	require.NoError(t, client.DB().Model(&models.Order{}).
		Where("id = ?", stuck.ID).
		Update("created_at", time.Now().UTC().Add(-2*time.Hour)).Error)

	job, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:   logg,
		Orders:   ordersSvc,
		Payments: paymentsSvc,
		Window:   30 * time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(ctx))

	statusOf := func(id uuid.UUID) enums.OrderStatus {
		var order models.Order
		require.NoError(t, client.DB().Where("id = ?", id).First(&order).Error)
		return order.Status
	}
	require.Equal(t, enums.OrderStatusCancelled, statusOf(stuck.ID))
	require.Equal(t, enums.OrderStatusCreated, statusOf(fresh.ID))

	var available int64
	require.NoError(t, client.DB().Model(&models.InventoryItem{}).
		Where("listing_id = ? AND status = ?", listing.ID, enums.InventoryStatusAvailable).
		Count(&available).Error)
	require.Equal(t, int64(1), available)
}

func TestAutoReleaseJobReleasesDueOrders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()
	reader := &fakeOrderReader{releasable: ordersWithIDs(a, b)}
	step := &fakeOrderStep{skip: map[uuid.UUID]bool{b: true}}

	jobIface, err := NewAutoReleaseJob(AutoReleaseJobParams{
		Logger:     testLogger(),
		Orders:     reader,
		Settlement: step,
		After:      72 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewAutoReleaseJob: %v", err)
	}
	job := jobIface.(*autoReleaseJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(step.seen) != 2 {
		t.Fatalf("expected 2 orders attempted, got %d", len(step.seen))
	}
	if want := now.Add(-72 * time.Hour); !reader.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, reader.cutoff)
	}
	if reader.limit != defaultSettlementBatch {
		t.Fatalf("expected default batch, got %d", reader.limit)
	}
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	if _, err := NewPaymentExpiryJob(PaymentExpiryJobParams{Logger: testLogger(), Orders: &fakeOrderReader{}, Payments: &fakeOrderStep{}}); err == nil {
		t.Fatal("expected error for missing window")
	}
	if _, err := NewAutoReleaseJob(AutoReleaseJobParams{Logger: testLogger(), Orders: &fakeOrderReader{}, After: time.Hour}); err == nil {
		t.Fatal("expected error for missing settlement service")
	}
	if _, err := NewHoldReclaimJob(HoldReclaimJobParams{Logger: testLogger(), DB: passthroughTx{}}); err == nil {
		t.Fatal("expected error for missing allocator")
	}
}
