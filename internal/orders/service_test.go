package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/db"
	"github.com/lootbay/marketplace-backend/pkg/db/dbtest"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

type ordersHarness struct {
	client  *db.Client
	service *Service
	listing *models.Listing
	buyerID uuid.UUID
}

func newOrdersHarness(t *testing.T) *ordersHarness {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(client.DB()),
		Outbox:     outbox.NewWriter(outbox.NewRepository(client.DB()), logg),
		Logger:     logg,
	})
	require.NoError(t, err)
	listing := dbtest.SeedListing(t, client, uuid.New(), 1500, enums.DeliveryModeAuto, 0)
	return &ordersHarness{client: client, service: svc, listing: listing, buyerID: uuid.New()}
}

func (h *ordersHarness) create(t *testing.T, qty int) *models.Order {
	t.Helper()
	var order *models.Order
	require.NoError(t, h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		order, err = h.service.Create(context.Background(), tx, CreateInput{BuyerID: h.buyerID, Listing: h.listing, Quantity: qty})
		return err
	}))
	return order
}

func (h *ordersHarness) move(t *testing.T, orderID uuid.UUID, to enums.OrderStatus, actor Actor) (*TransitionResult, error) {
	t.Helper()
	var res *TransitionResult
	err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		res, err = h.service.Transition(context.Background(), tx, orderID, to, actor, "")
		return err
	})
	return res, err
}

func (h *ordersHarness) walk(t *testing.T, orderID uuid.UUID, path ...enums.OrderStatus) {
	t.Helper()
	for _, status := range path {
		_, err := h.move(t, orderID, status, SystemActor)
		require.NoError(t, err, "move to %s", status)
	}
}

func TestCreateSnapshotsEachUnit(t *testing.T) {
	h := newOrdersHarness(t)
	order := h.create(t, 3)

	assert.Equal(t, enums.OrderStatusCreated, order.Status)
	assert.Equal(t, int64(4500), order.TotalAmountCents)
	assert.Equal(t, h.listing.SellerID, order.SellerID)
	require.Len(t, order.Items, 3)
	for _, item := range order.Items {
		assert.NotEqual(t, uuid.Nil, item.ID)
		assert.Equal(t, h.listing.Title, item.Title)
		assert.Equal(t, int64(1500), item.UnitPriceCents)
	}

	events, err := h.service.Events(context.Background(), Actor{UserID: h.buyerID, Role: enums.RoleBuyer}, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.OrderStatusCreated, events[0].Type)
}

func TestTransitionHappyPathAppendsEvents(t *testing.T) {
	h := newOrdersHarness(t)
	order := h.create(t, 1)

	h.walk(t, order.ID,
		enums.OrderStatusAwaitingPayment,
		enums.OrderStatusPaid,
		enums.OrderStatusInDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusCompleted,
	)

	stored, err := h.service.Get(context.Background(), Actor{Role: enums.RoleAdmin}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	assert.NotNil(t, stored.DeliveredAt)
	assert.NotNil(t, stored.CompletedAt)

	events, err := h.service.Events(context.Background(), Actor{Role: enums.RoleAdmin}, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 6)
	byType := map[enums.OrderStatus]models.OrderEvent{}
	for _, event := range events {
		byType[event.Type] = event
	}
	assert.Equal(t, enums.OrderStatusDelivered, byType[enums.OrderStatusCompleted].FromStatus)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, byType[enums.OrderStatusPaid].FromStatus)

	var outboxRows []models.OutboxEvent
	require.NoError(t, h.client.DB().Where("aggregate_id = ?", order.ID).Find(&outboxRows).Error)
	types := make([]enums.OutboxEventType, 0, len(outboxRows))
	for _, row := range outboxRows {
		types = append(types, row.EventType)
	}
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventOrderDelivered, enums.EventOrderCompleted}, types)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	h := newOrdersHarness(t)
	order := h.create(t, 1)

	_, err := h.move(t, order.ID, enums.OrderStatusPaid, SystemActor)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))

	h.walk(t, order.ID, enums.OrderStatusCancelled)
	_, err = h.move(t, order.ID, enums.OrderStatusAwaitingPayment, SystemActor)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "order is already CANCELLED", typed.Message())
}

func TestMarkPaidTwiceIsNoop(t *testing.T) {
	h := newOrdersHarness(t)
	order := h.create(t, 1)
	h.walk(t, order.ID, enums.OrderStatusAwaitingPayment)

	ctx := context.Background()
	var first, second *TransitionResult
	require.NoError(t, h.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		first, err = h.service.MarkPaid(ctx, tx, order.ID)
		return err
	}))
	require.NoError(t, h.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		second, err = h.service.MarkPaid(ctx, tx, order.ID)
		return err
	}))
	assert.True(t, first.Applied)
	assert.False(t, second.Applied)

	var paidEvents int64
	require.NoError(t, h.client.DB().Model(&models.OrderEvent{}).
		Where("order_id = ? AND type = ?", order.ID, enums.OrderStatusPaid).
		Count(&paidEvents).Error)
	assert.Equal(t, int64(1), paidEvents)
}

func TestOpenDisputeRules(t *testing.T) {
	ctx := context.Background()
	buyer := func(h *ordersHarness) Actor { return Actor{UserID: h.buyerID, Role: enums.RoleBuyer} }
	dispute := func(h *ordersHarness, orderID uuid.UUID, actor Actor) error {
		return h.client.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := h.service.OpenDispute(ctx, tx, orderID, actor, "codes do not work")
			return err
		})
	}

	t.Run("buyer before delivery", func(t *testing.T) {
		h := newOrdersHarness(t)
		order := h.create(t, 1)
		h.walk(t, order.ID, enums.OrderStatusAwaitingPayment, enums.OrderStatusPaid, enums.OrderStatusInDelivery)

		err := dispute(h, order.ID, buyer(h))
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
		assert.Equal(t, "order not delivered", pkgerrors.As(err).Message())
	})

	t.Run("other buyer", func(t *testing.T) {
		h := newOrdersHarness(t)
		order := h.create(t, 1)
		h.walk(t, order.ID, enums.OrderStatusAwaitingPayment, enums.OrderStatusPaid, enums.OrderStatusInDelivery, enums.OrderStatusDelivered)

		err := dispute(h, order.ID, Actor{UserID: uuid.New(), Role: enums.RoleBuyer})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	})

	t.Run("buyer after delivery", func(t *testing.T) {
		h := newOrdersHarness(t)
		order := h.create(t, 1)
		h.walk(t, order.ID, enums.OrderStatusAwaitingPayment, enums.OrderStatusPaid, enums.OrderStatusInDelivery, enums.OrderStatusDelivered)

		require.NoError(t, dispute(h, order.ID, buyer(h)))
		stored, err := h.service.Get(ctx, buyer(h), order.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusDisputed, stored.Status)
	})

	t.Run("admin while in delivery", func(t *testing.T) {
		h := newOrdersHarness(t)
		order := h.create(t, 1)
		h.walk(t, order.ID, enums.OrderStatusAwaitingPayment, enums.OrderStatusPaid, enums.OrderStatusInDelivery)

		require.NoError(t, dispute(h, order.ID, Actor{UserID: uuid.New(), Role: enums.RoleAdmin}))
	})

	t.Run("seller", func(t *testing.T) {
		h := newOrdersHarness(t)
		order := h.create(t, 1)
		err := dispute(h, order.ID, Actor{UserID: h.listing.SellerID, Role: enums.RoleSeller})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	})
}

func TestGetAuthorizesParties(t *testing.T) {
	h := newOrdersHarness(t)
	order := h.create(t, 1)
	ctx := context.Background()

	_, err := h.service.Get(ctx, Actor{UserID: h.buyerID, Role: enums.RoleBuyer}, order.ID)
	require.NoError(t, err)
	_, err = h.service.Get(ctx, Actor{UserID: h.listing.SellerID, Role: enums.RoleSeller}, order.ID)
	require.NoError(t, err)
	_, err = h.service.Get(ctx, Actor{UserID: uuid.New(), Role: enums.RoleBuyer}, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = h.service.Get(ctx, Actor{Role: enums.RoleAdmin}, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListForBuyerPaginates(t *testing.T) {
	h := newOrdersHarness(t)
	for i := 0; i < 5; i++ {
		h.create(t, 1)
	}
	ctx := context.Background()

	first, err := h.service.ListForBuyer(ctx, h.buyerID, pagination.Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Orders, 3)
	require.NotEmpty(t, first.NextCursor)

	second, err := h.service.ListForBuyer(ctx, h.buyerID, pagination.Params{Limit: 3, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 2)
	assert.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, o := range append(first.Orders, second.Orders...) {
		assert.False(t, seen[o.ID], "order listed twice")
		seen[o.ID] = true
	}

	sellerPage, err := h.service.ListForSeller(ctx, h.listing.SellerID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, sellerPage.Orders, 5)
}

func TestReleasableSkipsOpenDisputes(t *testing.T) {
	h := newOrdersHarness(t)
	ctx := context.Background()
	path := []enums.OrderStatus{enums.OrderStatusAwaitingPayment, enums.OrderStatusPaid, enums.OrderStatusInDelivery, enums.OrderStatusDelivered}

	plain := h.create(t, 1)
	h.walk(t, plain.ID, path...)
	contested := h.create(t, 1)
	h.walk(t, contested.ID, path...)
	require.NoError(t, h.client.DB().Create(&models.Dispute{
		OrderID:  contested.ID,
		OpenedBy: h.buyerID,
		Status:   enums.DisputeStatusOpen,
		Reason:   "item never arrived",
	}).Error)

	rows, err := h.service.Releasable(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, plain.ID, rows[0].ID)

	rows, err = h.service.Releasable(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStaleUnpaidIncludesAbandonedCheckouts(t *testing.T) {
	h := newOrdersHarness(t)
	ctx := context.Background()

	abandoned := h.create(t, 1)
	awaiting := h.create(t, 1)
	h.walk(t, awaiting.ID, enums.OrderStatusAwaitingPayment)
	paid := h.create(t, 1)
	h.walk(t, paid.ID, enums.OrderStatusAwaitingPayment, enums.OrderStatusPaid)
	cancelled := h.create(t, 1)
	h.walk(t, cancelled.ID, enums.OrderStatusCancelled)

	rows, err := h.service.StaleUnpaid(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{abandoned.ID, awaiting.ID}, ids)

	rows, err = h.service.StaleUnpaid(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		want     bool
	}{
		{enums.OrderStatusCreated, enums.OrderStatusAwaitingPayment, true},
		{enums.OrderStatusAwaitingPayment, enums.OrderStatusPaid, true},
		{enums.OrderStatusPaid, enums.OrderStatusCompleted, false},
		{enums.OrderStatusDelivered, enums.OrderStatusDisputed, true},
		{enums.OrderStatusDisputed, enums.OrderStatusRefunded, true},
		{enums.OrderStatusDisputed, enums.OrderStatusDelivered, false},
		{enums.OrderStatusCompleted, enums.OrderStatusRefunded, false},
		{enums.OrderStatusRefunded, enums.OrderStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
