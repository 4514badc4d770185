package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/outbox/payloads"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	return reg
}

func envelopeFor(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, ok := data.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	out, err := json.Marshal(outbox.Envelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return out
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := newTestRegistry(t)
	orderID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: envelopeFor(t, payloads.OrderCreatedEvent{
			OrderID:          orderID,
			Quantity:         2,
			TotalAmountCents: 1998,
			Currency:         enums.CurrencyUSD,
			TxID:             "tx-1",
		}),
	})
	require.NoError(t, err)
	require.Equal(t, "orders-topic", resolved.Route.Topic)
	require.NotEmpty(t, resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	require.Equal(t, orderID, payload.OrderID)
	require.Equal(t, int64(1998), payload.TotalAmountCents)
	require.Equal(t, "tx-1", payload.TxID)
}

func TestStatusEventsShareOnePayload(t *testing.T) {
	reg := newTestRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderDelivered,
		enums.EventOrderCompleted,
		enums.EventOrderCancelled,
		enums.EventOrderDisputed,
		enums.EventOrderRefunded,
	} {
		resolved, err := reg.Resolve(models.OutboxEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload: envelopeFor(t, payloads.OrderStatusEvent{
				OrderID:    uuid.New(),
				FromStatus: enums.OrderStatusDelivered,
				ToStatus:   enums.OrderStatusCompleted,
			}),
		})
		require.NoError(t, err, eventType)
		require.IsType(t, &payloads.OrderStatusEvent{}, resolved.Payload)
	}
}

func TestResolveRejectsUnroutableRows(t *testing.T) {
	reg := newTestRegistry(t)
	tests := map[string]models.OutboxEvent{
		"unknown type": {
			EventType:     "listing_archived",
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeFor(t, []byte(`{"reason":"none"}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   uuid.New(),
			Payload:       envelopeFor(t, []byte(`{}`)),
		},
		"nil aggregate": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			Payload:       envelopeFor(t, []byte(`{}`)),
		},
		"null data": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeFor(t, []byte("null")),
		},
		"not json": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
		"wrong payload shape": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeFor(t, []byte(`{"quantity":"two"}`)),
		},
	}
	for name, event := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.ErrorIs(t, err, ErrUnroutable)
		})
	}
}

func TestNewRequiresOrdersTopic(t *testing.T) {
	_, err := New(config.PubSubConfig{})
	require.Error(t, err)
}

func TestEventTypesCoversEveryEmitter(t *testing.T) {
	require.Len(t, newTestRegistry(t).EventTypes(), 10)
}
