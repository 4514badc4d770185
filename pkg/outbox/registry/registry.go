// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads into the typed structs in package payloads.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/outbox/payloads"
)

// ErrUnroutable wraps every Resolve failure. Such rows can never be
// published and belong in the DLQ.
var ErrUnroutable = errors.New("unroutable outbox event")

// Route binds an event type to its aggregate, topic and payload type.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// Resolved is a validated row ready to publish.
type Resolved struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

type Registry struct {
	routes map[enums.OutboxEventType]Route
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// New routes every event type to the orders topic.
func New(cfg config.PubSubConfig) (*Registry, error) {
	topic := cfg.OrdersTopic
	if topic == "" {
		return nil, errors.New("orders topic is required")
	}

	r := &Registry{routes: make(map[enums.OutboxEventType]Route)}
	add := func(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, newPayload func() any) {
		r.routes[eventType] = Route{EventType: eventType, AggregateType: aggregate, Topic: topic, newPayload: newPayload}
	}

	add(enums.EventOrderCreated, enums.AggregateOrder, payloadOf[payloads.OrderCreatedEvent]())
	add(enums.EventOrderPaid, enums.AggregateOrder, payloadOf[payloads.OrderPaidEvent]())
	for _, status := range []enums.OutboxEventType{
		enums.EventOrderDelivered,
		enums.EventOrderCompleted,
		enums.EventOrderCancelled,
		enums.EventOrderDisputed,
		enums.EventOrderRefunded,
	} {
		add(status, enums.AggregateOrder, payloadOf[payloads.OrderStatusEvent]())
	}
	add(enums.EventPaymentFailed, enums.AggregatePayment, payloadOf[payloads.PaymentFailedEvent]())
	add(enums.EventDisputeResolved, enums.AggregateDispute, payloadOf[payloads.DisputeResolvedEvent]())
	add(enums.EventPayoutRequested, enums.AggregatePayout, payloadOf[payloads.PayoutRequestedEvent]())
	return r, nil
}

// EventTypes lists the routed event types in sorted order.
func (r *Registry) EventTypes() []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Resolve checks the row against its route and decodes the payload.
func (r *Registry) Resolve(event models.OutboxEvent) (*Resolved, error) {
	route, ok := r.routes[event.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: no route for %q", ErrUnroutable, event.EventType)
	}
	if route.AggregateType != event.AggregateType {
		return nil, fmt.Errorf("%w: %s expects aggregate %s, got %s", ErrUnroutable, event.EventType, route.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing aggregate id", ErrUnroutable)
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnroutable, err)
	}
	payload := route.newPayload()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrUnroutable, event.EventType, err)
	}
	return &Resolved{Route: route, Envelope: env, Payload: payload}, nil
}
