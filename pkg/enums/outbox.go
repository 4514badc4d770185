package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
	AggregateDispute OutboxAggregateType = "dispute"
	AggregatePayout  OutboxAggregateType = "payout"
)

var aggregateTypes = newSet(
	AggregateOrder,
	AggregatePayment,
	AggregateDispute,
	AggregatePayout,
)

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return aggregateTypes.has(a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated    OutboxEventType = "order_created"
	EventOrderPaid       OutboxEventType = "order_paid"
	EventOrderDelivered  OutboxEventType = "order_delivered"
	EventOrderCompleted  OutboxEventType = "order_completed"
	EventOrderCancelled  OutboxEventType = "order_cancelled"
	EventOrderDisputed   OutboxEventType = "order_disputed"
	EventOrderRefunded   OutboxEventType = "order_refunded"
	EventPaymentFailed   OutboxEventType = "payment_failed"
	EventDisputeResolved OutboxEventType = "dispute_resolved"
	EventPayoutRequested OutboxEventType = "payout_requested"
)

var outboxEventTypes = newSet(
	EventOrderCreated,
	EventOrderPaid,
	EventOrderDelivered,
	EventOrderCompleted,
	EventOrderCancelled,
	EventOrderDisputed,
	EventOrderRefunded,
	EventPaymentFailed,
	EventDisputeResolved,
	EventPayoutRequested,
)

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return outboxEventTypes.has(e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse("event type", value)
}
