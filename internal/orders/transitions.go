package orders

import (
	"fmt"

	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
)

// transitions is the only definition of legal order moves.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated: {
		enums.OrderStatusAwaitingPayment,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusAwaitingPayment: {
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusInDelivery,
		enums.OrderStatusDisputed,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusInDelivery: {
		enums.OrderStatusDelivered,
		enums.OrderStatusDisputed,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusCompleted,
		enums.OrderStatusDisputed,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusDisputed: {
		enums.OrderStatusCompleted,
		enums.OrderStatusRefunded,
	},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to enums.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	details := map[string]any{"from": from, "to": to}
	if from.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("order is already %s", from)).WithDetails(details)
	}
	return pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("order cannot move from %s to %s", from, to)).WithDetails(details)
}

// timestampColumn names the column stamped when an order enters status.
func timestampColumn(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPaid:
		return "paid_at"
	case enums.OrderStatusDelivered:
		return "delivered_at"
	case enums.OrderStatusCompleted:
		return "completed_at"
	case enums.OrderStatusCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

// statusEvent maps a status to the outbox event announcing it. PAID and
// AWAITING_PAYMENT carry payment facts and are emitted by their callers.
func statusEvent(status enums.OrderStatus) (enums.OutboxEventType, bool) {
	switch status {
	case enums.OrderStatusDelivered:
		return enums.EventOrderDelivered, true
	case enums.OrderStatusCompleted:
		return enums.EventOrderCompleted, true
	case enums.OrderStatusCancelled:
		return enums.EventOrderCancelled, true
	case enums.OrderStatusDisputed:
		return enums.EventOrderDisputed, true
	case enums.OrderStatusRefunded:
		return enums.EventOrderRefunded, true
	default:
		return "", false
	}
}
