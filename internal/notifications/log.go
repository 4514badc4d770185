package notifications

import (
	"context"

	"github.com/lootbay/marketplace-backend/pkg/logger"
)

// LogNotifier writes messages to the log. It backs local runs.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	fields := map[string]any{
		"kind":         msg.Kind,
		"user_id":      msg.UserID.String(),
		"amount_cents": msg.AmountCents,
		"currency":     msg.Currency,
		"text":         msg.Text,
	}
	if msg.OrderID != nil {
		fields["order_id"] = msg.OrderID.String()
	}
	n.logg.Info(n.logg.WithFields(ctx, fields), "notification")
	return nil
}
