package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lootbay/marketplace-backend/pkg/pubsub"
)

const publishTimeout = 5 * time.Second

// topicPublisher is satisfied by *pubsub.Client.
type topicPublisher interface {
	Publish(ctx context.Context, topic string, msg *pubsub.Message) pubsub.Result
}

// PubSubNotifier publishes messages to the notification topic, where the
// delivery service fans them out to email and push.
type PubSubNotifier struct {
	pub   topicPublisher
	topic string
}

// NewPubSubNotifier publishes on topic through pub.
func NewPubSubNotifier(pub topicPublisher, topic string) (*PubSubNotifier, error) {
	if pub == nil {
		return nil, errors.New("pubsub publisher required")
	}
	if topic == "" {
		return nil, errors.New("notification topic required")
	}
	return &PubSubNotifier{pub: pub, topic: topic}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	attrs := map[string]string{
		"kind":    string(msg.Kind),
		"user_id": msg.UserID.String(),
	}
	if msg.OrderID != nil {
		attrs["order_id"] = msg.OrderID.String()
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := n.pub.Publish(publishCtx, n.topic, &pubsub.Message{Data: data, Attributes: attrs}).Get(publishCtx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
