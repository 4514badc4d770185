package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/pubsub"
)

type recordingNotifier struct {
	sent []Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	notifier := &recordingNotifier{err: errors.New("topic unavailable")}
	dispatcher := NewDispatcher(notifier, logg)

	buyer, order := uuid.New(), uuid.New()
	dispatcher.Send(context.Background(),
		PaymentConfirmed(buyer, order, 1999, enums.CurrencyUSD),
		OrderDelivered(buyer, order, 1999, enums.CurrencyUSD),
	)

	if len(notifier.sent) != 2 {
		t.Fatalf("expected both messages attempted, got %d", len(notifier.sent))
	}
	if notifier.sent[0].SentAt.IsZero() {
		t.Fatalf("expected sent_at stamped")
	}
	if !strings.Contains(buf.String(), "notification delivery failed") {
		t.Fatalf("expected failure logged, got %s", buf.String())
	}
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Send(context.Background(), RefundIssued(uuid.New(), uuid.New(), 100, enums.CurrencyUSD))
	NewDispatcher(nil, nil).Send(context.Background(), RefundIssued(uuid.New(), uuid.New(), 100, enums.CurrencyUSD))
}

func TestMessageText(t *testing.T) {
	msg := PayoutConfirmed(uuid.New(), nil, 12345, enums.CurrencyUSD)
	if msg.Text != "Payout of 123.45 USD confirmed" {
		t.Fatalf("unexpected text %q", msg.Text)
	}
	if msg.OrderID != nil {
		t.Fatalf("payout without order should have no order id")
	}
}

type fakePublisher struct {
	topic string
	msg   *pubsub.Message
	err   error
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "server-id", r.err }

func (f *fakePublisher) Publish(_ context.Context, topic string, msg *pubsub.Message) pubsub.Result {
	f.topic = topic
	f.msg = msg
	return fakeResult{err: f.err}
}

func TestPubSubNotifierPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n, err := NewPubSubNotifier(pub, "lb-notifications")
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	orderID := uuid.New()
	msg := RefundIssued(uuid.New(), orderID, 500, enums.CurrencyUSD)

	if err := n.Notify(context.Background(), msg); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if pub.topic != "lb-notifications" {
		t.Fatalf("published to %q", pub.topic)
	}
	if pub.msg.Attributes["kind"] != string(KindRefundIssued) || pub.msg.Attributes["order_id"] != orderID.String() {
		t.Fatalf("unexpected attributes %v", pub.msg.Attributes)
	}
	var decoded Message
	if err := json.Unmarshal(pub.msg.Data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.AmountCents != 500 {
		t.Fatalf("unexpected payload %+v", decoded)
	}

	pub.err = errors.New("deadline exceeded")
	if err := n.Notify(context.Background(), msg); err == nil {
		t.Fatalf("expected publish error")
	}
}
