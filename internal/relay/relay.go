// Package relay moves committed outbox rows onto Pub/Sub. Each batch is
// claimed, published and settled inside one transaction, so a crash leaves
// the rows pending and they are published again (at-least-once).
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/metrics"
	"github.com/lootbay/marketplace-backend/pkg/outbox/registry"
	"github.com/lootbay/marketplace-backend/pkg/pubsub"
	"github.com/lootbay/marketplace-backend/pkg/tracing"
)

const jitterWindow = 250 * time.Millisecond

// Store is the slice of outbox.Repository the relay uses.
type Store interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, ids []uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, maxAttempts int, at time.Time) error
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Router interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// Publisher is satisfied by *pubsub.Client.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *pubsub.Message) pubsub.Result
}

// Options tune batching and retry.
type Options struct {
	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	MaxBackoff     time.Duration
	PublishTimeout time.Duration
}

func OptionsFromConfig(cfg config.OutboxConfig) Options {
	return Options{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.MaxBackoff < o.PollInterval {
		o.MaxBackoff = max(10*time.Second, o.PollInterval)
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 15 * time.Second
	}
	return o
}

type Params struct {
	Options   Options
	DB        Transactor
	Store     Store
	Router    Router
	Publisher Publisher
	Metrics   *metrics.OutboxMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type Relay struct {
	opts    Options
	db      Transactor
	store   Store
	router  Router
	pub     Publisher
	metrics *metrics.OutboxMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("transactor is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Router == nil:
		return nil, errors.New("event router is required")
	case p.Publisher == nil:
		return nil, errors.New("publisher is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Relay{
		opts:    p.Options.withDefaults(),
		db:      p.DB,
		store:   p.Store,
		router:  p.Router,
		pub:     p.Publisher,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     now,
	}, nil
}

// Run drains batches until ctx ends. A full batch is followed straight away
// by the next one; an empty or partial batch waits one poll interval, and a
// failed batch backs off exponentially up to MaxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.opts.PollInterval
	for {
		n, err := r.Drain(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, r.opts.MaxBackoff)
		case n == r.opts.BatchSize:
			wait = r.opts.PollInterval
			continue
		default:
			wait = r.opts.PollInterval
		}
		if err := sleep(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

type tally struct {
	published, retried, parked int
}

// Drain claims one batch, publishes it and settles every row. It returns
// the number of rows claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	start := time.Now()
	var (
		claimed int
		counts  tally
	)
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.ClaimBatch(tx, r.opts.BatchSize, r.opts.MaxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}
		spanCtx, span := tracing.Start(ctx, "outbox.drain", attribute.Int("outbox.claimed", claimed))
		counts, err = r.settle(spanCtx, tx, r.publish(spanCtx, events))
		tracing.End(span, err)
		return err
	})
	if err != nil {
		return claimed, err
	}
	if claimed > 0 {
		r.metrics.Count(metrics.OutboxPublished, counts.published)
		r.metrics.Count(metrics.OutboxRetried, counts.retried)
		r.metrics.Count(metrics.OutboxParked, counts.parked)
		r.metrics.ObserveBatch(time.Since(start))
	}
	return claimed, nil
}

// outcome is the fate of one claimed row. A set reason parks the row; an
// error without one schedules a retry.
type outcome struct {
	event  models.OutboxEvent
	topic  string
	err    error
	reason enums.OutboxDLQErrorReason
}

// publish hands every routable row to the publisher before waiting on any
// result so the SDK can batch them.
func (r *Relay) publish(ctx context.Context, events []models.OutboxEvent) []outcome {
	ctx, cancel := context.WithTimeout(ctx, r.opts.PublishTimeout)
	defer cancel()

	outcomes := make([]outcome, len(events))
	pending := make([]pubsub.Result, len(events))
	for i, event := range events {
		outcomes[i].event = event
		resolved, err := r.router.Resolve(event)
		if err != nil {
			outcomes[i].err = err
			outcomes[i].reason = enums.OutboxDLQReasonUnroutable
			continue
		}
		outcomes[i].topic = resolved.Route.Topic
		pending[i] = r.pub.Publish(ctx, resolved.Route.Topic, message(event, resolved))
	}

	for i, result := range pending {
		if result == nil {
			continue
		}
		if _, err := result.Get(ctx); err != nil {
			outcomes[i].err = err
			switch {
			case permanent(err):
				outcomes[i].reason = enums.OutboxDLQReasonNonRetryable
			case outcomes[i].event.AttemptCount+1 >= r.opts.MaxAttempts:
				outcomes[i].err = fmt.Errorf("gave up after %d attempts: %w", r.opts.MaxAttempts, err)
				outcomes[i].reason = enums.OutboxDLQReasonMaxAttempts
			}
		}
	}
	return outcomes
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, outcomes []outcome) (tally, error) {
	var (
		counts    tally
		published []uuid.UUID
	)
	now := r.now().UTC()
	for _, o := range outcomes {
		switch {
		case o.err == nil:
			published = append(published, o.event.ID)
			continue
		case o.reason != "":
			if err := r.store.Park(tx, o.event, o.reason, o.err, r.opts.MaxAttempts, now); err != nil {
				return counts, fmt.Errorf("park %s: %w", o.event.ID, err)
			}
			counts.parked++
		default:
			if err := r.store.RecordFailure(tx, o.event.ID, o.err); err != nil {
				return counts, fmt.Errorf("record failure %s: %w", o.event.ID, err)
			}
			counts.retried++
		}
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"outbox_id":  o.event.ID.String(),
			"event_type": o.event.EventType,
			"topic":      o.topic,
			"attempt":    o.event.AttemptCount + 1,
			"parked":     o.reason != "",
			"reason":     string(o.reason),
			"error":      o.err.Error(),
		}), "outbox event not published")
	}

	if err := r.store.MarkPublished(tx, published, now); err != nil {
		return counts, fmt.Errorf("mark published: %w", err)
	}
	counts.published = len(published)
	return counts, nil
}

func message(event models.OutboxEvent, resolved *registry.Resolved) *pubsub.Message {
	return &pubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":         resolved.Envelope.EventID,
			"event_type":       string(event.EventType),
			"aggregate_type":   string(event.AggregateType),
			"aggregate_id":     event.AggregateID.String(),
			"occurred_at":      resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
			"envelope_version": strconv.Itoa(resolved.Envelope.Version),
		},
	}
}

// permanent reports publish errors that a retry cannot fix.
func permanent(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition, codes.Unauthenticated:
		return true
	default:
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
