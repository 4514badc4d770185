package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// guardStore is the slice of pkg/redis the txid guard needs.
type guardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// TxGuard short-circuits repeat deliveries of a txid that was already settled.
// It is a fast path only; payment status in the database stays authoritative.
type TxGuard struct {
	store guardStore
	ttl   time.Duration
	scope string
}

// NewTxGuard builds a guard over a Redis-backed store.
func NewTxGuard(store guardStore, ttl time.Duration, scope string) (*TxGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &TxGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark claims txid. It returns true when txid was already claimed.
func (g *TxGuard) CheckAndMark(ctx context.Context, txid string) (bool, error) {
	if txid == "" {
		return false, errors.New("txid is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, txid), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set txid guard: %w", err)
	}
	return !set, nil
}

// Clear drops the claim so the next delivery is processed again.
func (g *TxGuard) Clear(ctx context.Context, txid string) error {
	if txid == "" {
		return errors.New("txid is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, txid))
}
