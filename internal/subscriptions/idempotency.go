package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type idempotencyStore interface {
	IdempotencyKey(scope, eventID string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// IdempotencyGuard keeps webhook deliveries from being processed twice.
// Stripe retries aggressively; the marker key outlives its retry window.
type IdempotencyGuard struct {
	store idempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard constructs a guard keyed under the given scope.
func NewIdempotencyGuard(store idempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark marks the event as seen. It returns true when the event
// was already marked and should be skipped.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete clears the marker so a failed delivery can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
