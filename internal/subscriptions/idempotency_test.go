package subscriptions

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]struct{}{}}
}

func (m *memoryStore) IdempotencyKey(scope, eventID string) string {
	return strings.Join([]string{"test", scope, eventID}, ":")
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keys[key]; exists {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestCheckAndMarkDetectsReplay(t *testing.T) {
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if seen {
		t.Fatal("first delivery must not be flagged")
	}

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if !seen {
		t.Fatal("replayed delivery must be flagged")
	}
}

func TestDeleteAllowsRetry(t *testing.T) {
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	if _, err := guard.CheckAndMark(ctx, "evt_2"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := guard.Delete(ctx, "evt_2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, err := guard.CheckAndMark(ctx, "evt_2")
	if err != nil {
		t.Fatalf("re-mark: %v", err)
	}
	if seen {
		t.Fatal("a cleared marker must allow reprocessing")
	}
}

func TestGuardValidation(t *testing.T) {
	if _, err := NewIdempotencyGuard(nil, time.Minute, "scope"); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewIdempotencyGuard(newMemoryStore(), -time.Second, "scope"); err == nil {
		t.Fatal("expected error for negative ttl")
	}
	if _, err := NewIdempotencyGuard(newMemoryStore(), time.Minute, ""); err == nil {
		t.Fatal("expected error for empty scope")
	}
}
