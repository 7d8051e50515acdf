package webhooks

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/pantrylink/pantrylink-backend/internal/subscriptions"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

const testSigningSecret = "whsec_test_secret"

type fakeHandler struct {
	err    error
	events []*stripe.Event
}

func (f *fakeHandler) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeSigner struct{}

func (fakeSigner) SigningSecret() string { return testSigningSecret }

// memoryStore backs the real IdempotencyGuard in these tests so the
// controller is exercised against the guard's actual SetNX semantics.
type memoryStore struct {
	keys    map[string]bool
	deleted []string
}

func (m *memoryStore) IdempotencyKey(scope, eventID string) string {
	return "idempotency:" + scope + ":" + eventID
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.deleted = append(m.deleted, key)
		delete(m.keys, key)
	}
	return nil
}

func testGuard(t *testing.T, store *memoryStore) *subscriptions.IdempotencyGuard {
	t.Helper()
	guard, err := subscriptions.NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatal(err)
	}
	return guard
}

func signedRequest(payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(payload))
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testSigningSecret)
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

// ConstructEvent rejects payloads that are not event objects or whose
// api_version does not match the SDK's pinned version, so the fixture
// carries both fields.
var eventPayload = fmt.Sprintf(
	`{"id":"evt_123","object":"event","api_version":%q,"type":"customer.subscription.updated","data":{"object":{}}}`,
	stripe.APIVersion,
)

func TestStripeWebhookDispatchesVerifiedEvent(t *testing.T) {
	svc := &fakeHandler{}
	guard := testGuard(t, &memoryStore{})
	handler := StripeWebhook(svc, fakeSigner{}, guard, quietLogger())

	rec := httptest.NewRecorder()
	handler(rec, signedRequest(eventPayload))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(svc.events) != 1 || svc.events[0].ID != "evt_123" {
		t.Fatalf("events = %+v", svc.events)
	}
	if !strings.Contains(rec.Body.String(), `"processed"`) || strings.Contains(rec.Body.String(), "already_processed") {
		t.Fatalf("first delivery must be processed, body = %s", rec.Body.String())
	}
}

func TestStripeWebhookRejectsMissingSignature(t *testing.T) {
	svc := &fakeHandler{}
	handler := StripeWebhook(svc, fakeSigner{}, testGuard(t, &memoryStore{}), quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(eventPayload))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(svc.events) != 0 {
		t.Fatal("unverified event must not reach the handler")
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeHandler{}
	handler := StripeWebhook(svc, fakeSigner{}, testGuard(t, &memoryStore{}), quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(eventPayload))
	req.Header.Set("Stripe-Signature", "t=12345,v1=deadbeef")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(svc.events) != 0 {
		t.Fatal("unverified event must not reach the handler")
	}
}

func TestStripeWebhookSkipsDuplicateDelivery(t *testing.T) {
	svc := &fakeHandler{}
	guard := testGuard(t, &memoryStore{})
	handler := StripeWebhook(svc, fakeSigner{}, guard, quietLogger())

	first := httptest.NewRecorder()
	handler(first, signedRequest(eventPayload))
	second := httptest.NewRecorder()
	handler(second, signedRequest(eventPayload))

	if second.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d", second.Code)
	}
	if len(svc.events) != 1 {
		t.Fatalf("handler ran %d times, want 1", len(svc.events))
	}
	if !strings.Contains(second.Body.String(), "already_processed") {
		t.Fatalf("duplicate body = %s", second.Body.String())
	}
}

func TestStripeWebhookUnmarksOnHandlerFailure(t *testing.T) {
	svc := &fakeHandler{err: errors.New("db down")}
	store := &memoryStore{}
	handler := StripeWebhook(svc, fakeSigner{}, testGuard(t, store), quietLogger())

	rec := httptest.NewRecorder()
	handler(rec, signedRequest(eventPayload))

	if rec.Code == http.StatusOK {
		t.Fatal("failed handling must not report success")
	}
	if len(store.deleted) != 1 || !strings.HasSuffix(store.deleted[0], "evt_123") {
		t.Fatalf("deleted = %v", store.deleted)
	}

	// Stripe retries; the retry should process cleanly.
	svc.err = nil
	rec = httptest.NewRecorder()
	handler(rec, signedRequest(eventPayload))
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d", rec.Code)
	}
}
