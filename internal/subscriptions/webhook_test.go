package subscriptions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
)

type fakeTenantStore struct {
	bySub    map[string]*models.Tenant
	byCust   map[string]*models.Tenant
	updated  *models.Tenant
	updCalls int
}

func (f *fakeTenantStore) FindByStripeSubscriptionID(tx *gorm.DB, id string) (*models.Tenant, error) {
	return f.bySub[id], nil
}

func (f *fakeTenantStore) FindByStripeCustomerID(tx *gorm.DB, id string) (*models.Tenant, error) {
	return f.byCust[id], nil
}

func (f *fakeTenantStore) Update(tx *gorm.DB, tenant *models.Tenant) error {
	f.updated = tenant
	f.updCalls++
	return nil
}

type fakePlanResolver struct {
	byPrice map[string]*models.Plan
}

func (f *fakePlanResolver) ResolvePlanByPrice(tx *gorm.DB, priceID string) (*models.Plan, error) {
	return f.byPrice[priceID], nil
}

type passthroughRunner struct{}

func (passthroughRunner) InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestWebhookService(t *testing.T, tenants *fakeTenantStore, plans *fakePlanResolver) *WebhookService {
	t.Helper()
	if plans == nil {
		plans = &fakePlanResolver{}
	}
	svc, err := NewWebhookService(WebhookServiceParams{
		Tenants: tenants,
		Plans:   plans,
		Runner:  passthroughRunner{},
	})
	if err != nil {
		t.Fatalf("new webhook service: %v", err)
	}
	return svc
}

func subscriptionEvent(t *testing.T, eventType stripe.EventType, sub map[string]any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal subscription: %v", err)
	}
	return &stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventSyncsStatusAndPeriod(t *testing.T) {
	tenant := &models.Tenant{
		ID:                 uuid.New(),
		Slug:               "acme",
		SubscriptionStatus: enums.SubscriptionStatusTrialing,
	}
	tenants := &fakeTenantStore{bySub: map[string]*models.Tenant{"sub_123": tenant}}
	svc := newTestWebhookService(t, tenants, nil)

	end := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, map[string]any{
		"id":     "sub_123",
		"status": "past_due",
		"items": map[string]any{
			"data": []map[string]any{{"current_period_end": end.Unix()}},
		},
	})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if tenants.updated == nil {
		t.Fatal("tenant was not updated")
	}
	if tenants.updated.SubscriptionStatus != enums.SubscriptionStatusPastDue {
		t.Fatalf("unexpected status %s", tenants.updated.SubscriptionStatus)
	}
	if tenants.updated.SubscriptionPeriodEnd == nil || !tenants.updated.SubscriptionPeriodEnd.Equal(end) {
		t.Fatalf("unexpected period end %v", tenants.updated.SubscriptionPeriodEnd)
	}
}

func TestHandleEventFallsBackToCustomerLookup(t *testing.T) {
	tenant := &models.Tenant{ID: uuid.New(), Slug: "acme"}
	tenants := &fakeTenantStore{byCust: map[string]*models.Tenant{"cus_9": tenant}}
	svc := newTestWebhookService(t, tenants, nil)

	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionCreated, map[string]any{
		"id":       "sub_new",
		"status":   "active",
		"customer": map[string]any{"id": "cus_9"},
	})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if tenants.updated == nil {
		t.Fatal("tenant was not updated")
	}
	if tenants.updated.StripeSubscriptionID == nil || *tenants.updated.StripeSubscriptionID != "sub_new" {
		t.Fatal("subscription id was not attached to the tenant")
	}
}

func TestHandleEventMapsPriceToPlan(t *testing.T) {
	tenant := &models.Tenant{ID: uuid.New(), Slug: "acme"}
	plan := &models.Plan{ID: uuid.New(), Name: "standard"}
	tenants := &fakeTenantStore{bySub: map[string]*models.Tenant{"sub_1": tenant}}
	plans := &fakePlanResolver{byPrice: map[string]*models.Plan{"price_std": plan}}
	svc := newTestWebhookService(t, tenants, plans)

	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, map[string]any{
		"id":     "sub_1",
		"status": "active",
		"items": map[string]any{
			"data": []map[string]any{{"price": map[string]any{"id": "price_std"}}},
		},
	})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if tenants.updated.PlanID == nil || *tenants.updated.PlanID != plan.ID {
		t.Fatal("plan was not mapped from the stripe price")
	}
}

func TestHandleEventIgnoresUnknownSubscription(t *testing.T) {
	tenants := &fakeTenantStore{}
	svc := newTestWebhookService(t, tenants, nil)

	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionDeleted, map[string]any{
		"id":     "sub_stranger",
		"status": "canceled",
	})

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown subscriptions must be acknowledged, got %v", err)
	}
	if tenants.updCalls != 0 {
		t.Fatal("no tenant should have been updated")
	}
}

func TestHandleEventIgnoresUnrelatedTypes(t *testing.T) {
	tenants := &fakeTenantStore{}
	svc := newTestWebhookService(t, tenants, nil)

	event := &stripe.Event{Type: stripe.EventTypePaymentIntentCreated, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unrelated event types are acknowledged, got %v", err)
	}
	if tenants.updCalls != 0 {
		t.Fatal("no tenant should have been touched")
	}
}
