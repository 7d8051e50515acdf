package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
)

type stubPlans struct {
	byID      *models.Plan
	byDefault *models.Plan
}

func (s *stubPlans) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return s.byID, nil
}

func (s *stubPlans) FindDefault(ctx context.Context) (*models.Plan, error) {
	return s.byDefault, nil
}

func activeTenant() *models.Tenant {
	return &models.Tenant{
		ID:                 uuid.New(),
		Slug:               "acme",
		Name:               "Acme Food Bank",
		Status:             enums.TenantStatusActive,
		SubscriptionStatus: enums.SubscriptionStatusActive,
	}
}

func TestAdmitSkipsWhenDisabled(t *testing.T) {
	gate, err := NewGate(&stubPlans{}, false)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	tenant := activeTenant()
	tenant.SubscriptionStatus = enums.SubscriptionStatusUnpaid
	if err := gate.Admit(context.Background(), nil, tenant, enums.LimitKindUser); err != nil {
		t.Fatalf("gate must be inert when not enforcing, got %v", err)
	}
}

func TestAdmitRejectsBadStanding(t *testing.T) {
	gate, err := NewGate(&stubPlans{}, true)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	for _, status := range []enums.SubscriptionStatus{
		enums.SubscriptionStatusPastDue,
		enums.SubscriptionStatusCanceled,
		enums.SubscriptionStatusUnpaid,
		enums.SubscriptionStatusIncomplete,
		enums.SubscriptionStatusIncompleteExpired,
	} {
		tenant := activeTenant()
		tenant.SubscriptionStatus = status
		gotErr := gate.Admit(context.Background(), nil, tenant, enums.LimitKindAgency)
		typed := pkgerrors.As(gotErr)
		if typed == nil || typed.Code() != pkgerrors.CodePaymentRequired {
			t.Errorf("status %s: expected payment-required, got %v", status, gotErr)
		}
	}
}

func TestAdmitAllowsTrialing(t *testing.T) {
	plan := &models.Plan{Name: "starter"}
	gate, err := NewGate(&stubPlans{byDefault: plan}, true)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	tenant := activeTenant()
	tenant.SubscriptionStatus = enums.SubscriptionStatusTrialing
	// All caps nil: usage is never counted, so no transaction is needed.
	if err := gate.Admit(context.Background(), nil, tenant, enums.LimitKindUser); err != nil {
		t.Fatalf("trialing tenant with uncapped plan must pass, got %v", err)
	}
}

func TestAdmitUsesAssignedPlanOverDefault(t *testing.T) {
	limit := 0
	assigned := &models.Plan{ID: uuid.New(), Name: "frozen", MaxAgencies: &limit}
	gate, err := NewGate(&stubPlans{byID: assigned, byDefault: &models.Plan{Name: "starter"}}, true)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	tenant := activeTenant()
	tenant.PlanID = &assigned.ID

	// A zero cap rejects before any usage counting happens.
	gotErr := gate.Admit(context.Background(), nil, tenant, enums.LimitKindAgency)
	typed := pkgerrors.As(gotErr)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentRequired {
		t.Fatalf("expected payment-required from the assigned plan's cap, got %v", gotErr)
	}
}

func TestAdmitWithoutAnyPlanIsUnlimited(t *testing.T) {
	gate, err := NewGate(&stubPlans{}, true)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	if err := gate.Admit(context.Background(), nil, activeTenant(), enums.LimitKindVoucherPerMonth); err != nil {
		t.Fatalf("no plan rows should mean no caps, got %v", err)
	}
}

func TestAdmitRejectsUnknownKind(t *testing.T) {
	gate, err := NewGate(&stubPlans{}, true)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	if err := gate.Admit(context.Background(), nil, activeTenant(), enums.LimitKind("widget")); err == nil {
		t.Fatal("expected an error for an unknown limit kind")
	}
}

func TestStartOfMonth(t *testing.T) {
	at := time.Date(2025, time.March, 17, 13, 42, 9, 0, time.UTC)
	got := startOfMonth(at)
	want := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
