package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
)

type tenantStore interface {
	FindByStripeSubscriptionID(tx *gorm.DB, subscriptionID string) (*models.Tenant, error)
	FindByStripeCustomerID(tx *gorm.DB, customerID string) (*models.Tenant, error)
	Update(tx *gorm.DB, tenant *models.Tenant) error
}

type planResolver interface {
	ResolvePlanByPrice(tx *gorm.DB, priceID string) (*models.Plan, error)
}

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

// WebhookService applies Stripe subscription lifecycle events to the
// owning tenant's billing columns. Stripe is the source of truth for
// subscription state; the service only mirrors it.
type WebhookService struct {
	tenants tenantStore
	plans   planResolver
	runner  scopedRunner
}

// WebhookServiceParams collects the service dependencies.
type WebhookServiceParams struct {
	Tenants tenantStore
	Plans   planResolver
	Runner  scopedRunner
}

// NewWebhookService constructs the Stripe event consumer.
func NewWebhookService(params WebhookServiceParams) (*WebhookService, error) {
	if params.Tenants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant store required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan repo required")
	}
	if params.Runner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "scoped runner required")
	}
	return &WebhookService{
		tenants: params.Tenants,
		plans:   params.Plans,
		runner:  params.Runner,
	}, nil
}

// HandleEvent routes a verified Stripe event. Event types outside the
// subscription lifecycle are acknowledged without action.
func (s *WebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.syncSubscription(ctx, &stripeSub)
	default:
		return nil
	}
}

func (s *WebhookService) syncSubscription(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub == nil || stripeSub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}

	status, err := enums.ParseSubscriptionStatus(string(stripeSub.Status))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "map subscription status")
	}

	return s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		tenant, err := s.findTenant(tx, stripeSub)
		if err != nil {
			return err
		}
		if tenant == nil {
			// A subscription we never provisioned. Acknowledge so
			// Stripe stops retrying.
			return nil
		}

		tenant.SubscriptionStatus = status
		tenant.StripeSubscriptionID = &stripeSub.ID
		tenant.SubscriptionPeriodEnd = periodEnd(stripeSub)

		if priceID := determinePriceID(stripeSub); priceID != "" {
			plan, err := s.plans.ResolvePlanByPrice(tx, priceID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve plan for price")
			}
			if plan != nil {
				tenant.PlanID = &plan.ID
			}
		}

		if err := s.tenants.Update(tx, tenant); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tenant billing state")
		}
		return nil
	})
}

func (s *WebhookService) findTenant(tx *gorm.DB, stripeSub *stripe.Subscription) (*models.Tenant, error) {
	tenant, err := s.tenants.FindByStripeSubscriptionID(tx, stripeSub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup tenant by subscription")
	}
	if tenant != nil {
		return tenant, nil
	}
	if stripeSub.Customer == nil || stripeSub.Customer.ID == "" {
		return nil, nil
	}
	tenant, err = s.tenants.FindByStripeCustomerID(tx, stripeSub.Customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup tenant by customer")
	}
	return tenant, nil
}

func determinePriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

// periodEnd reads the current period end off the first subscription
// item, where the API reports it.
func periodEnd(sub *stripe.Subscription) *time.Time {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	ts := sub.Items.Data[0].CurrentPeriodEnd
	if ts <= 0 {
		return nil
	}
	end := time.Unix(ts, 0).UTC()
	return &end
}
