package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/pkg/enums"
)

// Tenant represents an isolated customer organization and its subdomain.
type Tenant struct {
	ID                    uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Slug                  string                   `gorm:"column:slug;not null;uniqueIndex"`
	Name                  string                   `gorm:"column:name;not null"`
	Status                enums.TenantStatus       `gorm:"column:status;type:tenant_status;not null;default:'pending'"`
	LogoURL               *string                  `gorm:"column:logo_url"`
	PrimaryColor          *string                  `gorm:"column:primary_color"`
	PlanID                *uuid.UUID               `gorm:"column:plan_id;type:uuid"`
	SubscriptionStatus    enums.SubscriptionStatus `gorm:"column:subscription_status;type:subscription_status;not null;default:'trialing'"`
	SubscriptionPeriodEnd *time.Time               `gorm:"column:subscription_period_end"`
	StripeCustomerID      *string                  `gorm:"column:stripe_customer_id"`
	StripeSubscriptionID  *string                  `gorm:"column:stripe_subscription_id;uniqueIndex"`
	CreatedAt             time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
