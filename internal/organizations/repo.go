package organizations

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
)

// Repository holds tenant persistence operations. Every method takes
// the caller's transaction; tenant rows are only reachable under the
// platform scope, so callers are expected to run inside it.
type Repository struct{}

// NewRepository constructs a tenants repo.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts a tenant row.
func (r *Repository) Create(tx *gorm.DB, tenant *models.Tenant) error {
	return tx.Create(tenant).Error
}

// FindByID loads a tenant, or nil when absent.
func (r *Repository) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := tx.First(&tenant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// FindBySlug loads a tenant by its subdomain slug, or nil when absent.
func (r *Repository) FindBySlug(tx *gorm.DB, slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := tx.Where("slug = ?", slug).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// FindByStripeSubscriptionID loads the tenant attached to a Stripe
// subscription, or nil when no tenant carries it.
func (r *Repository) FindByStripeSubscriptionID(tx *gorm.DB, subscriptionID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := tx.Where("stripe_subscription_id = ?", subscriptionID).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// FindByStripeCustomerID loads the tenant attached to a Stripe customer,
// or nil when no tenant carries it.
func (r *Repository) FindByStripeCustomerID(tx *gorm.DB, customerID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := tx.Where("stripe_customer_id = ?", customerID).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// Update persists the provided tenant row.
func (r *Repository) Update(tx *gorm.DB, tenant *models.Tenant) error {
	return tx.Save(tenant).Error
}

// List returns every tenant ordered by name.
func (r *Repository) List(tx *gorm.DB) ([]models.Tenant, error) {
	var rows []models.Tenant
	err := tx.Order("name ASC").Find(&rows).Error
	return rows, err
}
