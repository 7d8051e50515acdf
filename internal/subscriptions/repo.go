package subscriptions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
)

// PlanRepository exposes plan persistence operations. Plans are global
// rows shared by every tenant, so the table carries no isolation policy.
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository constructs a plan repo bound to the provided GORM DB.
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// WithTx rebinds the repository to an open transaction.
func (r *PlanRepository) WithTx(tx *gorm.DB) *PlanRepository {
	return &PlanRepository{db: tx}
}

// FindByID loads a plan by its UUID.
func (r *PlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindByStripePriceID resolves the plan attached to a Stripe price.
func (r *PlanRepository) FindByStripePriceID(ctx context.Context, priceID string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// ResolvePlanByPrice maps a Stripe price to its plan inside an open
// transaction, or nil when no plan carries that price.
func (r *PlanRepository) ResolvePlanByPrice(tx *gorm.DB, priceID string) (*models.Plan, error) {
	var plan models.Plan
	err := tx.Where("stripe_price_id = ?", priceID).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// FindDefault returns the plan new tenants start on, or nil when none is
// marked.
func (r *PlanRepository) FindDefault(ctx context.Context) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).Where("is_default = true").First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// List returns every plan ordered by name.
func (r *PlanRepository) List(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := r.db.WithContext(ctx).Order("name asc").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
