package centers

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
)

// Repository holds distribution-center persistence operations bound to
// the caller's tenant-scoped transaction.
type Repository struct{}

// NewRepository constructs a centers repo.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts a center row.
func (r *Repository) Create(tx *gorm.DB, center *models.Center) error {
	return tx.Create(center).Error
}

// FindByID loads a center, or nil when no row is visible in this scope.
func (r *Repository) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Center, error) {
	var center models.Center
	if err := tx.First(&center, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &center, nil
}

// Update persists the provided center row.
func (r *Repository) Update(tx *gorm.DB, center *models.Center) error {
	return tx.Save(center).Error
}

// List returns every center in the scope ordered by name.
func (r *Repository) List(tx *gorm.DB) ([]models.Center, error) {
	var rows []models.Center
	err := tx.Order("name ASC").Find(&rows).Error
	return rows, err
}

// CountRedemptions reports how many redemptions happened at the center.
func (r *Repository) CountRedemptions(tx *gorm.DB, centerID uuid.UUID) (int64, error) {
	var count int64
	err := tx.Model(&models.Redemption{}).Where("center_id = ?", centerID).Count(&count).Error
	return count, err
}

// Delete removes a center row.
func (r *Repository) Delete(tx *gorm.DB, id uuid.UUID) error {
	return tx.Delete(&models.Center{}, "id = ?", id).Error
}
