package agencies

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
)

// Repository holds agency persistence operations bound to the caller's
// tenant-scoped transaction.
type Repository struct{}

// NewRepository constructs an agencies repo.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts an agency row.
func (r *Repository) Create(tx *gorm.DB, agency *models.Agency) error {
	return tx.Create(agency).Error
}

// FindByID loads an agency, or nil when no row is visible in this scope.
func (r *Repository) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Agency, error) {
	var agency models.Agency
	if err := tx.First(&agency, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &agency, nil
}

// Update persists the provided agency row.
func (r *Repository) Update(tx *gorm.DB, agency *models.Agency) error {
	return tx.Save(agency).Error
}

// List returns every agency in the scope ordered by name.
func (r *Repository) List(tx *gorm.DB) ([]models.Agency, error) {
	var rows []models.Agency
	err := tx.Order("name ASC").Find(&rows).Error
	return rows, err
}

// CountClients reports how many clients reference the agency.
func (r *Repository) CountClients(tx *gorm.DB, agencyID uuid.UUID) (int64, error) {
	var count int64
	err := tx.Model(&models.Client{}).Where("agency_id = ?", agencyID).Count(&count).Error
	return count, err
}

// Delete removes an agency row.
func (r *Repository) Delete(tx *gorm.DB, id uuid.UUID) error {
	return tx.Delete(&models.Agency{}, "id = ?", id).Error
}
