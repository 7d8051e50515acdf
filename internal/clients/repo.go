package clients

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
)

// Repository holds client persistence operations bound to the caller's
// tenant-scoped transaction.
type Repository struct{}

// NewRepository constructs a clients repo.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts a client row.
func (r *Repository) Create(tx *gorm.DB, client *models.Client) error {
	return tx.Create(client).Error
}

// FindByID loads a client, or nil when no row is visible in this scope.
func (r *Repository) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	if err := tx.First(&client, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

// Update persists the provided client row.
func (r *Repository) Update(tx *gorm.DB, client *models.Client) error {
	return tx.Save(client).Error
}

// List returns clients ordered by last name, optionally scoped to one
// agency.
func (r *Repository) List(tx *gorm.DB, agencyID *uuid.UUID) ([]models.Client, error) {
	q := tx.Model(&models.Client{})
	if agencyID != nil {
		q = q.Where("agency_id = ?", *agencyID)
	}
	var rows []models.Client
	err := q.Order("last_name ASC, first_name ASC").Find(&rows).Error
	return rows, err
}
