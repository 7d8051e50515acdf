package users

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
)

// Repository holds user persistence operations bound to the caller's
// scoped transaction.
type Repository struct{}

// NewRepository constructs a users repo.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts a user row.
func (r *Repository) Create(tx *gorm.DB, user *models.User) error {
	return tx.Create(user).Error
}

// FindByID loads a user, or nil when no row is visible in this scope.
func (r *Repository) FindByID(tx *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail loads a user by normalized email, or nil when absent.
func (r *Repository) FindByEmail(tx *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := tx.Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Update persists the provided user row.
func (r *Repository) Update(tx *gorm.DB, user *models.User) error {
	return tx.Save(user).Error
}

// StampLastLogin refreshes the user's last_login_at column.
func (r *Repository) StampLastLogin(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return tx.Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// List returns the users in the scope ordered by name.
func (r *Repository) List(tx *gorm.DB) ([]models.User, error) {
	var rows []models.User
	err := tx.Order("last_name ASC, first_name ASC").Find(&rows).Error
	return rows, err
}

// NormalizeEmail lowercases and trims an address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
