package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/pkg/enums"
)

// User represents the canonical identity entity. A nil TenantID marks a
// platform-level user that operates outside tenant isolation.
type User struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string           `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string           `gorm:"column:password_hash;not null"`
	FirstName    string           `gorm:"column:first_name;not null"`
	LastName     string           `gorm:"column:last_name;not null"`
	Role         enums.UserRole   `gorm:"column:role;type:user_role;not null"`
	Status       enums.UserStatus `gorm:"column:status;type:user_status;not null;default:'active'"`
	TenantID     *uuid.UUID       `gorm:"column:tenant_id;type:uuid;index"`
	AgencyID     *uuid.UUID       `gorm:"column:agency_id;type:uuid"`
	LastLoginAt  *time.Time       `gorm:"column:last_login_at"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
