package models

import (
	"time"

	"github.com/google/uuid"
)

// Client is a tenant-scoped voucher recipient.
type Client struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID      uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index"`
	AgencyID      *uuid.UUID `gorm:"column:agency_id;type:uuid;index"`
	FirstName     string     `gorm:"column:first_name;not null"`
	LastName      string     `gorm:"column:last_name;not null"`
	Email         *string    `gorm:"column:email"`
	Phone         *string    `gorm:"column:phone"`
	HouseholdSize *int       `gorm:"column:household_size"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
