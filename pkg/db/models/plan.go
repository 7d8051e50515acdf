package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan holds subscription limits. Nil caps mean unlimited.
type Plan struct {
	ID                  uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name                string    `gorm:"column:name;not null;uniqueIndex"`
	MaxUsers            *int      `gorm:"column:max_users"`
	MaxAgencies         *int      `gorm:"column:max_agencies"`
	MaxVouchersPerMonth *int      `gorm:"column:max_vouchers_per_month"`
	StripePriceID       *string   `gorm:"column:stripe_price_id;uniqueIndex"`
	IsDefault           bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
