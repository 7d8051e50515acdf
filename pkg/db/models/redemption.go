package models

import (
	"time"

	"github.com/google/uuid"
)

// Redemption is the immutable record of a voucher's fulfillment. At most
// one row exists per voucher, created in the same transaction as the
// status flip to redeemed.
type Redemption struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	VoucherID        uuid.UUID `gorm:"column:voucher_id;type:uuid;not null;uniqueIndex"`
	TenantID         uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index"`
	RedeemedByUserID uuid.UUID `gorm:"column:redeemed_by_user_id;type:uuid;not null"`
	CenterID         uuid.UUID `gorm:"column:center_id;type:uuid;not null"`
	FailureReason    *string   `gorm:"column:failure_reason"`
	WeightKg         *float64  `gorm:"column:weight_kg"`
	RedeemedAt       time.Time `gorm:"column:redeemed_at;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}
