package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/pkg/enums"
)

// Voucher is a redeemable entitlement issued to a client. Status changes
// only happen through the lifecycle service; rows with a redemption are
// never deleted.
type Voucher struct {
	ID                uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code              string              `gorm:"column:code;not null;uniqueIndex"`
	TenantID          uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	ClientID          uuid.UUID           `gorm:"column:client_id;type:uuid;not null;index"`
	AgencyID          uuid.UUID           `gorm:"column:agency_id;type:uuid;not null;index"`
	Status            enums.VoucherStatus `gorm:"column:status;type:voucher_status;not null;default:'issued'"`
	IssuedAt          time.Time           `gorm:"column:issued_at;not null"`
	ExpiresAt         time.Time           `gorm:"column:expires_at;not null"`
	UnfulfilledReason *string             `gorm:"column:unfulfilled_reason"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
