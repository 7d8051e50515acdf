package models

import (
	"time"

	"github.com/google/uuid"
)

// Session maps an opaque token to a user. The table carries no tenant
// isolation policy: it must be readable before a tenant is known.
type Session struct {
	Token     string    `gorm:"column:token;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
