package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of state changes. Rows are never
// updated or deleted.
type AuditLog struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID    *uuid.UUID      `gorm:"column:tenant_id;type:uuid;index"`
	ActorUserID *uuid.UUID      `gorm:"column:actor_user_id;type:uuid"`
	Action      string          `gorm:"column:action;not null"`
	EntityType  string          `gorm:"column:entity_type;not null"`
	EntityID    string          `gorm:"column:entity_id;not null"`
	Changes     json.RawMessage `gorm:"column:changes;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
