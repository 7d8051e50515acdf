package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

// Entry describes one state change worth keeping a trail of.
type Entry struct {
	TenantID    *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	EntityType  string
	EntityID    string
	Changes     any
}

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

// Recorder appends audit rows in a transaction of their own, after the
// audited change has committed. Failures are logged and swallowed: an
// audit outage must never block or roll back the operation it records.
type Recorder struct {
	runner scopedRunner
	log    *logger.Logger
}

// NewRecorder constructs an audit recorder.
func NewRecorder(runner scopedRunner, log *logger.Logger) (*Recorder, error) {
	if runner == nil {
		return nil, fmt.Errorf("scoped runner is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Recorder{runner: runner, log: log}, nil
}

// Record appends one audit row under the given scope. It never returns
// an error; problems are reported to the log only.
func (r *Recorder) Record(ctx context.Context, scope tenancy.Scope, entry Entry) {
	row := models.AuditLog{
		TenantID:    entry.TenantID,
		ActorUserID: entry.ActorUserID,
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
	}
	if entry.Changes != nil {
		payload, err := json.Marshal(entry.Changes)
		if err != nil {
			r.log.Error(ctx, "audit changes not serializable", err)
		} else {
			row.Changes = payload
		}
	}
	err := r.runner.InScope(ctx, scope, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		scoped := r.log.WithField(ctx, "audit_action", entry.Action)
		r.log.Error(scoped, "audit record failed", err)
	}
}
