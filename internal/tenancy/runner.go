package tenancy

import (
	"context"

	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"gorm.io/gorm"
)

// Runner executes database work inside a transaction whose first statement
// binds the isolation scope. Binding and the dependent queries share one
// checked-out connection; with pooled connections anything else silently
// breaks isolation. The settings are transaction-local (set_config third
// argument true), so the connection returns to the pool unbound.
type Runner struct {
	db *gorm.DB
}

// ScopedRunner is the surface repositories and services depend on. It is
// the only path to a scoped *gorm.DB: there is no way to query a
// tenant-scoped table without first naming the scope.
type ScopedRunner interface {
	InScope(ctx context.Context, scope Scope, fn func(tx *gorm.DB) error) error
}

// NewRunner builds a Runner on the shared GORM connection.
func NewRunner(db *gorm.DB) (*Runner, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db is required")
	}
	return &Runner{db: db}, nil
}

// InScope opens a transaction, binds the scope on it, and runs fn. If
// binding fails the transaction is rolled back and fn never runs; the
// operation aborts rather than fall back to an unscoped query.
func (r *Runner) InScope(ctx context.Context, scope Scope, fn func(tx *gorm.DB) error) error {
	if !scope.IsValid() {
		return pkgerrors.New(pkgerrors.CodeInternal, "isolation scope is required")
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, tx.Error, "begin scoped transaction")
	}

	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
			panic(rec)
		}
	}()

	if err := bind(tx, scope); err != nil {
		_ = tx.Rollback()
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind isolation scope")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit scoped transaction")
	}
	return nil
}

func bind(tx *gorm.DB, scope Scope) error {
	if scope.IsPlatform() {
		return tx.Exec("SELECT set_config('app.bypass_rls', 'on', true)").Error
	}
	tenantID, ok := scope.TenantID()
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "tenant scope without tenant id")
	}
	return tx.Exec("SELECT set_config('app.tenant_id', ?, true)", tenantID.String()).Error
}
