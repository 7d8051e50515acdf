package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/audit"
	"github.com/pantrylink/pantrylink-backend/internal/rbac"
	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	pkgdb "github.com/pantrylink/pantrylink-backend/pkg/db"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/security"
)

const tempPasswordLength = 16

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

type usersRepository interface {
	Create(tx *gorm.DB, user *models.User) error
	FindByID(tx *gorm.DB, id uuid.UUID) (*models.User, error)
	Update(tx *gorm.DB, user *models.User) error
	List(tx *gorm.DB) ([]models.User, error)
}

type limitGate interface {
	Admit(ctx context.Context, tx *gorm.DB, tenant *models.Tenant, kind enums.LimitKind) error
}

type sessionRevoker interface {
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}

type auditTrail interface {
	Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry)
}

// Service manages the accounts belonging to a tenant.
type Service interface {
	Create(ctx context.Context, tenant *models.Tenant, actor *models.User, input CreateInput) (*CreateResult, error)
	Update(ctx context.Context, tenant *models.Tenant, actor *models.User, userID uuid.UUID, input UpdateInput) (*models.User, error)
	Suspend(ctx context.Context, tenant *models.Tenant, actor *models.User, userID uuid.UUID) error
	Reactivate(ctx context.Context, tenant *models.Tenant, actor *models.User, userID uuid.UUID) error
	Get(ctx context.Context, tenant *models.Tenant, actor *models.User, userID uuid.UUID) (*models.User, error)
	List(ctx context.Context, tenant *models.Tenant, actor *models.User) ([]models.User, error)
}

// CreateInput holds the fields for a new tenant account.
type CreateInput struct {
	Email     string
	FirstName string
	LastName  string
	Role      enums.UserRole
	AgencyID  *uuid.UUID
}

// CreateResult returns the stored user alongside the one-time temporary
// password shown to the administrator.
type CreateResult struct {
	User         *models.User
	TempPassword string
}

// UpdateInput holds mutable account fields; nil leaves a field unchanged.
type UpdateInput struct {
	FirstName *string
	LastName  *string
	Role      *enums.UserRole
	AgencyID  *uuid.UUID
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Runner   scopedRunner
	Repo     usersRepository
	Gate     limitGate
	Sessions sessionRevoker
	Trail    auditTrail
	Password config.PasswordConfig
}

type service struct {
	runner   scopedRunner
	repo     usersRepository
	gate     limitGate
	sessions sessionRevoker
	trail    auditTrail
	password config.PasswordConfig
}

// NewService builds the tenant account service.
func NewService(params ServiceParams) (Service, error) {
	if params.Runner == nil {
		return nil, fmt.Errorf("scoped runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("limit gate required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session revoker required")
	}
	if params.Trail == nil {
		return nil, fmt.Errorf("audit trail required")
	}
	return &service{
		runner:   params.Runner,
		repo:     params.Repo,
		gate:     params.Gate,
		sessions: params.Sessions,
		trail:    params.Trail,
		password: params.Password,
	}, nil
}

func (s *service) Create(ctx context.Context, tenant *models.Tenant, actor *models.User, input CreateInput) (*CreateResult, error) {
	if err := requireManager(tenant, actor); err != nil {
		return nil, err
	}
	email := NormalizeEmail(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first and last name are required")
	}
	if err := validateTenantRole(input.Role); err != nil {
		return nil, err
	}
	if input.Role == enums.UserRoleThirdParty && input.AgencyID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "third-party accounts must be attached to an agency")
	}

	tempPassword, err := security.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temporary password")
	}
	hash, err := security.HashPassword(tempPassword, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash temporary password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         input.Role,
		Status:       enums.UserStatusActive,
		TenantID:     &tenant.ID,
		AgencyID:     input.AgencyID,
	}
	err = s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		if err := s.gate.Admit(ctx, tx, tenant, enums.LimitKindUser); err != nil {
			return err
		}
		if err := s.repo.Create(tx, user); err != nil {
			if pkgdb.IsUniqueViolation(err, "users_email_key") {
				return pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "user.created",
		EntityType:  "user",
		EntityID:    user.ID.String(),
		Changes:     map[string]any{"role": user.Role, "email": user.Email},
	})
	return &CreateResult{User: user, TempPassword: tempPassword}, nil
}

func (s *service) Update(ctx context.Context, tenant *models.Tenant, actor *models.User, userID uuid.UUID, input UpdateInput) (*models.User, error) {
	if err := requireManager(tenant, actor); err != nil {
		return nil, err
	}
	if input.Role != nil {
		if err := validateTenantRole(*input.Role); err != nil {
			return nil, err
		}
	}

	var user *models.User
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		applyUpdate(found, input)
		if found.Role == enums.UserRoleThirdParty && found.AgencyID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "third-party accounts must be attached to an agency")
		}
		if err := s.repo.Update(tx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
		}
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "user.updated",
		EntityType:  "user",
		EntityID:    userID.String(),
	})
	return user, nil
}

func (s *service) Suspend(ctx context.Context, tenant *models.Tenant, actor *models.User, userID uuid.UUID) error {
	if err := requireManager(tenant, actor); err != nil {
		return err
	}
	if actor.ID == userID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot suspend your own account")
	}
	if err := s.setStatus(ctx, tenant, userID, enums.UserStatusSuspended); err != nil {
		return err
	}
	// Revoke open sessions so the suspension takes effect immediately.
	if err := s.sessions.DeleteForUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "user.suspended",
		EntityType:  "user",
		EntityID:    userID.String(),
	})
	return nil
}

func (s *service) Reactivate(ctx context.Context, tenant *models.Tenant, actor *models.User, userID uuid.UUID) error {
	if err := requireManager(tenant, actor); err != nil {
		return err
	}
	if err := s.setStatus(ctx, tenant, userID, enums.UserStatusActive); err != nil {
		return err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "user.reactivated",
		EntityType:  "user",
		EntityID:    userID.String(),
	})
	return nil
}

func (s *service) Get(ctx context.Context, tenant *models.Tenant, actor *models.User, userID uuid.UUID) (*models.User, error) {
	if err := requireMember(tenant, actor); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) List(ctx context.Context, tenant *models.Tenant, actor *models.User) ([]models.User, error) {
	if err := requireManager(tenant, actor); err != nil {
		return nil, err
	}

	var rows []models.User
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		var listErr error
		rows, listErr = s.repo.List(tx)
		if listErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, listErr, "list users")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *service) setStatus(ctx context.Context, tenant *models.Tenant, userID uuid.UUID, status enums.UserStatus) error {
	return s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if found.Status == status {
			return nil
		}
		found.Status = status
		if err := s.repo.Update(tx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user status")
		}
		return nil
	})
}

// validateTenantRole rejects roles that cannot exist inside a tenant.
// Platform operators are provisioned separately and never through the
// tenant-facing account flow.
func validateTenantRole(role enums.UserRole) error {
	if !role.IsValid() || role.IsPlatform() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("role %q cannot be assigned to a tenant account", role))
	}
	return nil
}

func applyUpdate(user *models.User, input UpdateInput) {
	if input.FirstName != nil {
		user.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		user.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.Role != nil {
		user.Role = *input.Role
	}
	if input.AgencyID != nil {
		user.AgencyID = input.AgencyID
	}
}

func requireMember(tenant *models.Tenant, actor *models.User) error {
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "tenant is required")
	}
	if actor == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if actor.TenantID == nil || *actor.TenantID != tenant.ID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account does not belong to this organization")
	}
	return nil
}

func requireManager(tenant *models.Tenant, actor *models.User) error {
	if err := requireMember(tenant, actor); err != nil {
		return err
	}
	if !rbac.Has(actor.Role, rbac.PermUserManage) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "user management not permitted")
	}
	return nil
}
