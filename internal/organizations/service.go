package organizations

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/audit"
	"github.com/pantrylink/pantrylink-backend/internal/rbac"
	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/internal/users"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	pkgdb "github.com/pantrylink/pantrylink-backend/pkg/db"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/security"
)

const tempPasswordLength = 16

// Slugs become subdomain labels, so the DNS label rules apply.
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

type tenantsRepository interface {
	Create(tx *gorm.DB, tenant *models.Tenant) error
	FindByID(tx *gorm.DB, id uuid.UUID) (*models.Tenant, error)
	Update(tx *gorm.DB, tenant *models.Tenant) error
	List(tx *gorm.DB) ([]models.Tenant, error)
}

type userCreator interface {
	Create(tx *gorm.DB, user *models.User) error
}

type planSource interface {
	FindDefault(ctx context.Context) (*models.Plan, error)
}

type auditTrail interface {
	Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry)
}

// Service provisions and administers tenants. Mutations run under the
// platform scope and are restricted to platform operators, except
// UpdateBranding which tenant admins call for their own organization.
type Service interface {
	Create(ctx context.Context, actor *models.User, input CreateInput) (*CreateResult, error)
	List(ctx context.Context, actor *models.User) ([]models.Tenant, error)
	Get(ctx context.Context, actor *models.User, tenantID uuid.UUID) (*models.Tenant, error)
	Suspend(ctx context.Context, actor *models.User, tenantID uuid.UUID) error
	Reactivate(ctx context.Context, actor *models.User, tenantID uuid.UUID) error
	UpdateBranding(ctx context.Context, tenant *models.Tenant, actor *models.User, input BrandingInput) (*models.Tenant, error)
}

// CreateInput holds the fields to provision an organization with its
// first administrator.
type CreateInput struct {
	Name           string
	Slug           string
	AdminEmail     string
	AdminFirstName string
	AdminLastName  string
}

// CreateResult returns the provisioned tenant, its first administrator
// and the one-time temporary password for that account.
type CreateResult struct {
	Tenant       *models.Tenant
	Admin        *models.User
	TempPassword string
}

// BrandingInput holds tenant-editable presentation fields; nil leaves a
// field unchanged.
type BrandingInput struct {
	Name         *string
	LogoURL      *string
	PrimaryColor *string
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Runner   scopedRunner
	Tenants  tenantsRepository
	Users    userCreator
	Plans    planSource
	Trail    auditTrail
	Password config.PasswordConfig
}

type service struct {
	runner   scopedRunner
	tenants  tenantsRepository
	users    userCreator
	plans    planSource
	trail    auditTrail
	password config.PasswordConfig
}

// NewService builds the organization provisioning service.
func NewService(params ServiceParams) (Service, error) {
	if params.Runner == nil {
		return nil, fmt.Errorf("scoped runner required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenants repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user creator required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan source required")
	}
	if params.Trail == nil {
		return nil, fmt.Errorf("audit trail required")
	}
	return &service{
		runner:   params.Runner,
		tenants:  params.Tenants,
		users:    params.Users,
		plans:    params.Plans,
		trail:    params.Trail,
		password: params.Password,
	}, nil
}

func (s *service) Create(ctx context.Context, actor *models.User, input CreateInput) (*CreateResult, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	slug, err := ValidateSlug(input.Slug)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization name is required")
	}
	adminEmail := users.NormalizeEmail(input.AdminEmail)
	if adminEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "administrator email is required")
	}
	if strings.TrimSpace(input.AdminFirstName) == "" || strings.TrimSpace(input.AdminLastName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "administrator name is required")
	}

	tempPassword, err := security.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temporary password")
	}
	hash, err := security.HashPassword(tempPassword, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash temporary password")
	}

	plan, err := s.plans.FindDefault(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default plan")
	}

	tenant := &models.Tenant{
		Slug:               slug,
		Name:               strings.TrimSpace(input.Name),
		Status:             enums.TenantStatusActive,
		SubscriptionStatus: enums.SubscriptionStatusTrialing,
	}
	if plan != nil {
		tenant.PlanID = &plan.ID
	}
	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.AdminFirstName),
		LastName:     strings.TrimSpace(input.AdminLastName),
		Role:         enums.UserRoleAdmin,
		Status:       enums.UserStatusActive,
	}

	// Tenant and first administrator land in one transaction; an
	// organization without an admin would be unreachable.
	err = s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		if err := s.tenants.Create(tx, tenant); err != nil {
			if pkgdb.IsUniqueViolation(err, "tenants_slug_key") {
				return pkgerrors.New(pkgerrors.CodeConflict, "an organization with this slug already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tenant")
		}
		admin.TenantID = &tenant.ID
		if err := s.users.Create(tx, admin); err != nil {
			if pkgdb.IsUniqueViolation(err, "users_email_key") {
				return pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create administrator")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.PlatformScope(), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "tenant.created",
		EntityType:  "tenant",
		EntityID:    tenant.ID.String(),
		Changes:     map[string]any{"slug": tenant.Slug, "name": tenant.Name},
	})
	return &CreateResult{Tenant: tenant, Admin: admin, TempPassword: tempPassword}, nil
}

func (s *service) List(ctx context.Context, actor *models.User) ([]models.Tenant, error) {
	if err := requireViewer(actor); err != nil {
		return nil, err
	}

	var rows []models.Tenant
	err := s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		var listErr error
		rows, listErr = s.tenants.List(tx)
		if listErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, listErr, "list tenants")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, actor *models.User, tenantID uuid.UUID) (*models.Tenant, error) {
	if err := requireViewer(actor); err != nil {
		return nil, err
	}

	var tenant *models.Tenant
	err := s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		found, err := s.tenants.FindByID(tx, tenantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		tenant = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *service) Suspend(ctx context.Context, actor *models.User, tenantID uuid.UUID) error {
	if err := s.setStatus(ctx, actor, tenantID, enums.TenantStatusSuspended); err != nil {
		return err
	}
	s.trail.Record(ctx, tenancy.PlatformScope(), audit.Entry{
		TenantID:    &tenantID,
		ActorUserID: actorID(actor),
		Action:      "tenant.suspended",
		EntityType:  "tenant",
		EntityID:    tenantID.String(),
	})
	return nil
}

func (s *service) Reactivate(ctx context.Context, actor *models.User, tenantID uuid.UUID) error {
	if err := s.setStatus(ctx, actor, tenantID, enums.TenantStatusActive); err != nil {
		return err
	}
	s.trail.Record(ctx, tenancy.PlatformScope(), audit.Entry{
		TenantID:    &tenantID,
		ActorUserID: actorID(actor),
		Action:      "tenant.reactivated",
		EntityType:  "tenant",
		EntityID:    tenantID.String(),
	})
	return nil
}

func (s *service) UpdateBranding(ctx context.Context, tenant *models.Tenant, actor *models.User, input BrandingInput) (*models.Tenant, error) {
	if tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant is required")
	}
	if actor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if actor.TenantID == nil || *actor.TenantID != tenant.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account does not belong to this organization")
	}
	if !rbac.Has(actor.Role, rbac.PermSettingsManage) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "settings management not permitted")
	}

	var updated *models.Tenant
	err := s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		found, err := s.tenants.FindByID(tx, tenant.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "organization name cannot be empty")
			}
			found.Name = name
		}
		if input.LogoURL != nil {
			found.LogoURL = input.LogoURL
		}
		if input.PrimaryColor != nil {
			found.PrimaryColor = input.PrimaryColor
		}
		if err := s.tenants.Update(tx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tenant")
		}
		updated = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "tenant.branding_updated",
		EntityType:  "tenant",
		EntityID:    tenant.ID.String(),
	})
	return updated, nil
}

func (s *service) setStatus(ctx context.Context, actor *models.User, tenantID uuid.UUID, status enums.TenantStatus) error {
	if err := requireOperator(actor); err != nil {
		return err
	}
	return s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		found, err := s.tenants.FindByID(tx, tenantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		if found.Status == status {
			return nil
		}
		found.Status = status
		if err := s.tenants.Update(tx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tenant status")
		}
		return nil
	})
}

// ValidateSlug normalizes and checks a subdomain slug, returning the
// canonical form.
func ValidateSlug(raw string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(raw))
	if len(slug) < 3 || len(slug) > 63 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "slug must be between 3 and 63 characters")
	}
	if !slugPattern.MatchString(slug) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "slug may contain only lowercase letters, digits and hyphens")
	}
	if tenancy.IsReservedLabel(slug) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("slug %q is reserved", slug))
	}
	return slug, nil
}

func requireOperator(actor *models.User) error {
	if actor == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if actor.TenantID != nil || !rbac.Has(actor.Role, rbac.PermOrganizationManage) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "platform operator access required")
	}
	return nil
}

func requireViewer(actor *models.User) error {
	if actor == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if actor.TenantID != nil || !rbac.Has(actor.Role, rbac.PermOrganizationView) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "platform operator access required")
	}
	return nil
}

func actorID(actor *models.User) *uuid.UUID {
	if actor == nil {
		return nil
	}
	return &actor.ID
}
