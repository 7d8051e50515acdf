package centers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/audit"
	"github.com/pantrylink/pantrylink-backend/internal/rbac"
	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
)

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

type centersRepository interface {
	Create(tx *gorm.DB, center *models.Center) error
	FindByID(tx *gorm.DB, id uuid.UUID) (*models.Center, error)
	Update(tx *gorm.DB, center *models.Center) error
	List(tx *gorm.DB) ([]models.Center, error)
	CountRedemptions(tx *gorm.DB, centerID uuid.UUID) (int64, error)
	Delete(tx *gorm.DB, id uuid.UUID) error
}

type auditTrail interface {
	Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry)
}

// Service manages the locations where vouchers are redeemed.
type Service interface {
	Create(ctx context.Context, tenant *models.Tenant, actor *models.User, input Input) (*models.Center, error)
	Update(ctx context.Context, tenant *models.Tenant, actor *models.User, centerID uuid.UUID, input Input) (*models.Center, error)
	Get(ctx context.Context, tenant *models.Tenant, actor *models.User, centerID uuid.UUID) (*models.Center, error)
	List(ctx context.Context, tenant *models.Tenant, actor *models.User) ([]models.Center, error)
	Delete(ctx context.Context, tenant *models.Tenant, actor *models.User, centerID uuid.UUID) error
}

// Input holds center fields for create and update.
type Input struct {
	Name    string
	Address *string
	Phone   *string
}

type service struct {
	runner scopedRunner
	repo   centersRepository
	trail  auditTrail
}

// NewService builds the center management service.
func NewService(runner scopedRunner, repo centersRepository, trail auditTrail) (Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("scoped runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("centers repository required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail required")
	}
	return &service{runner: runner, repo: repo, trail: trail}, nil
}

func (s *service) Create(ctx context.Context, tenant *models.Tenant, actor *models.User, input Input) (*models.Center, error) {
	if err := requireManage(tenant, actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "center name is required")
	}

	center := &models.Center{
		TenantID: tenant.ID,
		Name:     name,
		Address:  input.Address,
		Phone:    input.Phone,
	}
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		if err := s.repo.Create(tx, center); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create center")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "center.created",
		EntityType:  "center",
		EntityID:    center.ID.String(),
		Changes:     map[string]any{"name": center.Name},
	})
	return center, nil
}

func (s *service) Update(ctx context.Context, tenant *models.Tenant, actor *models.User, centerID uuid.UUID, input Input) (*models.Center, error) {
	if err := requireManage(tenant, actor); err != nil {
		return nil, err
	}

	var center *models.Center
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, centerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load center")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "center not found")
		}
		if name := strings.TrimSpace(input.Name); name != "" {
			found.Name = name
		}
		if input.Address != nil {
			found.Address = input.Address
		}
		if input.Phone != nil {
			found.Phone = input.Phone
		}
		if err := s.repo.Update(tx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update center")
		}
		center = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "center.updated",
		EntityType:  "center",
		EntityID:    centerID.String(),
	})
	return center, nil
}

func (s *service) Get(ctx context.Context, tenant *models.Tenant, actor *models.User, centerID uuid.UUID) (*models.Center, error) {
	if err := requireMember(tenant, actor); err != nil {
		return nil, err
	}

	var center *models.Center
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, centerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load center")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "center not found")
		}
		center = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return center, nil
}

func (s *service) List(ctx context.Context, tenant *models.Tenant, actor *models.User) ([]models.Center, error) {
	if err := requireMember(tenant, actor); err != nil {
		return nil, err
	}

	var rows []models.Center
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		var listErr error
		rows, listErr = s.repo.List(tx)
		if listErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, listErr, "list centers")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *service) Delete(ctx context.Context, tenant *models.Tenant, actor *models.User, centerID uuid.UUID) error {
	if err := requireManage(tenant, actor); err != nil {
		return err
	}

	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, centerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load center")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "center not found")
		}
		redemptions, err := s.repo.CountRedemptions(tx, centerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count center redemptions")
		}
		if redemptions > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "center has recorded redemptions and cannot be deleted")
		}
		return s.repo.Delete(tx, centerID)
	})
	if err != nil {
		return err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "center.deleted",
		EntityType:  "center",
		EntityID:    centerID.String(),
	})
	return nil
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

func requireManage(tenant *models.Tenant, actor *models.User) error {
	if err := requireMember(tenant, actor); err != nil {
		return err
	}
	if !rbac.Has(actor.Role, rbac.PermCenterManage) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "center management not permitted")
	}
	return nil
}
