package agencies

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
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
)

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

type agenciesRepository interface {
	Create(tx *gorm.DB, agency *models.Agency) error
	FindByID(tx *gorm.DB, id uuid.UUID) (*models.Agency, error)
	Update(tx *gorm.DB, agency *models.Agency) error
	List(tx *gorm.DB) ([]models.Agency, error)
	CountClients(tx *gorm.DB, agencyID uuid.UUID) (int64, error)
	Delete(tx *gorm.DB, id uuid.UUID) error
}

type limitGate interface {
	Admit(ctx context.Context, tx *gorm.DB, tenant *models.Tenant, kind enums.LimitKind) error
}

type auditTrail interface {
	Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry)
}

// Service manages the partner agencies that issue vouchers.
type Service interface {
	Create(ctx context.Context, tenant *models.Tenant, actor *models.User, input Input) (*models.Agency, error)
	Update(ctx context.Context, tenant *models.Tenant, actor *models.User, agencyID uuid.UUID, input Input) (*models.Agency, error)
	Get(ctx context.Context, tenant *models.Tenant, actor *models.User, agencyID uuid.UUID) (*models.Agency, error)
	List(ctx context.Context, tenant *models.Tenant, actor *models.User) ([]models.Agency, error)
	Delete(ctx context.Context, tenant *models.Tenant, actor *models.User, agencyID uuid.UUID) error
}

// Input holds agency fields for create and update.
type Input struct {
	Name  string
	Email *string
	Phone *string
}

type service struct {
	runner scopedRunner
	repo   agenciesRepository
	gate   limitGate
	trail  auditTrail
}

// NewService builds the agency management service.
func NewService(runner scopedRunner, repo agenciesRepository, gate limitGate, trail auditTrail) (Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("scoped runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("agencies repository required")
	}
	if gate == nil {
		return nil, fmt.Errorf("subscription gate required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail required")
	}
	return &service{runner: runner, repo: repo, gate: gate, trail: trail}, nil
}

func (s *service) Create(ctx context.Context, tenant *models.Tenant, actor *models.User, input Input) (*models.Agency, error) {
	if err := requireManage(tenant, actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency name is required")
	}

	agency := &models.Agency{
		TenantID: tenant.ID,
		Name:     name,
		Email:    input.Email,
		Phone:    input.Phone,
	}
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		if err := s.gate.Admit(ctx, tx, tenant, enums.LimitKindAgency); err != nil {
			return err
		}
		if err := s.repo.Create(tx, agency); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create agency")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "agency.created",
		EntityType:  "agency",
		EntityID:    agency.ID.String(),
		Changes:     map[string]any{"name": agency.Name},
	})
	return agency, nil
}

func (s *service) Update(ctx context.Context, tenant *models.Tenant, actor *models.User, agencyID uuid.UUID, input Input) (*models.Agency, error) {
	if err := requireManage(tenant, actor); err != nil {
		return nil, err
	}

	var agency *models.Agency
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, agencyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agency")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "agency not found")
		}
		if name := strings.TrimSpace(input.Name); name != "" {
			found.Name = name
		}
		if input.Email != nil {
			found.Email = input.Email
		}
		if input.Phone != nil {
			found.Phone = input.Phone
		}
		if err := s.repo.Update(tx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agency")
		}
		agency = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "agency.updated",
		EntityType:  "agency",
		EntityID:    agencyID.String(),
	})
	return agency, nil
}

func (s *service) Get(ctx context.Context, tenant *models.Tenant, actor *models.User, agencyID uuid.UUID) (*models.Agency, error) {
	if err := requireMember(tenant, actor); err != nil {
		return nil, err
	}

	var agency *models.Agency
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, agencyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agency")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "agency not found")
		}
		agency = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agency, nil
}

func (s *service) List(ctx context.Context, tenant *models.Tenant, actor *models.User) ([]models.Agency, error) {
	if err := requireMember(tenant, actor); err != nil {
		return nil, err
	}

	var rows []models.Agency
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		var listErr error
		rows, listErr = s.repo.List(tx)
		if listErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, listErr, "list agencies")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *service) Delete(ctx context.Context, tenant *models.Tenant, actor *models.User, agencyID uuid.UUID) error {
	if err := requireManage(tenant, actor); err != nil {
		return err
	}

	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, agencyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agency")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "agency not found")
		}
		attached, err := s.repo.CountClients(tx, agencyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count agency clients")
		}
		if attached > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "agency still has clients attached")
		}
		return s.repo.Delete(tx, agencyID)
	})
	if err != nil {
		return err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "agency.deleted",
		EntityType:  "agency",
		EntityID:    agencyID.String(),
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
	if !rbac.Has(actor.Role, rbac.PermAgencyManage) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "agency management not permitted")
	}
	return nil
}
