package clients

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

type clientsRepository interface {
	Create(tx *gorm.DB, client *models.Client) error
	FindByID(tx *gorm.DB, id uuid.UUID) (*models.Client, error)
	Update(tx *gorm.DB, client *models.Client) error
	List(tx *gorm.DB, agencyID *uuid.UUID) ([]models.Client, error)
}

type auditTrail interface {
	Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry)
}

// Service manages voucher recipients.
type Service interface {
	Create(ctx context.Context, tenant *models.Tenant, actor *models.User, input CreateInput) (*models.Client, error)
	Update(ctx context.Context, tenant *models.Tenant, actor *models.User, clientID uuid.UUID, input UpdateInput) (*models.Client, error)
	Get(ctx context.Context, tenant *models.Tenant, actor *models.User, clientID uuid.UUID) (*models.Client, error)
	List(ctx context.Context, tenant *models.Tenant, actor *models.User, agencyID *uuid.UUID) ([]models.Client, error)
}

// CreateInput holds client creation fields.
type CreateInput struct {
	FirstName     string
	LastName      string
	Email         *string
	Phone         *string
	HouseholdSize *int
	AgencyID      *uuid.UUID
}

// UpdateInput holds mutable client fields; nil leaves a field unchanged.
type UpdateInput struct {
	FirstName     *string
	LastName      *string
	Email         *string
	Phone         *string
	HouseholdSize *int
}

type service struct {
	runner scopedRunner
	repo   clientsRepository
	trail  auditTrail
}

// NewService builds the client management service.
func NewService(runner scopedRunner, repo clientsRepository, trail auditTrail) (Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("scoped runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("clients repository required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail required")
	}
	return &service{runner: runner, repo: repo, trail: trail}, nil
}

func (s *service) Create(ctx context.Context, tenant *models.Tenant, actor *models.User, input CreateInput) (*models.Client, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	if !rbac.Has(actor.Role, rbac.PermClientCreate) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "client create not permitted")
	}
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first and last name are required")
	}

	agencyID := input.AgencyID
	if actor.Role == enums.UserRoleThirdParty {
		// Third-party intake always registers clients under its own agency.
		agencyID = actor.AgencyID
	}

	client := &models.Client{
		TenantID:      tenant.ID,
		AgencyID:      agencyID,
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Email:         input.Email,
		Phone:         input.Phone,
		HouseholdSize: input.HouseholdSize,
	}
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		if err := s.repo.Create(tx, client); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create client")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "client.created",
		EntityType:  "client",
		EntityID:    client.ID.String(),
	})
	return client, nil
}

func (s *service) Update(ctx context.Context, tenant *models.Tenant, actor *models.User, clientID uuid.UUID, input UpdateInput) (*models.Client, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	if !rbac.Has(actor.Role, rbac.PermClientUpdate) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "client update not permitted")
	}

	var client *models.Client
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, clientID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
		}
		applyUpdate(found, input)
		if err := s.repo.Update(tx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update client")
		}
		client = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "client.updated",
		EntityType:  "client",
		EntityID:    clientID.String(),
	})
	return client, nil
}

func (s *service) Get(ctx context.Context, tenant *models.Tenant, actor *models.User, clientID uuid.UUID) (*models.Client, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	if !rbac.Has(actor.Role, rbac.PermClientRead) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "client read not permitted")
	}

	var client *models.Client
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, clientID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
		}
		client = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *service) List(ctx context.Context, tenant *models.Tenant, actor *models.User, agencyID *uuid.UUID) ([]models.Client, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	if !rbac.Has(actor.Role, rbac.PermClientRead) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "client read not permitted")
	}

	var rows []models.Client
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		var listErr error
		rows, listErr = s.repo.List(tx, agencyID)
		if listErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, listErr, "list clients")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func applyUpdate(client *models.Client, input UpdateInput) {
	if input.FirstName != nil {
		client.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		client.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.Email != nil {
		client.Email = input.Email
	}
	if input.Phone != nil {
		client.Phone = input.Phone
	}
	if input.HouseholdSize != nil {
		client.HouseholdSize = input.HouseholdSize
	}
}

func requireTenantActor(tenant *models.Tenant, actor *models.User) error {
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
