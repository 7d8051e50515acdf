package clients

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/audit"
	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
)

type fakeRepo struct {
	rows map[uuid.UUID]*models.Client
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[uuid.UUID]*models.Client{}}
}

func (f *fakeRepo) Create(tx *gorm.DB, client *models.Client) error {
	client.ID = uuid.New()
	f.rows[client.ID] = client
	return nil
}

func (f *fakeRepo) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Client, error) {
	if row, ok := f.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeRepo) Update(tx *gorm.DB, client *models.Client) error {
	f.rows[client.ID] = client
	return nil
}

func (f *fakeRepo) List(tx *gorm.DB, agencyID *uuid.UUID) ([]models.Client, error) {
	var rows []models.Client
	for _, row := range f.rows {
		if agencyID != nil && (row.AgencyID == nil || *row.AgencyID != *agencyID) {
			continue
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

type noopTrail struct{}

func (noopTrail) Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry) {}

type passthroughRunner struct{}

func (passthroughRunner) InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func setup(t *testing.T) (Service, *fakeRepo, *models.Tenant) {
	t.Helper()
	repo := newFakeRepo()
	svc, err := NewService(passthroughRunner{}, repo, noopTrail{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	tenant := &models.Tenant{ID: uuid.New(), Slug: "acme", Status: enums.TenantStatusActive}
	return svc, repo, tenant
}

func tenantUser(tenant *models.Tenant, role enums.UserRole, agencyID *uuid.UUID) *models.User {
	return &models.User{ID: uuid.New(), Role: role, Status: enums.UserStatusActive, TenantID: &tenant.ID, AgencyID: agencyID}
}

func TestCreateRequiresNames(t *testing.T) {
	svc, _, tenant := setup(t)
	_, err := svc.Create(context.Background(), tenant, tenantUser(tenant, enums.UserRoleAdmin, nil), CreateInput{FirstName: " ", LastName: "Doe"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreatePinsThirdPartyToOwnAgency(t *testing.T) {
	svc, repo, tenant := setup(t)
	ownAgency := uuid.New()
	otherAgency := uuid.New()

	created, err := svc.Create(context.Background(), tenant, tenantUser(tenant, enums.UserRoleThirdParty, &ownAgency), CreateInput{
		FirstName: "Jo",
		LastName:  "Doe",
		AgencyID:  &otherAgency,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.AgencyID == nil || *created.AgencyID != ownAgency {
		t.Fatal("client must be registered under the caller's agency")
	}
	if len(repo.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(repo.rows))
	}
}

func TestCreateDeniedForBackOffice(t *testing.T) {
	svc, _, tenant := setup(t)
	_, err := svc.Create(context.Background(), tenant, tenantUser(tenant, enums.UserRoleBackOffice, nil), CreateInput{FirstName: "Jo", LastName: "Doe"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdateAppliesPartialInput(t *testing.T) {
	svc, repo, tenant := setup(t)
	admin := tenantUser(tenant, enums.UserRoleAdmin, nil)
	created, err := svc.Create(context.Background(), tenant, admin, CreateInput{FirstName: "Jo", LastName: "Doe"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newPhone := "555-0100"
	updated, err := svc.Update(context.Background(), tenant, admin, created.ID, UpdateInput{Phone: &newPhone})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Phone == nil || *updated.Phone != newPhone {
		t.Fatal("phone not applied")
	}
	if updated.FirstName != "Jo" {
		t.Fatal("unrelated fields must be preserved")
	}
	if repo.rows[created.ID].Phone == nil {
		t.Fatal("update not persisted")
	}
}

func TestUpdateUnknownClientIsNotFound(t *testing.T) {
	svc, _, tenant := setup(t)
	name := "Ann"
	_, err := svc.Update(context.Background(), tenant, tenantUser(tenant, enums.UserRoleAdmin, nil), uuid.New(), UpdateInput{FirstName: &name})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetRequiresReadPermission(t *testing.T) {
	svc, _, tenant := setup(t)
	foreignTenant := uuid.New()
	stranger := &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin, TenantID: &foreignTenant}
	_, err := svc.Get(context.Background(), tenant, stranger, uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestListFiltersByAgency(t *testing.T) {
	svc, _, tenant := setup(t)
	admin := tenantUser(tenant, enums.UserRoleAdmin, nil)
	agencyA := uuid.New()
	agencyB := uuid.New()
	for _, agency := range []uuid.UUID{agencyA, agencyA, agencyB} {
		id := agency
		if _, err := svc.Create(context.Background(), tenant, admin, CreateInput{FirstName: "Jo", LastName: "Doe", AgencyID: &id}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	rows, err := svc.List(context.Background(), tenant, admin, &agencyA)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for agency A, got %d", len(rows))
	}
}
