package agencies

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
	rows    map[uuid.UUID]*models.Agency
	clients map[uuid.UUID]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[uuid.UUID]*models.Agency{}, clients: map[uuid.UUID]int64{}}
}

func (f *fakeRepo) Create(tx *gorm.DB, agency *models.Agency) error {
	agency.ID = uuid.New()
	f.rows[agency.ID] = agency
	return nil
}

func (f *fakeRepo) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Agency, error) {
	if row, ok := f.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeRepo) Update(tx *gorm.DB, agency *models.Agency) error {
	f.rows[agency.ID] = agency
	return nil
}

func (f *fakeRepo) List(tx *gorm.DB) ([]models.Agency, error) {
	var rows []models.Agency
	for _, row := range f.rows {
		rows = append(rows, *row)
	}
	return rows, nil
}

func (f *fakeRepo) CountClients(tx *gorm.DB, agencyID uuid.UUID) (int64, error) {
	return f.clients[agencyID], nil
}

func (f *fakeRepo) Delete(tx *gorm.DB, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

type fakeGate struct{ err error }

func (f *fakeGate) Admit(ctx context.Context, tx *gorm.DB, tenant *models.Tenant, kind enums.LimitKind) error {
	return f.err
}

type noopTrail struct{}

func (noopTrail) Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry) {}

type passthroughRunner struct{}

func (passthroughRunner) InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func setup(t *testing.T) (Service, *fakeRepo, *fakeGate, *models.Tenant) {
	t.Helper()
	repo := newFakeRepo()
	gate := &fakeGate{}
	svc, err := NewService(passthroughRunner{}, repo, gate, noopTrail{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	tenant := &models.Tenant{ID: uuid.New(), Slug: "acme", Status: enums.TenantStatusActive}
	return svc, repo, gate, tenant
}

func admin(tenant *models.Tenant) *models.User {
	return &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin, Status: enums.UserStatusActive, TenantID: &tenant.ID}
}

func TestCreateChecksAgencyCap(t *testing.T) {
	svc, repo, gate, tenant := setup(t)
	gate.err = pkgerrors.New(pkgerrors.CodePaymentRequired, "plan limit reached: agency")

	_, err := svc.Create(context.Background(), tenant, admin(tenant), Input{Name: "North Shelter"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentRequired {
		t.Fatalf("expected payment-required, got %v", err)
	}
	if len(repo.rows) != 0 {
		t.Fatal("no agency may exist after a rejected create")
	}
}

func TestCreateDeniedForNonAdmins(t *testing.T) {
	svc, _, _, tenant := setup(t)
	for _, role := range []enums.UserRole{enums.UserRoleThirdParty, enums.UserRoleBackOffice} {
		actor := &models.User{ID: uuid.New(), Role: role, TenantID: &tenant.ID}
		_, err := svc.Create(context.Background(), tenant, actor, Input{Name: "North Shelter"})
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
			t.Errorf("role %s: expected forbidden, got %v", role, err)
		}
	}
}

func TestDeleteBlockedWhileClientsAttached(t *testing.T) {
	svc, repo, _, tenant := setup(t)
	actor := admin(tenant)
	agency, err := svc.Create(context.Background(), tenant, actor, Input{Name: "North Shelter"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.clients[agency.ID] = 3

	err = svc.Delete(context.Background(), tenant, actor, agency.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	repo.clients[agency.ID] = 0
	if err := svc.Delete(context.Background(), tenant, actor, agency.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := repo.rows[agency.ID]; ok {
		t.Fatal("agency row should be gone")
	}
}

func TestUpdateUnknownAgencyIsNotFound(t *testing.T) {
	svc, _, _, tenant := setup(t)
	_, err := svc.Update(context.Background(), tenant, admin(tenant), uuid.New(), Input{Name: "Renamed"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListVisibleToAllTenantRoles(t *testing.T) {
	svc, _, _, tenant := setup(t)
	actor := admin(tenant)
	if _, err := svc.Create(context.Background(), tenant, actor, Input{Name: "North Shelter"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	backOffice := &models.User{ID: uuid.New(), Role: enums.UserRoleBackOffice, TenantID: &tenant.ID}
	rows, err := svc.List(context.Background(), tenant, backOffice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 agency, got %d", len(rows))
	}
}
