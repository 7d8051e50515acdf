package organizations

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/audit"
	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/security"
)

type fakeTenants struct {
	rows map[uuid.UUID]*models.Tenant
}

func newFakeTenants() *fakeTenants {
	return &fakeTenants{rows: map[uuid.UUID]*models.Tenant{}}
}

func (f *fakeTenants) Create(tx *gorm.DB, tenant *models.Tenant) error {
	for _, existing := range f.rows {
		if existing.Slug == tenant.Slug {
			return errors.New(`duplicate key value violates unique constraint "tenants_slug_key"`)
		}
	}
	tenant.ID = uuid.New()
	f.rows[tenant.ID] = tenant
	return nil
}

func (f *fakeTenants) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Tenant, error) {
	if row, ok := f.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeTenants) Update(tx *gorm.DB, tenant *models.Tenant) error {
	f.rows[tenant.ID] = tenant
	return nil
}

func (f *fakeTenants) List(tx *gorm.DB) ([]models.Tenant, error) {
	var rows []models.Tenant
	for _, row := range f.rows {
		rows = append(rows, *row)
	}
	return rows, nil
}

type fakeUserCreator struct {
	created []*models.User
}

func (f *fakeUserCreator) Create(tx *gorm.DB, user *models.User) error {
	user.ID = uuid.New()
	f.created = append(f.created, user)
	return nil
}

type fakePlans struct {
	defaultPlan *models.Plan
}

func (f *fakePlans) FindDefault(ctx context.Context) (*models.Plan, error) {
	return f.defaultPlan, nil
}

type recordingTrail struct {
	entries []audit.Entry
}

func (r *recordingTrail) Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

type passthroughRunner struct{}

func (passthroughRunner) InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	svc     Service
	tenants *fakeTenants
	users   *fakeUserCreator
	plans   *fakePlans
	trail   *recordingTrail
}

func setup(t *testing.T) *fixture {
	t.Helper()
	tenants := newFakeTenants()
	creator := &fakeUserCreator{}
	plans := &fakePlans{}
	trail := &recordingTrail{}
	svc, err := NewService(ServiceParams{
		Runner:   passthroughRunner{},
		Tenants:  tenants,
		Users:    creator,
		Plans:    plans,
		Trail:    trail,
		Password: config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, tenants: tenants, users: creator, plans: plans, trail: trail}
}

func operator() *models.User {
	return &models.User{ID: uuid.New(), Role: enums.UserRoleSuperAdmin, Status: enums.UserStatusActive}
}

func assertCode(t *testing.T, err error, want pkgerrors.Code) {
	t.Helper()
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != want {
		t.Fatalf("expected code %s, got %v", want, err)
	}
}

func validInput() CreateInput {
	return CreateInput{
		Name:           "Acme Food Bank",
		Slug:           "acme",
		AdminEmail:     "admin@acme.org",
		AdminFirstName: "Ada",
		AdminLastName:  "One",
	}
}

func TestCreateProvisionsTenantWithAdmin(t *testing.T) {
	fx := setup(t)
	planID := uuid.New()
	fx.plans.defaultPlan = &models.Plan{ID: planID, Name: "Starter", IsDefault: true}

	res, err := fx.svc.Create(context.Background(), operator(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Tenant.Slug != "acme" || res.Tenant.Status != enums.TenantStatusActive {
		t.Fatalf("unexpected tenant: %+v", res.Tenant)
	}
	if res.Tenant.PlanID == nil || *res.Tenant.PlanID != planID {
		t.Fatalf("default plan not assigned")
	}
	if res.Admin.Role != enums.UserRoleAdmin {
		t.Fatalf("first account must be an admin, got %s", res.Admin.Role)
	}
	if res.Admin.TenantID == nil || *res.Admin.TenantID != res.Tenant.ID {
		t.Fatalf("admin not attached to tenant")
	}
	ok, err := security.VerifyPassword(res.TempPassword, res.Admin.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("temp password does not verify (ok=%v err=%v)", ok, err)
	}
	if len(fx.trail.entries) != 1 || fx.trail.entries[0].Action != "tenant.created" {
		t.Fatalf("audit entries: %+v", fx.trail.entries)
	}
}

func TestCreateWithoutDefaultPlanIsUnlimited(t *testing.T) {
	fx := setup(t)
	res, err := fx.svc.Create(context.Background(), operator(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Tenant.PlanID != nil {
		t.Fatalf("expected no plan, got %v", res.Tenant.PlanID)
	}
}

func TestCreateSlugValidation(t *testing.T) {
	fx := setup(t)
	cases := map[string]string{
		"too short":     "ab",
		"reserved":      "admin",
		"bad chars":     "Acme Bank",
		"edge hyphen":   "-acme",
		"trailing dash": "acme-",
	}
	for name, slug := range cases {
		input := validInput()
		input.Slug = slug
		_, err := fx.svc.Create(context.Background(), operator(), input)
		if err == nil {
			t.Fatalf("%s: slug %q accepted", name, slug)
		}
		assertCode(t, err, pkgerrors.CodeValidation)
	}
}

func TestCreateDuplicateSlugConflicts(t *testing.T) {
	fx := setup(t)
	if _, err := fx.svc.Create(context.Background(), operator(), validInput()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	input := validInput()
	input.AdminEmail = "other@acme.org"
	_, err := fx.svc.Create(context.Background(), operator(), input)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestCreateDeniedForTenantAdmins(t *testing.T) {
	fx := setup(t)
	tenantID := uuid.New()
	actor := &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin, TenantID: &tenantID}
	_, err := fx.svc.Create(context.Background(), actor, validInput())
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestSuspendStopsResolution(t *testing.T) {
	fx := setup(t)
	res, err := fx.svc.Create(context.Background(), operator(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.svc.Suspend(context.Background(), operator(), res.Tenant.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	row := fx.tenants.rows[res.Tenant.ID]
	if row.Status != enums.TenantStatusSuspended {
		t.Fatalf("status = %s", row.Status)
	}
	if row.Status.IsResolvable() {
		t.Fatalf("suspended tenant must not be resolvable")
	}

	if err := fx.svc.Reactivate(context.Background(), operator(), res.Tenant.ID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if fx.tenants.rows[res.Tenant.ID].Status != enums.TenantStatusActive {
		t.Fatalf("status after reactivate = %s", fx.tenants.rows[res.Tenant.ID].Status)
	}
}

func TestSuspendUnknownTenant(t *testing.T) {
	fx := setup(t)
	err := fx.svc.Suspend(context.Background(), operator(), uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestUpdateBrandingRequiresSettingsPermission(t *testing.T) {
	fx := setup(t)
	res, err := fx.svc.Create(context.Background(), operator(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	name := "Acme Community Pantry"

	for _, role := range []enums.UserRole{enums.UserRoleThirdParty, enums.UserRoleBackOffice} {
		actor := &models.User{ID: uuid.New(), Role: role, TenantID: &res.Tenant.ID}
		_, err := fx.svc.UpdateBranding(context.Background(), res.Tenant, actor, BrandingInput{Name: &name})
		assertCode(t, err, pkgerrors.CodeForbidden)
	}

	adminActor := &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin, TenantID: &res.Tenant.ID}
	logo := "https://cdn.example.com/acme.png"
	updated, err := fx.svc.UpdateBranding(context.Background(), res.Tenant, adminActor, BrandingInput{Name: &name, LogoURL: &logo})
	if err != nil {
		t.Fatalf("update branding: %v", err)
	}
	if updated.Name != name || updated.LogoURL == nil || *updated.LogoURL != logo {
		t.Fatalf("branding not applied: %+v", updated)
	}
}

func TestUpdateBrandingForeignTenantForbidden(t *testing.T) {
	fx := setup(t)
	res, err := fx.svc.Create(context.Background(), operator(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	otherID := uuid.New()
	actor := &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin, TenantID: &otherID}
	name := "Hijack"
	_, err = fx.svc.UpdateBranding(context.Background(), res.Tenant, actor, BrandingInput{Name: &name})
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestListDeniedForTenantUsers(t *testing.T) {
	fx := setup(t)
	tenantID := uuid.New()
	actor := &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin, TenantID: &tenantID}
	_, err := fx.svc.List(context.Background(), actor)
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestValidateSlugCanonicalizes(t *testing.T) {
	slug, err := ValidateSlug("  Acme-1  ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if slug != "acme-1" {
		t.Fatalf("slug = %q", slug)
	}
}
