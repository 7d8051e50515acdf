package vouchers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/audit"
	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
)

type fakeRepo struct {
	vouchers    map[uuid.UUID]*models.Voucher
	redemptions map[uuid.UUID]*models.Redemption
	createErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		vouchers:    map[uuid.UUID]*models.Voucher{},
		redemptions: map[uuid.UUID]*models.Redemption{},
	}
}

func (f *fakeRepo) Create(tx *gorm.DB, voucher *models.Voucher) error {
	if f.createErr != nil {
		return f.createErr
	}
	voucher.ID = uuid.New()
	voucher.CreatedAt = time.Now().UTC()
	f.vouchers[voucher.ID] = voucher
	return nil
}

func (f *fakeRepo) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Voucher, error) {
	if v, ok := f.vouchers[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeRepo) TransitionFromIssued(tx *gorm.DB, id uuid.UUID, to enums.VoucherStatus, reason *string) (bool, error) {
	v, ok := f.vouchers[id]
	if !ok || v.Status != enums.VoucherStatusIssued {
		return false, nil
	}
	v.Status = to
	if reason != nil {
		v.UnfulfilledReason = reason
	}
	return true, nil
}

func (f *fakeRepo) CreateRedemption(tx *gorm.DB, redemption *models.Redemption) error {
	redemption.ID = uuid.New()
	f.redemptions[redemption.VoucherID] = redemption
	return nil
}

func (f *fakeRepo) CountRedemptions(tx *gorm.DB, voucherID uuid.UUID) (int64, error) {
	if _, ok := f.redemptions[voucherID]; ok {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeRepo) Delete(tx *gorm.DB, id uuid.UUID) error {
	delete(f.vouchers, id)
	return nil
}

func (f *fakeRepo) List(tx *gorm.DB, query ListQuery) ([]models.Voucher, error) {
	var rows []models.Voucher
	for _, v := range f.vouchers {
		if query.AgencyID != nil && v.AgencyID != *query.AgencyID {
			continue
		}
		if query.Status != nil && v.Status != *query.Status {
			continue
		}
		rows = append(rows, *v)
	}
	return rows, nil
}

type fakeClients struct{ clients map[uuid.UUID]*models.Client }

func (f *fakeClients) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Client, error) {
	return f.clients[id], nil
}

type fakeCenters struct{ centers map[uuid.UUID]*models.Center }

func (f *fakeCenters) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Center, error) {
	return f.centers[id], nil
}

type fakeGate struct{ err error }

func (f *fakeGate) Admit(ctx context.Context, tx *gorm.DB, tenant *models.Tenant, kind enums.LimitKind) error {
	return f.err
}

type fakeTrail struct{ entries []audit.Entry }

func (f *fakeTrail) Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry) {
	f.entries = append(f.entries, entry)
}

type passthroughRunner struct{}

func (passthroughRunner) InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	svc     Service
	repo    *fakeRepo
	clients *fakeClients
	centers *fakeCenters
	gate    *fakeGate
	trail   *fakeTrail
	tenant  *models.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newFakeRepo(),
		clients: &fakeClients{clients: map[uuid.UUID]*models.Client{}},
		centers: &fakeCenters{centers: map[uuid.UUID]*models.Center{}},
		gate:    &fakeGate{},
		trail:   &fakeTrail{},
		tenant: &models.Tenant{
			ID:                 uuid.New(),
			Slug:               "acme",
			Name:               "Acme Food Bank",
			Status:             enums.TenantStatusActive,
			SubscriptionStatus: enums.SubscriptionStatusActive,
		},
	}
	svc, err := NewService(ServiceParams{
		Runner:  passthroughRunner{},
		Repo:    f.repo,
		Clients: f.clients,
		Centers: f.centers,
		Gate:    f.gate,
		Trail:   f.trail,
		Config:  config.VouchersConfig{ValidDays: 90, CodePrefix: "PL"},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) admin() *models.User {
	return &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin, Status: enums.UserStatusActive, TenantID: &f.tenant.ID}
}

func (f *fixture) backOffice() *models.User {
	return &models.User{ID: uuid.New(), Role: enums.UserRoleBackOffice, Status: enums.UserStatusActive, TenantID: &f.tenant.ID}
}

func (f *fixture) thirdParty(agencyID uuid.UUID) *models.User {
	user := &models.User{ID: uuid.New(), Role: enums.UserRoleThirdParty, Status: enums.UserStatusActive, TenantID: &f.tenant.ID}
	if agencyID != uuid.Nil {
		user.AgencyID = &agencyID
	}
	return user
}

func (f *fixture) seedClient() uuid.UUID {
	id := uuid.New()
	f.clients.clients[id] = &models.Client{ID: id, TenantID: f.tenant.ID, FirstName: "Jo", LastName: "Doe"}
	return id
}

func (f *fixture) seedCenter() uuid.UUID {
	id := uuid.New()
	f.centers.centers[id] = &models.Center{ID: id, TenantID: f.tenant.ID, Name: "Downtown"}
	return id
}

func (f *fixture) issue(t *testing.T, actor *models.User, agencyID uuid.UUID) *models.Voucher {
	t.Helper()
	voucher, err := f.svc.Issue(context.Background(), f.tenant, actor, IssueInput{
		ClientID: f.seedClient(),
		AgencyID: agencyID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return voucher
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestIssueCreatesIssuedVoucher(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())

	if voucher.Status != enums.VoucherStatusIssued {
		t.Fatalf("unexpected status %s", voucher.Status)
	}
	if !strings.HasPrefix(voucher.Code, "PL-") || len(voucher.Code) != len("PL-")+8 {
		t.Fatalf("unexpected code %q", voucher.Code)
	}
	wantExpiry := voucher.IssuedAt.Add(90 * 24 * time.Hour)
	if !voucher.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry %v, want %v", voucher.ExpiresAt, wantExpiry)
	}
	if len(f.trail.entries) != 1 || f.trail.entries[0].Action != "voucher.issued" {
		t.Fatalf("unexpected audit trail %+v", f.trail.entries)
	}
}

func TestIssueDeniedWithoutPermission(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Issue(context.Background(), f.tenant, f.backOffice(), IssueInput{
		ClientID: f.seedClient(),
		AgencyID: uuid.New(),
	})
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestIssueThirdPartyPinnedToOwnAgency(t *testing.T) {
	f := newFixture(t)
	ownAgency := uuid.New()
	otherAgency := uuid.New()

	voucher, err := f.svc.Issue(context.Background(), f.tenant, f.thirdParty(ownAgency), IssueInput{
		ClientID: f.seedClient(),
		AgencyID: otherAgency,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if voucher.AgencyID != ownAgency {
		t.Fatalf("voucher pinned to %s, want the caller's agency %s", voucher.AgencyID, ownAgency)
	}
}

func TestIssueThirdPartyWithoutAgencyRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Issue(context.Background(), f.tenant, f.thirdParty(uuid.Nil), IssueInput{
		ClientID: f.seedClient(),
	})
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestIssueBlockedByPlanLimit(t *testing.T) {
	f := newFixture(t)
	f.gate.err = pkgerrors.New(pkgerrors.CodePaymentRequired, "plan limit reached: voucher_per_month")

	_, err := f.svc.Issue(context.Background(), f.tenant, f.admin(), IssueInput{
		ClientID: f.seedClient(),
		AgencyID: uuid.New(),
	})
	assertCode(t, err, pkgerrors.CodePaymentRequired)
	if len(f.repo.vouchers) != 0 {
		t.Fatal("no voucher row may exist after a rejected issue")
	}
}

func TestIssueUnknownClientIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Issue(context.Background(), f.tenant, f.admin(), IssueInput{
		ClientID: uuid.New(),
		AgencyID: uuid.New(),
	})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestRedeemFlipsStatusAndWritesRedemption(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())
	centerID := f.seedCenter()
	redeemer := f.backOffice()

	weight := 12.5
	redeemed, err := f.svc.Redeem(context.Background(), f.tenant, redeemer, voucher.ID, RedeemInput{
		CenterID: centerID,
		WeightKg: &weight,
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redeemed.Status != enums.VoucherStatusRedeemed {
		t.Fatalf("unexpected status %s", redeemed.Status)
	}

	row := f.repo.redemptions[voucher.ID]
	if row == nil {
		t.Fatal("redemption row missing")
	}
	if row.RedeemedByUserID != redeemer.ID || row.CenterID != centerID {
		t.Fatalf("unexpected redemption row %+v", row)
	}
	if row.WeightKg == nil || *row.WeightKg != weight {
		t.Fatal("weight not recorded")
	}
}

func TestRedeemTwiceIsStateConflict(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())
	centerID := f.seedCenter()

	if _, err := f.svc.Redeem(context.Background(), f.tenant, f.backOffice(), voucher.ID, RedeemInput{CenterID: centerID}); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	_, err := f.svc.Redeem(context.Background(), f.tenant, f.backOffice(), voucher.ID, RedeemInput{CenterID: centerID})
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestRedeemExpiredVoucherRejected(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())
	f.repo.vouchers[voucher.ID].ExpiresAt = time.Now().UTC().Add(-time.Hour)

	_, err := f.svc.Redeem(context.Background(), f.tenant, f.backOffice(), voucher.ID, RedeemInput{CenterID: f.seedCenter()})
	assertCode(t, err, pkgerrors.CodeStateConflict)
	if f.repo.vouchers[voucher.ID].Status != enums.VoucherStatusIssued {
		t.Fatal("status must be unchanged")
	}
}

func TestRedeemUnknownCenterIsNotFound(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())

	_, err := f.svc.Redeem(context.Background(), f.tenant, f.backOffice(), voucher.ID, RedeemInput{CenterID: uuid.New()})
	assertCode(t, err, pkgerrors.CodeNotFound)
	if f.repo.vouchers[voucher.ID].Status != enums.VoucherStatusIssued {
		t.Fatal("status must be unchanged")
	}
}

func TestRedeemDeniedForThirdParty(t *testing.T) {
	f := newFixture(t)
	agencyID := uuid.New()
	voucher := f.issue(t, f.admin(), agencyID)

	_, err := f.svc.Redeem(context.Background(), f.tenant, f.thirdParty(agencyID), voucher.ID, RedeemInput{CenterID: f.seedCenter()})
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestInvalidateOnlyFromIssued(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())

	invalidated, err := f.svc.Invalidate(context.Background(), f.tenant, f.admin(), voucher.ID)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if invalidated.Status != enums.VoucherStatusExpired {
		t.Fatalf("unexpected status %s", invalidated.Status)
	}

	_, err = f.svc.Invalidate(context.Background(), f.tenant, f.admin(), voucher.ID)
	assertCode(t, err, pkgerrors.CodeStateConflict)
	if f.repo.vouchers[voucher.ID].Status != enums.VoucherStatusExpired {
		t.Fatal("status must be unchanged after the rejected transition")
	}
}

func TestMarkUnfulfilledRecordsReason(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())

	updated, err := f.svc.MarkUnfulfilled(context.Background(), f.tenant, f.backOffice(), voucher.ID, "client moved away")
	if err != nil {
		t.Fatalf("mark unfulfilled: %v", err)
	}
	if updated.Status != enums.VoucherStatusUnfulfilled {
		t.Fatalf("unexpected status %s", updated.Status)
	}
	if updated.UnfulfilledReason == nil || *updated.UnfulfilledReason != "client moved away" {
		t.Fatal("reason not recorded")
	}
}

func TestDeleteBlockedAfterRedemption(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())
	if _, err := f.svc.Redeem(context.Background(), f.tenant, f.backOffice(), voucher.ID, RedeemInput{CenterID: f.seedCenter()}); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	err := f.svc.Delete(context.Background(), f.tenant, f.admin(), voucher.ID)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestDeleteWithoutRedemptionSucceeds(t *testing.T) {
	f := newFixture(t)
	voucher := f.issue(t, f.admin(), uuid.New())

	if err := f.svc.Delete(context.Background(), f.tenant, f.admin(), voucher.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := f.repo.vouchers[voucher.ID]; ok {
		t.Fatal("voucher row should be gone")
	}
}

func TestGetOwnAgencyOnlyForThirdParty(t *testing.T) {
	f := newFixture(t)
	ownAgency := uuid.New()
	foreignAgency := uuid.New()
	mine := f.issue(t, f.admin(), ownAgency)
	theirs := f.issue(t, f.admin(), foreignAgency)
	actor := f.thirdParty(ownAgency)

	if _, err := f.svc.Get(context.Background(), f.tenant, actor, mine.ID); err != nil {
		t.Fatalf("get own voucher: %v", err)
	}
	_, err := f.svc.Get(context.Background(), f.tenant, actor, theirs.ID)
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestListForcesAgencyFilterForThirdParty(t *testing.T) {
	f := newFixture(t)
	ownAgency := uuid.New()
	foreignAgency := uuid.New()
	f.issue(t, f.admin(), ownAgency)
	f.issue(t, f.admin(), foreignAgency)

	result, err := f.svc.List(context.Background(), f.tenant, f.thirdParty(ownAgency), ListParams{AgencyID: &foreignAgency})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, v := range result.Vouchers {
		if v.AgencyID != ownAgency {
			t.Fatalf("third_party saw a voucher of agency %s", v.AgencyID)
		}
	}
	if len(result.Vouchers) != 1 {
		t.Fatalf("expected exactly the own-agency voucher, got %d", len(result.Vouchers))
	}
}

func TestActorFromAnotherTenantRejected(t *testing.T) {
	f := newFixture(t)
	foreignTenant := uuid.New()
	stranger := &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin, TenantID: &foreignTenant}

	_, err := f.svc.Issue(context.Background(), f.tenant, stranger, IssueInput{ClientID: f.seedClient(), AgencyID: uuid.New()})
	assertCode(t, err, pkgerrors.CodeForbidden)
}
