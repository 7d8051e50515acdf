package vouchers

import (
	"context"
	"fmt"
	"time"

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
	"github.com/pantrylink/pantrylink-backend/pkg/metrics"
	pkgpagination "github.com/pantrylink/pantrylink-backend/pkg/pagination"
)

const codeInsertAttempts = 3

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

type voucherRepository interface {
	Create(tx *gorm.DB, voucher *models.Voucher) error
	FindByID(tx *gorm.DB, id uuid.UUID) (*models.Voucher, error)
	TransitionFromIssued(tx *gorm.DB, id uuid.UUID, to enums.VoucherStatus, reason *string) (bool, error)
	CreateRedemption(tx *gorm.DB, redemption *models.Redemption) error
	CountRedemptions(tx *gorm.DB, voucherID uuid.UUID) (int64, error)
	Delete(tx *gorm.DB, id uuid.UUID) error
	List(tx *gorm.DB, query ListQuery) ([]models.Voucher, error)
}

type clientSource interface {
	FindByID(tx *gorm.DB, id uuid.UUID) (*models.Client, error)
}

type centerSource interface {
	FindByID(tx *gorm.DB, id uuid.UUID) (*models.Center, error)
}

type limitGate interface {
	Admit(ctx context.Context, tx *gorm.DB, tenant *models.Tenant, kind enums.LimitKind) error
}

type auditTrail interface {
	Record(ctx context.Context, scope tenancy.Scope, entry audit.Entry)
}

// Service drives the voucher state machine. Every operation runs inside
// one tenant-scoped transaction; a voucher belonging to another tenant
// is invisible there and reads as not found.
type Service interface {
	Issue(ctx context.Context, tenant *models.Tenant, actor *models.User, input IssueInput) (*models.Voucher, error)
	Redeem(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID, input RedeemInput) (*models.Voucher, error)
	Invalidate(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID) (*models.Voucher, error)
	MarkUnfulfilled(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID, reason string) (*models.Voucher, error)
	Delete(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID) error
	Get(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID) (*models.Voucher, error)
	List(ctx context.Context, tenant *models.Tenant, actor *models.User, params ListParams) (*ListResult, error)
}

// IssueInput holds voucher creation fields.
type IssueInput struct {
	ClientID uuid.UUID
	AgencyID uuid.UUID
}

// RedeemInput holds fulfillment fields recorded on the redemption row.
type RedeemInput struct {
	CenterID      uuid.UUID
	FailureReason *string
	WeightKg      *float64
}

// ListParams filters and paginates the voucher listing.
type ListParams struct {
	AgencyID *uuid.UUID
	ClientID *uuid.UUID
	Status   *enums.VoucherStatus
	Limit    int
	Cursor   string
}

// ListResult carries one page plus the cursor for the next.
type ListResult struct {
	Vouchers   []models.Voucher
	NextCursor string
}

type service struct {
	runner     scopedRunner
	repo       voucherRepository
	clients    clientSource
	centers    centerSource
	gate       limitGate
	trail      auditTrail
	voucherMet *metrics.VoucherMetrics
	validity   time.Duration
	codePrefix string
}

// ServiceParams collects the voucher service dependencies.
type ServiceParams struct {
	Runner  scopedRunner
	Repo    voucherRepository
	Clients clientSource
	Centers centerSource
	Gate    limitGate
	Trail   auditTrail
	Metrics *metrics.VoucherMetrics
	Config  config.VouchersConfig
}

// NewService builds the voucher lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Runner == nil {
		return nil, fmt.Errorf("scoped runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	if params.Clients == nil {
		return nil, fmt.Errorf("client source required")
	}
	if params.Centers == nil {
		return nil, fmt.Errorf("center source required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("subscription gate required")
	}
	if params.Trail == nil {
		return nil, fmt.Errorf("audit trail required")
	}
	if params.Config.ValidDays <= 0 {
		return nil, fmt.Errorf("voucher validity must be positive")
	}
	return &service{
		runner:     params.Runner,
		repo:       params.Repo,
		clients:    params.Clients,
		centers:    params.Centers,
		gate:       params.Gate,
		trail:      params.Trail,
		voucherMet: params.Metrics,
		validity:   time.Duration(params.Config.ValidDays) * 24 * time.Hour,
		codePrefix: params.Config.CodePrefix,
	}, nil
}

func (s *service) Issue(ctx context.Context, tenant *models.Tenant, actor *models.User, input IssueInput) (*models.Voucher, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	if !rbac.Has(actor.Role, rbac.PermVoucherIssue) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "voucher issue not permitted")
	}

	agencyID := input.AgencyID
	if actor.Role == enums.UserRoleThirdParty {
		// Third-party users issue on behalf of their own agency only.
		if actor.AgencyID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no agency attached to this account")
		}
		agencyID = *actor.AgencyID
	}
	if agencyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency id is required")
	}
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	}

	var voucher *models.Voucher
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		client, err := s.clients.FindByID(tx, input.ClientID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client")
		}
		if client == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
		}

		if err := s.gate.Admit(ctx, tx, tenant, enums.LimitKindVoucherPerMonth); err != nil {
			return err
		}

		now := time.Now().UTC()
		for attempt := 0; attempt < codeInsertAttempts; attempt++ {
			code, err := GenerateCode(s.codePrefix)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate voucher code")
			}
			candidate := &models.Voucher{
				Code:      code,
				TenantID:  tenant.ID,
				ClientID:  input.ClientID,
				AgencyID:  agencyID,
				Status:    enums.VoucherStatusIssued,
				IssuedAt:  now,
				ExpiresAt: now.Add(s.validity),
			}
			err = s.repo.Create(tx, candidate)
			if err == nil {
				voucher = candidate
				return nil
			}
			if !pkgdb.IsUniqueViolation(err, "vouchers_code_key") {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create voucher")
			}
		}
		return pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique voucher code")
	})
	if err != nil {
		return nil, err
	}

	s.voucherMet.IncTransition("issued")
	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "voucher.issued",
		EntityType:  "voucher",
		EntityID:    voucher.ID.String(),
		Changes:     map[string]any{"code": voucher.Code, "client_id": voucher.ClientID, "agency_id": voucher.AgencyID},
	})
	return voucher, nil
}

func (s *service) Redeem(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID, input RedeemInput) (*models.Voucher, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	if !rbac.Has(actor.Role, rbac.PermVoucherRedeem) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "voucher redeem not permitted")
	}
	if input.CenterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "center id is required")
	}

	var voucher *models.Voucher
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, voucherID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		if found.Status != enums.VoucherStatusIssued {
			return stateConflict(found.Status, enums.VoucherStatusRedeemed)
		}
		if time.Now().UTC().After(found.ExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "voucher is past its expiry date").
				WithDetails(map[string]any{"expired_at": found.ExpiresAt})
		}

		center, err := s.centers.FindByID(tx, input.CenterID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load center")
		}
		if center == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "center not found")
		}

		// The guarded update and the redemption insert commit together;
		// the loser of a concurrent race sees zero rows flipped.
		flipped, err := s.repo.TransitionFromIssued(tx, voucherID, enums.VoucherStatusRedeemed, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flip voucher status")
		}
		if !flipped {
			return stateConflict(enums.VoucherStatusRedeemed, enums.VoucherStatusRedeemed)
		}
		redemption := &models.Redemption{
			VoucherID:        voucherID,
			TenantID:         tenant.ID,
			RedeemedByUserID: actor.ID,
			CenterID:         input.CenterID,
			FailureReason:    input.FailureReason,
			WeightKg:         input.WeightKg,
			RedeemedAt:       time.Now().UTC(),
		}
		if err := s.repo.CreateRedemption(tx, redemption); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create redemption")
		}

		found.Status = enums.VoucherStatusRedeemed
		voucher = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.voucherMet.IncTransition("redeemed")
	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "voucher.redeemed",
		EntityType:  "voucher",
		EntityID:    voucherID.String(),
		Changes:     map[string]any{"center_id": input.CenterID},
	})
	return voucher, nil
}

func (s *service) Invalidate(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID) (*models.Voucher, error) {
	voucher, err := s.transition(ctx, tenant, actor, voucherID, enums.VoucherStatusExpired, nil)
	if err != nil {
		return nil, err
	}
	s.voucherMet.IncTransition("expired")
	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "voucher.invalidated",
		EntityType:  "voucher",
		EntityID:    voucherID.String(),
	})
	return voucher, nil
}

func (s *service) MarkUnfulfilled(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID, reason string) (*models.Voucher, error) {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	voucher, err := s.transition(ctx, tenant, actor, voucherID, enums.VoucherStatusUnfulfilled, reasonPtr)
	if err != nil {
		return nil, err
	}
	s.voucherMet.IncTransition("unfulfilled")
	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "voucher.unfulfilled",
		EntityType:  "voucher",
		EntityID:    voucherID.String(),
		Changes:     map[string]any{"reason": reason},
	})
	return voucher, nil
}

// transition performs the shared issued-onwards state change used by
// Invalidate and MarkUnfulfilled.
func (s *service) transition(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID, to enums.VoucherStatus, reason *string) (*models.Voucher, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	if !rbac.Has(actor.Role, rbac.PermVoucherRedeem) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "voucher state change not permitted")
	}

	var voucher *models.Voucher
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, voucherID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		if found.Status != enums.VoucherStatusIssued {
			return stateConflict(found.Status, to)
		}
		flipped, err := s.repo.TransitionFromIssued(tx, voucherID, to, reason)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flip voucher status")
		}
		if !flipped {
			return stateConflict(found.Status, to)
		}
		found.Status = to
		if reason != nil {
			found.UnfulfilledReason = reason
		}
		voucher = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

func (s *service) Delete(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID) error {
	if err := requireTenantActor(tenant, actor); err != nil {
		return err
	}
	if !rbac.Has(actor.Role, rbac.PermVoucherDelete) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "voucher delete not permitted")
	}

	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, voucherID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		redeemed, err := s.repo.CountRedemptions(tx, voucherID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count redemptions")
		}
		if redeemed > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "voucher has been redeemed and cannot be deleted")
		}
		return s.repo.Delete(tx, voucherID)
	})
	if err != nil {
		return err
	}

	s.trail.Record(ctx, tenancy.TenantScope(tenant.ID), audit.Entry{
		TenantID:    &tenant.ID,
		ActorUserID: &actor.ID,
		Action:      "voucher.deleted",
		EntityType:  "voucher",
		EntityID:    voucherID.String(),
	})
	return nil
}

func (s *service) Get(ctx context.Context, tenant *models.Tenant, actor *models.User, voucherID uuid.UUID) (*models.Voucher, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	viewAll := rbac.Has(actor.Role, rbac.PermVoucherViewAll)
	viewOwn := rbac.Has(actor.Role, rbac.PermVoucherViewOwn)
	if !viewAll && !viewOwn {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "voucher view not permitted")
	}

	var voucher *models.Voucher
	err := s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(tx, voucherID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		if !viewAll {
			if actor.AgencyID == nil || *actor.AgencyID != found.AgencyID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "voucher belongs to another agency")
			}
		}
		voucher = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

func (s *service) List(ctx context.Context, tenant *models.Tenant, actor *models.User, params ListParams) (*ListResult, error) {
	if err := requireTenantActor(tenant, actor); err != nil {
		return nil, err
	}
	viewAll := rbac.Has(actor.Role, rbac.PermVoucherViewAll)
	viewOwn := rbac.Has(actor.Role, rbac.PermVoucherViewOwn)
	if !viewAll && !viewOwn {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "voucher view not permitted")
	}

	agencyFilter := params.AgencyID
	if !viewAll {
		if actor.AgencyID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no agency attached to this account")
		}
		agencyFilter = actor.AgencyID
	}

	cursor, err := pkgpagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pkgpagination.NormalizeLimit(params.Limit)

	var rows []models.Voucher
	err = s.runner.InScope(ctx, tenancy.TenantScope(tenant.ID), func(tx *gorm.DB) error {
		var listErr error
		rows, listErr = s.repo.List(tx, ListQuery{
			AgencyID: agencyFilter,
			ClientID: params.ClientID,
			Status:   params.Status,
			Limit:    pkgpagination.LimitWithBuffer(params.Limit),
			Cursor:   cursor,
		})
		if listErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, listErr, "list vouchers")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ListResult{Vouchers: rows}
	if len(rows) > limit {
		result.Vouchers = rows[:limit]
		last := result.Vouchers[limit-1]
		result.NextCursor = pkgpagination.EncodeCursor(pkgpagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

func requireTenantActor(tenant *models.Tenant, actor *models.User) error {
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "tenant is required")
	}
	if actor == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if actor.TenantID == nil || *actor.TenantID != tenant.ID {
		// Platform users and foreign-tenant users have no standing here.
		return pkgerrors.New(pkgerrors.CodeForbidden, "account does not belong to this organization")
	}
	return nil
}

func stateConflict(current, attempted enums.VoucherStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("voucher is %s; cannot transition to %s", current, attempted)).
		WithDetails(map[string]any{"current_status": current, "attempted_status": attempted})
}
