package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
)

// Gate decides whether a tenant may create another plan-capped resource.
//
// The check runs inside the caller's tenant-scoped transaction, before
// the insert. It counts then allows, without any lock on the counted
// rows, so two concurrent creates can both pass a cap with one slot
// left. The overage is at most the number of in-flight requests and the
// next create is rejected; serializing every create on a per-tenant
// lock is not worth that margin.
type planSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	FindDefault(ctx context.Context) (*models.Plan, error)
}

type Gate struct {
	plans   planSource
	enforce bool
}

// NewGate constructs a subscription gate.
func NewGate(plans planSource, enforce bool) (*Gate, error) {
	if plans == nil {
		return nil, fmt.Errorf("plan repository is required")
	}
	return &Gate{plans: plans, enforce: enforce}, nil
}

// Admit returns nil when the tenant may create one more resource of the
// given kind, and a payment-required error otherwise. tx must be the
// tenant-scoped transaction the create will run in.
func (g *Gate) Admit(ctx context.Context, tx *gorm.DB, tenant *models.Tenant, kind enums.LimitKind) error {
	if !g.enforce {
		return nil
	}
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "tenant is required")
	}
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown limit kind %q", kind))
	}

	if !tenant.SubscriptionStatus.InGoodStanding() {
		return pkgerrors.New(pkgerrors.CodePaymentRequired, "subscription is not in good standing")
	}

	plan, err := g.planFor(ctx, tenant)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		// No plan row to read a cap from; treat as unlimited.
		return nil
	}

	limit := capFor(plan, kind)
	if limit == nil {
		return nil
	}
	if *limit <= 0 {
		return pkgerrors.New(pkgerrors.CodePaymentRequired,
			fmt.Sprintf("plan does not include %s", kind)).
			WithDetails(map[string]any{"limit": kind.String(), "cap": 0})
	}

	used, err := g.usage(ctx, tx, tenant, kind)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count plan usage")
	}
	if used >= int64(*limit) {
		return pkgerrors.New(pkgerrors.CodePaymentRequired,
			fmt.Sprintf("plan limit reached: %s (%d of %d used)", kind, used, *limit)).
			WithDetails(map[string]any{
				"limit": kind.String(),
				"used":  used,
				"cap":   *limit,
			})
	}
	return nil
}

func (g *Gate) planFor(ctx context.Context, tenant *models.Tenant) (*models.Plan, error) {
	if tenant.PlanID != nil {
		return g.plans.FindByID(ctx, *tenant.PlanID)
	}
	return g.plans.FindDefault(ctx)
}

func capFor(plan *models.Plan, kind enums.LimitKind) *int {
	switch kind {
	case enums.LimitKindUser:
		return plan.MaxUsers
	case enums.LimitKindAgency:
		return plan.MaxAgencies
	case enums.LimitKindVoucherPerMonth:
		return plan.MaxVouchersPerMonth
	default:
		return nil
	}
}

func (g *Gate) usage(ctx context.Context, tx *gorm.DB, tenant *models.Tenant, kind enums.LimitKind) (int64, error) {
	var count int64
	query := tx.WithContext(ctx)
	switch kind {
	case enums.LimitKindUser:
		err := query.Model(&models.User{}).
			Where("tenant_id = ?", tenant.ID).
			Count(&count).Error
		return count, err
	case enums.LimitKindAgency:
		err := query.Model(&models.Agency{}).
			Where("tenant_id = ?", tenant.ID).
			Count(&count).Error
		return count, err
	case enums.LimitKindVoucherPerMonth:
		err := query.Model(&models.Voucher{}).
			Where("tenant_id = ?", tenant.ID).
			Where("issued_at >= ?", startOfMonth(time.Now().UTC())).
			Count(&count).Error
		return count, err
	default:
		return 0, fmt.Errorf("unknown limit kind %q", kind)
	}
}

// startOfMonth truncates to the first instant of t's calendar month. The
// voucher cap resets on month boundaries, not on a rolling window.
func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
