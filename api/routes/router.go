package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pantrylink/pantrylink-backend/api/controllers"
	webhookcontrollers "github.com/pantrylink/pantrylink-backend/api/controllers/webhooks"
	"github.com/pantrylink/pantrylink-backend/api/middleware"
	"github.com/pantrylink/pantrylink-backend/internal/agencies"
	"github.com/pantrylink/pantrylink-backend/internal/auth"
	"github.com/pantrylink/pantrylink-backend/internal/centers"
	"github.com/pantrylink/pantrylink-backend/internal/clients"
	"github.com/pantrylink/pantrylink-backend/internal/organizations"
	"github.com/pantrylink/pantrylink-backend/internal/rbac"
	subscriptionsvc "github.com/pantrylink/pantrylink-backend/internal/subscriptions"
	"github.com/pantrylink/pantrylink-backend/internal/users"
	"github.com/pantrylink/pantrylink-backend/internal/vouchers"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
	"github.com/pantrylink/pantrylink-backend/pkg/metrics"
	"github.com/pantrylink/pantrylink-backend/pkg/redis"
	"github.com/pantrylink/pantrylink-backend/pkg/stripe"
)

type tenantResolver interface {
	Resolve(ctx context.Context, host, explicitSlug string) (*models.Tenant, error)
}

type sessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

type planLister interface {
	List(ctx context.Context) ([]models.Plan, error)
}

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config   *config.Config
	Log      *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Registry *prometheus.Registry

	Resolver    tenantResolver
	Sessions    sessionResolver
	HTTPMetrics *metrics.HTTPMetrics

	AuthService         auth.Service
	UserService         users.Service
	OrganizationService organizations.Service
	AgencyService       agencies.Service
	CenterService       centers.Service
	ClientService       clients.Service
	VoucherService      vouchers.Service
	Plans               planLister

	StripeClient *stripe.Client
	WebhookSvc   *subscriptionsvc.WebhookService
	WebhookGuard *subscriptionsvc.IdempotencyGuard
}

// NewRouter wires middleware and controllers into the chi tree. Tenant
// resolution and session auth run on every request; route groups layer
// the membership and permission checks on top.
func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Log

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.Tenancy),
		middleware.TenantContext(p.Resolver, logg),
		middleware.Auth(p.Sessions, cfg.Session, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})
	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	// Billing webhooks mount only when Stripe is configured; a deployment
	// without billing simply has no webhook endpoint.
	if p.WebhookSvc != nil && p.StripeClient != nil && p.WebhookGuard != nil {
		r.Route("/api/v1/webhooks", func(r chi.Router) {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(p.WebhookSvc, p.StripeClient, p.WebhookGuard, logg))
		})
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/login", controllers.AuthLogin(p.AuthService, cfg.Session, cfg.App, logg))
		r.Post("/logout", controllers.AuthLogout(p.AuthService, cfg.Session, cfg.App, logg))
		r.With(middleware.RequireAuth(logg)).Get("/me", controllers.AuthMe(logg))
	})

	// Tenant-scoped surface. Every route requires a resolved tenant, an
	// authenticated session, and membership in that tenant; anything
	// cross-tenant reads as not found.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.RequireTenant(logg),
			middleware.RequireAuth(logg),
			middleware.RequireMembership(logg),
		)

		r.Route("/vouchers", func(r chi.Router) {
			r.With(middleware.RequirePermission(rbac.PermVoucherIssue, logg)).Post("/", controllers.VoucherIssue(p.VoucherService, logg))
			r.Get("/", controllers.VoucherList(p.VoucherService, logg))
			r.Get("/{voucherId}", controllers.VoucherGet(p.VoucherService, logg))
			r.With(middleware.RequirePermission(rbac.PermVoucherRedeem, logg)).Post("/{voucherId}/redeem", controllers.VoucherRedeem(p.VoucherService, logg))
			r.With(middleware.RequirePermission(rbac.PermVoucherRedeem, logg)).Post("/{voucherId}/invalidate", controllers.VoucherInvalidate(p.VoucherService, logg))
			r.With(middleware.RequirePermission(rbac.PermVoucherRedeem, logg)).Post("/{voucherId}/unfulfilled", controllers.VoucherMarkUnfulfilled(p.VoucherService, logg))
			r.With(middleware.RequirePermission(rbac.PermVoucherDelete, logg)).Delete("/{voucherId}", controllers.VoucherDelete(p.VoucherService, logg))
		})

		r.Route("/clients", func(r chi.Router) {
			r.With(middleware.RequirePermission(rbac.PermClientCreate, logg)).Post("/", controllers.ClientCreate(p.ClientService, logg))
			r.With(middleware.RequirePermission(rbac.PermClientRead, logg)).Get("/", controllers.ClientList(p.ClientService, logg))
			r.With(middleware.RequirePermission(rbac.PermClientRead, logg)).Get("/{clientId}", controllers.ClientGet(p.ClientService, logg))
			r.With(middleware.RequirePermission(rbac.PermClientUpdate, logg)).Put("/{clientId}", controllers.ClientUpdate(p.ClientService, logg))
		})

		r.Route("/agencies", func(r chi.Router) {
			r.Get("/", controllers.AgencyList(p.AgencyService, logg))
			r.Get("/{agencyId}", controllers.AgencyGet(p.AgencyService, logg))
			r.With(middleware.RequirePermission(rbac.PermAgencyManage, logg)).Post("/", controllers.AgencyCreate(p.AgencyService, logg))
			r.With(middleware.RequirePermission(rbac.PermAgencyManage, logg)).Put("/{agencyId}", controllers.AgencyUpdate(p.AgencyService, logg))
			r.With(middleware.RequirePermission(rbac.PermAgencyManage, logg)).Delete("/{agencyId}", controllers.AgencyDelete(p.AgencyService, logg))
		})

		r.Route("/centers", func(r chi.Router) {
			r.Get("/", controllers.CenterList(p.CenterService, logg))
			r.Get("/{centerId}", controllers.CenterGet(p.CenterService, logg))
			r.With(middleware.RequirePermission(rbac.PermCenterManage, logg)).Post("/", controllers.CenterCreate(p.CenterService, logg))
			r.With(middleware.RequirePermission(rbac.PermCenterManage, logg)).Put("/{centerId}", controllers.CenterUpdate(p.CenterService, logg))
			r.With(middleware.RequirePermission(rbac.PermCenterManage, logg)).Delete("/{centerId}", controllers.CenterDelete(p.CenterService, logg))
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequirePermission(rbac.PermUserManage, logg))
			r.Post("/", controllers.UserCreate(p.UserService, logg))
			r.Get("/", controllers.UserList(p.UserService, logg))
			r.Put("/{userId}", controllers.UserUpdate(p.UserService, logg))
			r.Post("/{userId}/suspend", controllers.UserSuspend(p.UserService, logg))
			r.Post("/{userId}/reactivate", controllers.UserReactivate(p.UserService, logg))
		})

		r.With(middleware.RequirePermission(rbac.PermSettingsManage, logg)).
			Put("/organization", controllers.OrganizationBranding(p.OrganizationService, logg))
	})

	// Platform surface: operators only, reached from the apex host.
	r.Route("/api/platform/v1", func(r chi.Router) {
		r.Use(
			middleware.RequireAuth(logg),
			middleware.RequirePlatform(logg),
		)

		r.Route("/organizations", func(r chi.Router) {
			r.Post("/", controllers.OrganizationCreate(p.OrganizationService, logg))
			r.Get("/", controllers.OrganizationList(p.OrganizationService, logg))
			r.Get("/{organizationId}", controllers.OrganizationGet(p.OrganizationService, logg))
			r.Post("/{organizationId}/suspend", controllers.OrganizationSuspend(p.OrganizationService, logg))
			r.Post("/{organizationId}/reactivate", controllers.OrganizationReactivate(p.OrganizationService, logg))
		})

		r.Get("/plans", controllers.PlanList(p.Plans, logg))
	})

	return r
}
