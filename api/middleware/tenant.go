package middleware

import (
	"context"
	"net/http"

	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

const tenantSlugHeader = "X-Tenant-Slug"

type tenantResolver interface {
	Resolve(ctx context.Context, host, explicitSlug string) (*models.Tenant, error)
}

// TenantContext resolves the request host to a tenant and stores it in
// the context. A nil tenant is left for route groups to judge: platform
// routes expect it, tenant routes reject it.
func TenantContext(resolver tenantResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			slug := r.Header.Get(tenantSlugHeader)
			if slug == "" {
				slug = r.URL.Query().Get("tenant")
			}

			tenant, err := resolver.Resolve(ctx, r.Host, slug)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if tenant != nil {
				ctx = WithTenant(ctx, tenant)
				if logg != nil {
					ctx = logg.WithTenantID(ctx, tenant.ID.String())
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests that did not resolve to a tenant.
// The reply is a 404: whether an organization exists on another
// subdomain is not this host's business.
func RequireTenant(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if TenantFromContext(ctx) == nil {
				responses.WriteError(ctx, logg, w, notFoundOrganization())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
