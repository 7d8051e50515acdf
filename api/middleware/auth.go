package middleware

import (
	"context"
	"net/http"

	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/internal/rbac"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type sessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

// Auth resolves the session cookie to a user and stores both in the
// context. Requests without a valid session pass through anonymously;
// RequireAuth draws the line for protected routes.
func Auth(sessions sessionResolver, cfg config.SessionConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			cookie, err := r.Cookie(cfg.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := sessions.Resolve(ctx, cookie.Value)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if user == nil {
				// Stale cookie. Treat the request as anonymous rather
				// than erroring: the login flow replaces the cookie.
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithUser(ctx, user)
			ctx = WithSessionToken(ctx, cookie.Value)
			if logg != nil {
				ctx = logg.WithUserID(ctx, user.ID.String())
				ctx = logg.WithActorRole(ctx, string(user.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if UserFromContext(ctx) == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMembership rejects authenticated users that do not belong to
// the resolved tenant. The reply is a 404, matching RequireTenant: a
// foreign subdomain reveals nothing.
func RequireMembership(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tenant := TenantFromContext(ctx)
			user := UserFromContext(ctx)
			if tenant == nil || user == nil || user.TenantID == nil || *user.TenantID != tenant.ID {
				responses.WriteError(ctx, logg, w, notFoundOrganization())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission gates a route behind one RBAC permission.
func RequirePermission(perm rbac.Permission, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			user := UserFromContext(ctx)
			if user == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !rbac.Has(user.Role, perm) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePlatform restricts a route to platform operators. Tenant
// accounts, whatever their role, do not belong here.
func RequirePlatform(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			user := UserFromContext(ctx)
			if user == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if user.TenantID != nil || !user.Role.IsPlatform() {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "platform operator access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func notFoundOrganization() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
}
