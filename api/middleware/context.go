package middleware

import (
	"context"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
)

type contextKey string

const (
	ctxTenant       contextKey = "tenant"
	ctxUser         contextKey = "user"
	ctxSessionToken contextKey = "session_token"
)

// WithTenant injects the resolved tenant into the context.
func WithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	return context.WithValue(ctx, ctxTenant, tenant)
}

// TenantFromContext returns the resolved tenant, or nil on platform hosts.
func TenantFromContext(ctx context.Context) *models.Tenant {
	if ctx == nil {
		return nil
	}
	if tenant, ok := ctx.Value(ctxTenant).(*models.Tenant); ok {
		return tenant
	}
	return nil
}

// WithUser injects the authenticated user into the context.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, ctxUser, user)
}

// UserFromContext returns the authenticated user, or nil when the
// request carries no valid session.
func UserFromContext(ctx context.Context) *models.User {
	if ctx == nil {
		return nil
	}
	if user, ok := ctx.Value(ctxUser).(*models.User); ok {
		return user
	}
	return nil
}

// WithSessionToken stashes the raw session token so logout can revoke it.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxSessionToken, token)
}

// SessionTokenFromContext returns the raw session token for the request.
func SessionTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if token, ok := ctx.Value(ctxSessionToken).(string); ok {
		return token
	}
	return ""
}
