package controllers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/api/middleware"
	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/api/validators"
	"github.com/pantrylink/pantrylink-backend/internal/auth"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type userResponse struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	AgencyID  *uuid.UUID `json:"agency_id,omitempty"`
}

func toUserResponse(user *models.User) *userResponse {
	if user == nil {
		return nil
	}
	return &userResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      string(user.Role),
		Status:    string(user.Status),
		TenantID:  user.TenantID,
		AgencyID:  user.AgencyID,
	}
}

// AuthLogin authenticates against the resolved tenant (or the platform
// on the apex host) and sets the session cookie.
func AuthLogin(svc auth.Service, sessionCfg config.SessionConfig, appCfg config.AppConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var req auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		req.ClientIP = clientIP(r)

		tenant := middleware.TenantFromContext(ctx)
		result, err := svc.Login(ctx, tenant, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		http.SetCookie(w, sessionCookie(sessionCfg, appCfg, result.Session.Token, sessionCfg.TTL))
		responses.WriteSuccess(w, map[string]any{"user": toUserResponse(result.User)})
	}
}

// AuthLogout revokes the current session and clears the cookie. Always
// succeeds: logging out twice is not an error.
func AuthLogout(svc auth.Service, sessionCfg config.SessionConfig, appCfg config.AppConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		if token := middleware.SessionTokenFromContext(ctx); token != "" {
			if err := svc.Logout(ctx, token); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		http.SetCookie(w, sessionCookie(sessionCfg, appCfg, "", -time.Hour))
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// AuthMe echoes the authenticated user, letting clients rehydrate after
// a page load.
func AuthMe(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user := middleware.UserFromContext(ctx)
		if user == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"user": toUserResponse(user)})
	}
}

// sessionCookie is host-only on purpose: a token minted on one tenant
// subdomain must not ride along to another.
func sessionCookie(sessionCfg config.SessionConfig, appCfg config.AppConfig, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl.Seconds())
	if value == "" {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     sessionCfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   appCfg.IsProd(),
		SameSite: http.SameSiteLaxMode,
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
