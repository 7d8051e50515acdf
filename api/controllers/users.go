package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/api/middleware"
	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/api/validators"
	"github.com/pantrylink/pantrylink-backend/internal/users"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type userCreateRequest struct {
	Email     string     `json:"email" validate:"required,email"`
	FirstName string     `json:"first_name" validate:"required,min=1"`
	LastName  string     `json:"last_name" validate:"required,min=1"`
	Role      string     `json:"role" validate:"required"`
	AgencyID  *uuid.UUID `json:"agency_id,omitempty"`
}

// UserCreate provisions a tenant account and returns its one-time
// temporary password.
func UserCreate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req userCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		role, err := enums.ParseUserRole(req.Role)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}

		result, err := svc.Create(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), users.CreateInput{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      role,
			AgencyID:  req.AgencyID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"user":          toUserResponse(result.User),
			"temp_password": result.TempPassword,
		})
	}
}

type userUpdateRequest struct {
	FirstName *string    `json:"first_name,omitempty" validate:"omitempty,min=1"`
	LastName  *string    `json:"last_name,omitempty" validate:"omitempty,min=1"`
	Role      *string    `json:"role,omitempty"`
	AgencyID  *uuid.UUID `json:"agency_id,omitempty"`
}

// UserUpdate adjusts names, role or agency assignment.
func UserUpdate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := validators.ParsePathUUID(chi.URLParam(r, "userId"), "userId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req userUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := users.UpdateInput{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			AgencyID:  req.AgencyID,
		}
		if req.Role != nil {
			role, parseErr := enums.ParseUserRole(*req.Role)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid role"))
				return
			}
			input.Role = &role
		}

		user, err := svc.Update(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), userID, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toUserResponse(user))
	}
}

// UserSuspend locks an account and revokes its sessions.
func UserSuspend(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := validators.ParsePathUUID(chi.URLParam(r, "userId"), "userId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Suspend(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), userID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "suspended"})
	}
}

// UserReactivate unlocks a suspended account.
func UserReactivate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := validators.ParsePathUUID(chi.URLParam(r, "userId"), "userId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Reactivate(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), userID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "active"})
	}
}

// UserList returns every account in the tenant.
func UserList(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rows, err := svc.List(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]*userResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toUserResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"users": items})
	}
}
