package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/api/middleware"
	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/api/validators"
	"github.com/pantrylink/pantrylink-backend/internal/organizations"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type organizationResponse struct {
	ID                    uuid.UUID  `json:"id"`
	Slug                  string     `json:"slug"`
	Name                  string     `json:"name"`
	Status                string     `json:"status"`
	LogoURL               *string    `json:"logo_url,omitempty"`
	PrimaryColor          *string    `json:"primary_color,omitempty"`
	PlanID                *uuid.UUID `json:"plan_id,omitempty"`
	SubscriptionStatus    string     `json:"subscription_status"`
	SubscriptionPeriodEnd *time.Time `json:"subscription_period_end,omitempty"`
}

func toOrganizationResponse(t *models.Tenant) *organizationResponse {
	if t == nil {
		return nil
	}
	return &organizationResponse{
		ID:                    t.ID,
		Slug:                  t.Slug,
		Name:                  t.Name,
		Status:                string(t.Status),
		LogoURL:               t.LogoURL,
		PrimaryColor:          t.PrimaryColor,
		PlanID:                t.PlanID,
		SubscriptionStatus:    string(t.SubscriptionStatus),
		SubscriptionPeriodEnd: t.SubscriptionPeriodEnd,
	}
}

type organizationCreateRequest struct {
	Name           string `json:"name" validate:"required,min=1"`
	Slug           string `json:"slug" validate:"required,min=3,max=63"`
	AdminEmail     string `json:"admin_email" validate:"required,email"`
	AdminFirstName string `json:"admin_first_name" validate:"required,min=1"`
	AdminLastName  string `json:"admin_last_name" validate:"required,min=1"`
}

// OrganizationCreate provisions a tenant with its first administrator.
func OrganizationCreate(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req organizationCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Create(ctx, middleware.UserFromContext(ctx), organizations.CreateInput{
			Name:           req.Name,
			Slug:           req.Slug,
			AdminEmail:     req.AdminEmail,
			AdminFirstName: req.AdminFirstName,
			AdminLastName:  req.AdminLastName,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"organization":  toOrganizationResponse(result.Tenant),
			"admin":         toUserResponse(result.Admin),
			"temp_password": result.TempPassword,
		})
	}
}

// OrganizationList returns every tenant on the platform.
func OrganizationList(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rows, err := svc.List(ctx, middleware.UserFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]*organizationResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toOrganizationResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"organizations": items})
	}
}

// OrganizationGet fetches one tenant.
func OrganizationGet(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, err := validators.ParsePathUUID(chi.URLParam(r, "organizationId"), "organizationId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		tenant, err := svc.Get(ctx, middleware.UserFromContext(ctx), tenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrganizationResponse(tenant))
	}
}

// OrganizationSuspend takes a tenant offline; resolution stops on the
// next request.
func OrganizationSuspend(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, err := validators.ParsePathUUID(chi.URLParam(r, "organizationId"), "organizationId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Suspend(ctx, middleware.UserFromContext(ctx), tenantID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "suspended"})
	}
}

// OrganizationReactivate puts a suspended tenant back online.
func OrganizationReactivate(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, err := validators.ParsePathUUID(chi.URLParam(r, "organizationId"), "organizationId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Reactivate(ctx, middleware.UserFromContext(ctx), tenantID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "active"})
	}
}

type brandingRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1"`
	LogoURL      *string `json:"logo_url,omitempty" validate:"omitempty,url"`
	PrimaryColor *string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
}

// OrganizationBranding lets a tenant admin adjust its own presentation.
func OrganizationBranding(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenant := middleware.TenantFromContext(ctx)
		if tenant == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found"))
			return
		}
		var req brandingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		updated, err := svc.UpdateBranding(ctx, tenant, middleware.UserFromContext(ctx), organizations.BrandingInput{
			Name:         req.Name,
			LogoURL:      req.LogoURL,
			PrimaryColor: req.PrimaryColor,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrganizationResponse(updated))
	}
}
