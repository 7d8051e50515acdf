package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/api/middleware"
	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/api/validators"
	"github.com/pantrylink/pantrylink-backend/internal/agencies"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type agencyResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
	Phone *string   `json:"phone,omitempty"`
}

func toAgencyResponse(a *models.Agency) *agencyResponse {
	if a == nil {
		return nil
	}
	return &agencyResponse{ID: a.ID, Name: a.Name, Email: a.Email, Phone: a.Phone}
}

type agencyRequest struct {
	Name  string  `json:"name" validate:"required,min=1"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone *string `json:"phone,omitempty"`
}

func (r agencyRequest) toInput() agencies.Input {
	return agencies.Input{Name: r.Name, Email: r.Email, Phone: r.Phone}
}

// AgencyCreate registers a partner agency.
func AgencyCreate(svc agencies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req agencyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		agency, err := svc.Create(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), req.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toAgencyResponse(agency))
	}
}

// AgencyUpdate rewrites the agency's contact fields.
func AgencyUpdate(svc agencies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		agencyID, err := validators.ParsePathUUID(chi.URLParam(r, "agencyId"), "agencyId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req agencyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		agency, err := svc.Update(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), agencyID, req.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAgencyResponse(agency))
	}
}

// AgencyGet fetches one agency.
func AgencyGet(svc agencies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		agencyID, err := validators.ParsePathUUID(chi.URLParam(r, "agencyId"), "agencyId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		agency, err := svc.Get(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), agencyID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAgencyResponse(agency))
	}
}

// AgencyList returns every agency in the tenant.
func AgencyList(svc agencies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rows, err := svc.List(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]*agencyResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toAgencyResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"agencies": items})
	}
}

// AgencyDelete removes an agency with no attached clients.
func AgencyDelete(svc agencies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		agencyID, err := validators.ParsePathUUID(chi.URLParam(r, "agencyId"), "agencyId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), agencyID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
