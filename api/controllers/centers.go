package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/api/middleware"
	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/api/validators"
	"github.com/pantrylink/pantrylink-backend/internal/centers"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type centerResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Address *string   `json:"address,omitempty"`
	Phone   *string   `json:"phone,omitempty"`
}

func toCenterResponse(c *models.Center) *centerResponse {
	if c == nil {
		return nil
	}
	return &centerResponse{ID: c.ID, Name: c.Name, Address: c.Address, Phone: c.Phone}
}

type centerRequest struct {
	Name    string  `json:"name" validate:"required,min=1"`
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty"`
}

func (r centerRequest) toInput() centers.Input {
	return centers.Input{Name: r.Name, Address: r.Address, Phone: r.Phone}
}

// CenterCreate registers a distribution center.
func CenterCreate(svc centers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req centerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		center, err := svc.Create(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), req.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCenterResponse(center))
	}
}

// CenterUpdate rewrites the center's fields.
func CenterUpdate(svc centers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		centerID, err := validators.ParsePathUUID(chi.URLParam(r, "centerId"), "centerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req centerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		center, err := svc.Update(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), centerID, req.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCenterResponse(center))
	}
}

// CenterGet fetches one center.
func CenterGet(svc centers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		centerID, err := validators.ParsePathUUID(chi.URLParam(r, "centerId"), "centerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		center, err := svc.Get(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), centerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCenterResponse(center))
	}
}

// CenterList returns every center in the tenant.
func CenterList(svc centers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rows, err := svc.List(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]*centerResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toCenterResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"centers": items})
	}
}

// CenterDelete removes a center with no recorded redemptions.
func CenterDelete(svc centers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		centerID, err := validators.ParsePathUUID(chi.URLParam(r, "centerId"), "centerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), centerID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
