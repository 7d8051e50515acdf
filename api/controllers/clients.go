package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/api/middleware"
	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/api/validators"
	"github.com/pantrylink/pantrylink-backend/internal/clients"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type clientResponse struct {
	ID            uuid.UUID  `json:"id"`
	AgencyID      *uuid.UUID `json:"agency_id,omitempty"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         *string    `json:"email,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	HouseholdSize *int       `json:"household_size,omitempty"`
}

func toClientResponse(c *models.Client) *clientResponse {
	if c == nil {
		return nil
	}
	return &clientResponse{
		ID:            c.ID,
		AgencyID:      c.AgencyID,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		Email:         c.Email,
		Phone:         c.Phone,
		HouseholdSize: c.HouseholdSize,
	}
}

type clientCreateRequest struct {
	FirstName     string     `json:"first_name" validate:"required,min=1"`
	LastName      string     `json:"last_name" validate:"required,min=1"`
	Email         *string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string    `json:"phone,omitempty"`
	HouseholdSize *int       `json:"household_size,omitempty" validate:"omitempty,min=1"`
	AgencyID      *uuid.UUID `json:"agency_id,omitempty"`
}

// ClientCreate registers a voucher recipient.
func ClientCreate(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req clientCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		client, err := svc.Create(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), clients.CreateInput{
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			Email:         req.Email,
			Phone:         req.Phone,
			HouseholdSize: req.HouseholdSize,
			AgencyID:      req.AgencyID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toClientResponse(client))
	}
}

type clientUpdateRequest struct {
	FirstName     *string `json:"first_name,omitempty" validate:"omitempty,min=1"`
	LastName      *string `json:"last_name,omitempty" validate:"omitempty,min=1"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty"`
	HouseholdSize *int    `json:"household_size,omitempty" validate:"omitempty,min=1"`
}

// ClientUpdate adjusts mutable client fields.
func ClientUpdate(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		clientID, err := validators.ParsePathUUID(chi.URLParam(r, "clientId"), "clientId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req clientUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		client, err := svc.Update(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), clientID, clients.UpdateInput{
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			Email:         req.Email,
			Phone:         req.Phone,
			HouseholdSize: req.HouseholdSize,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toClientResponse(client))
	}
}

// ClientGet fetches one client.
func ClientGet(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		clientID, err := validators.ParsePathUUID(chi.URLParam(r, "clientId"), "clientId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		client, err := svc.Get(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), clientID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toClientResponse(client))
	}
}

// ClientList returns the clients visible in this tenant, optionally
// filtered by agency.
func ClientList(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		agencyID, err := validators.ParseQueryUUID(r, "agency_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, err := svc.List(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), agencyID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]*clientResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toClientResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"clients": items})
	}
}
