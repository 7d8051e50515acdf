package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type planLister interface {
	List(ctx context.Context) ([]models.Plan, error)
}

type planResponse struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	MaxUsers            *int      `json:"max_users"`
	MaxAgencies         *int      `json:"max_agencies"`
	MaxVouchersPerMonth *int      `json:"max_vouchers_per_month"`
	IsDefault           bool      `json:"is_default"`
}

// PlanList returns every subscription plan. Null caps mean unlimited.
func PlanList(plans planLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rows, err := plans.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]planResponse, 0, len(rows))
		for _, p := range rows {
			items = append(items, planResponse{
				ID:                  p.ID,
				Name:                p.Name,
				MaxUsers:            p.MaxUsers,
				MaxAgencies:         p.MaxAgencies,
				MaxVouchersPerMonth: p.MaxVouchersPerMonth,
				IsDefault:           p.IsDefault,
			})
		}
		responses.WriteSuccess(w, map[string]any{"plans": items})
	}
}
