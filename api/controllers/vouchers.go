package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pantrylink/pantrylink-backend/api/middleware"
	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/api/validators"
	"github.com/pantrylink/pantrylink-backend/internal/vouchers"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type voucherResponse struct {
	ID                uuid.UUID `json:"id"`
	Code              string    `json:"code"`
	ClientID          uuid.UUID `json:"client_id"`
	AgencyID          uuid.UUID `json:"agency_id"`
	Status            string    `json:"status"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	UnfulfilledReason *string   `json:"unfulfilled_reason,omitempty"`
}

func toVoucherResponse(v *models.Voucher) *voucherResponse {
	if v == nil {
		return nil
	}
	return &voucherResponse{
		ID:                v.ID,
		Code:              v.Code,
		ClientID:          v.ClientID,
		AgencyID:          v.AgencyID,
		Status:            string(v.Status),
		IssuedAt:          v.IssuedAt,
		ExpiresAt:         v.ExpiresAt,
		UnfulfilledReason: v.UnfulfilledReason,
	}
}

type voucherIssueRequest struct {
	ClientID uuid.UUID `json:"client_id" validate:"required"`
	AgencyID uuid.UUID `json:"agency_id" validate:"required"`
}

// VoucherIssue creates a voucher for a client.
func VoucherIssue(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req voucherIssueRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		voucher, err := svc.Issue(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), vouchers.IssueInput{
			ClientID: req.ClientID,
			AgencyID: req.AgencyID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toVoucherResponse(voucher))
	}
}

type voucherRedeemRequest struct {
	CenterID uuid.UUID `json:"center_id" validate:"required"`
	WeightKg *float64  `json:"weight_kg,omitempty" validate:"omitempty,gt=0"`
}

// VoucherRedeem marks a voucher redeemed at a distribution center.
func VoucherRedeem(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		voucherID, err := validators.ParsePathUUID(chi.URLParam(r, "voucherId"), "voucherId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req voucherRedeemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		voucher, err := svc.Redeem(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), voucherID, vouchers.RedeemInput{
			CenterID: req.CenterID,
			WeightKg: req.WeightKg,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toVoucherResponse(voucher))
	}
}

// VoucherInvalidate expires a voucher ahead of its date.
func VoucherInvalidate(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		voucherID, err := validators.ParsePathUUID(chi.URLParam(r, "voucherId"), "voucherId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		voucher, err := svc.Invalidate(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), voucherID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toVoucherResponse(voucher))
	}
}

type voucherUnfulfilledRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

// VoucherMarkUnfulfilled records that a redemption attempt failed.
func VoucherMarkUnfulfilled(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		voucherID, err := validators.ParsePathUUID(chi.URLParam(r, "voucherId"), "voucherId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req voucherUnfulfilledRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		voucher, err := svc.MarkUnfulfilled(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), voucherID, req.Reason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toVoucherResponse(voucher))
	}
}

// VoucherDelete removes an unredeemed voucher.
func VoucherDelete(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		voucherID, err := validators.ParsePathUUID(chi.URLParam(r, "voucherId"), "voucherId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), voucherID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// VoucherGet fetches one voucher.
func VoucherGet(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		voucherID, err := validators.ParsePathUUID(chi.URLParam(r, "voucherId"), "voucherId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		voucher, err := svc.Get(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), voucherID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toVoucherResponse(voucher))
	}
}

// VoucherList returns a cursor page of vouchers, newest first.
func VoucherList(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		agencyID, err := validators.ParseQueryUUID(r, "agency_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		clientID, err := validators.ParseQueryUUID(r, "client_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var status *enums.VoucherStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed, parseErr := enums.ParseVoucherStatus(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter"))
				return
			}
			status = &parsed
		}

		result, err := svc.List(ctx, middleware.TenantFromContext(ctx), middleware.UserFromContext(ctx), vouchers.ListParams{
			AgencyID: agencyID,
			ClientID: clientID,
			Status:   status,
			Limit:    limit,
			Cursor:   r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]*voucherResponse, 0, len(result.Vouchers))
		for i := range result.Vouchers {
			items = append(items, toVoucherResponse(&result.Vouchers[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"vouchers":    items,
			"next_cursor": result.NextCursor,
		})
	}
}
