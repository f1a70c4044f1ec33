package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adeyemio/tradefair-backend/api/responses"
	"github.com/adeyemio/tradefair-backend/api/validators"
	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/internal/schedule"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

type runPayoutBody struct {
	CycleKey string `json:"cycleKey" validate:"required"`
}

// ListPayouts returns the vendor's payout batches, newest first.
func ListPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batches, err := svc.History(r.Context(), vendorID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"batches": batches,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// GetPayoutBatchEntries returns the lock rows of one batch, showing
// which ledger entries funded it.
func GetPayoutBatchEntries(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid batch id"))
			return
		}

		entries, err := svc.BatchEntries(r.Context(), batchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"entries": entries})
	}
}

// RunPayout triggers a payout run for one vendor and cycle outside the
// scheduled worker. Admin only.
func RunPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body runPayoutBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cycleKey := strings.TrimSpace(body.CycleKey)
		if _, err := time.Parse(schedule.CycleKeyLayout, cycleKey); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cycle key must be a date"))
			return
		}

		batch, err := svc.RunCycle(r.Context(), vendorID, cycleKey, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if batch == nil {
			responses.WriteSuccess(w, map[string]any{"batch": nil, "note": "no eligible entries for cycle"})
			return
		}
		responses.WriteSuccess(w, batch)
	}
}
