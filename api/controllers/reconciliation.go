package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/adeyemio/tradefair-backend/api/middleware"
	"github.com/adeyemio/tradefair-backend/api/responses"
	"github.com/adeyemio/tradefair-backend/api/validators"
	"github.com/adeyemio/tradefair-backend/internal/reconciliation"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

type previewReconciliationBody struct {
	VendorID    uuid.UUID `json:"vendorId" validate:"required"`
	AmountMinor int64     `json:"amountMinor" validate:"required,gt=0"`
}

type commitReconciliationBody struct {
	VendorID       uuid.UUID `json:"vendorId" validate:"required"`
	AmountMinor    int64     `json:"amountMinor" validate:"required,gt=0"`
	IdempotencyKey string    `json:"idempotencyKey" validate:"required"`
}

type backfillBody struct {
	BatchID          uuid.UUID   `json:"batchId" validate:"required"`
	VendorID         uuid.UUID   `json:"vendorId" validate:"required"`
	TargetPayoutKey  string      `json:"targetPayoutKey" validate:"required"`
	GrossAmountMinor int64       `json:"grossAmountMinor" validate:"required,gt=0"`
	FeeMinor         int64       `json:"feeMinor" validate:"gte=0"`
	TransferRef      *string     `json:"transferRef,omitempty"`
	EntryIDs         []uuid.UUID `json:"entryIds" validate:"required,min=1"`
	CompletedAt      time.Time   `json:"completedAt" validate:"required"`
}

// PreviewReconciliation shows how a manual payout of the requested
// amount would consume eligible entries, without writing anything.
func PreviewReconciliation(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body previewReconciliationBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.PreviewManualPayout(r.Context(), body.VendorID, body.AmountMinor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

// CommitReconciliation records a manual payout that was settled
// out-of-band, consuming eligible entries per a freshly computed plan.
func CommitReconciliation(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator, err := operatorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body commitReconciliationBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch, err := svc.CommitManualPayout(r.Context(), reconciliation.CommitInput{
			VendorID:       body.VendorID,
			AmountMinor:    body.AmountMinor,
			IdempotencyKey: body.IdempotencyKey,
			Operator:       operator,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

// BackfillBatch records a payout that happened entirely outside the
// system, locking the named ledger entries under a completed batch.
func BackfillBatch(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator, err := operatorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body backfillBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch, err := svc.BackfillBatch(r.Context(), reconciliation.BackfillInput{
			BatchID:          body.BatchID,
			VendorID:         body.VendorID,
			TargetPayoutKey:  body.TargetPayoutKey,
			GrossAmountMinor: body.GrossAmountMinor,
			FeeMinor:         body.FeeMinor,
			TransferRef:      body.TransferRef,
			EntryIDs:         body.EntryIDs,
			CompletedAt:      body.CompletedAt,
			Operator:         operator,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

func operatorFromRequest(r *http.Request) (string, error) {
	operator := middleware.UserIDFromContext(r.Context())
	if operator == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}
	return operator, nil
}
