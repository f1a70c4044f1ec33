package controllers

import (
	"net/http"

	"github.com/adeyemio/tradefair-backend/api/responses"
	"github.com/adeyemio/tradefair-backend/api/validators"
	"github.com/adeyemio/tradefair-backend/internal/schedule"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

type setScheduleBody struct {
	Tier string `json:"tier" validate:"required"`
}

// GetSchedule returns the vendor's payout schedule, falling back to the
// platform default when none was configured.
func GetSchedule(svc schedule.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sched, err := svc.For(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sched)
	}
}

// SetSchedule switches the vendor to a different payout tier. The new
// tier applies from the next cycle; entries already stamped keep their
// target dates.
func SetSchedule(svc schedule.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body setScheduleBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tier, err := enums.ParsePayoutTier(body.Tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout tier"))
			return
		}

		sched, err := svc.Set(r.Context(), vendorID, tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sched)
	}
}
