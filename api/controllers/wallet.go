package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adeyemio/tradefair-backend/api/middleware"
	"github.com/adeyemio/tradefair-backend/api/responses"
	"github.com/adeyemio/tradefair-backend/api/validators"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

// GetWalletSummary returns the vendor's wallet projection with derived
// in-flight and next-payout figures.
func GetWalletSummary(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), vendorID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// ListLedger returns the vendor's ledger entries, newest first.
func ListLedger(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := ledgerFiltersFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.List(r.Context(), vendorID, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entries": entries,
			"limit":   filters.Limit,
			"offset":  filters.Offset,
		})
	}
}

// GetUpcomingPayout previews what the next payout run would pay.
func GetUpcomingPayout(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.UpcomingPayout(r.Context(), vendorID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

// CheckWalletConsistency replays the vendor's ledger against the
// projection and reports any drift.
func CheckWalletConsistency(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.CheckConsistency(r.Context(), vendorID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func vendorIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.VendorIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	vendorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id")
	}
	return vendorID, nil
}

func ledgerFiltersFromQuery(r *http.Request) (wallet.Filters, error) {
	var filters wallet.Filters

	limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit

	offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<30)
	if err != nil {
		return filters, err
	}
	filters.Offset = offset

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from timestamp")
		}
		filters.From = &from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to timestamp")
		}
		filters.To = &to
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("source")); raw != "" {
		source, err := enums.ParseLedgerSource(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ledger source")
		}
		filters.Source = &source
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		entryType := enums.LedgerEntryType(raw)
		if !entryType.IsValid() {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "invalid entry type")
		}
		filters.Type = &entryType
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("cycleKey")); raw != "" {
		filters.TargetPayoutKey = &raw
	}

	return filters, nil
}
