package controllers

import (
	"net/http"

	"github.com/adeyemio/tradefair-backend/api/responses"
	"github.com/adeyemio/tradefair-backend/api/validators"
	"github.com/adeyemio/tradefair-backend/internal/bankaccounts"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

// GetBankAccount returns the vendor's payout destination.
func GetBankAccount(svc bankaccounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.Get(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// SetBankAccount stores the vendor's payout destination. Any change to
// the account details clears the verified flag until an operator
// re-verifies them.
func SetBankAccount(svc bankaccounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body bankaccounts.SetAccountInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.VendorID = vendorID
		body.BankName = validators.SanitizeString(body.BankName, 120)
		body.AccountName = validators.SanitizeString(body.AccountName, 120)

		account, err := svc.Set(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// VerifyBankAccount marks the vendor's bank account as verified. Admin only.
func VerifyBankAccount(svc bankaccounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.Verify(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}
