package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adeyemio/tradefair-backend/api/responses"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

// VendorScope authorizes access to the vendor named in the URL. Admin
// tokens may act on any vendor; vendor tokens only on their own wallet.
func VendorScope(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vendorID, err := uuid.Parse(chi.URLParam(r, "vendorID"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid vendor id"))
				return
			}

			switch enums.ActorRole(RoleFromContext(r.Context())) {
			case enums.ActorRoleAdmin:
			case enums.ActorRoleVendor:
				if VendorIDFromContext(r.Context()) != vendorID.String() {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "wallet belongs to another vendor"))
					return
				}
			default:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor scope required"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithVendorID(r.Context(), vendorID.String())))
		})
	}
}
