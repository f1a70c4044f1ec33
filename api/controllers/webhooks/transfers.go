// Package webhooks terminates provider callbacks. The transfer webhook
// is the fast path for settling in-flight payout batches; the resolver
// job covers anything the provider never calls back about.
package webhooks

import (
	"io"
	"net/http"

	"github.com/adeyemio/tradefair-backend/api/responses"
	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
	"github.com/adeyemio/tradefair-backend/pkg/transfer"
)

const maxWebhookBody = 1 << 20

// TransferWebhook verifies and applies a transfer settlement callback.
// Redelivery of an already-settled reference is acknowledged without
// touching the batch.
func TransferWebhook(secret string, svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}

		event, err := transfer.ParseWebhook(secret, body, r.Header.Get(transfer.SignatureHeader))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ResolveFromWebhook(r.Context(), event.Reference, enums.TransferStatus(event.Status), event.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
