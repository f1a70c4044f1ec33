package transfer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
)

// SignatureHeader is the HTTP header carrying the provider's HMAC signature.
const SignatureHeader = signatureHeader

// WebhookEvent is the payload the provider posts when a transfer settles.
type WebhookEvent struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body against the
// shared webhook secret. Comparison is constant time.
func VerifySignature(secret string, body []byte, signature string) error {
	if strings.TrimSpace(secret) == "" {
		return pkgerrors.New(pkgerrors.CodeDependency, "webhook secret not configured")
	}
	trimmed := strings.TrimSpace(signature)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook signature")
	}

	provided, err := hex.DecodeString(trimmed)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed webhook signature")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

// ParseWebhook verifies the signature and decodes the event payload.
func ParseWebhook(secret string, body []byte, signature string) (*WebhookEvent, error) {
	if err := VerifySignature(secret, body, signature); err != nil {
		return nil, err
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	if strings.TrimSpace(event.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing reference")
	}
	if !enums.TransferStatus(event.Status).IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload has unknown status")
	}
	return &event, nil
}

// Sign computes the hex HMAC-SHA256 signature for a payload. Used by tests and
// local tooling that simulates provider callbacks.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
