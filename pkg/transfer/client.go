package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adeyemio/tradefair-backend/pkg/config"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/sethvargo/go-retry"
)

const (
	responseBodyReadLimit int64 = 2048
	signatureHeader             = "X-Transfer-Signature"
)

var (
	errAPIKeyRequired  = errors.New("transfer api key is required")
	errBaseURLRequired = errors.New("transfer base url is required")

	// ErrAmbiguous marks an initiate call whose outcome is unknown: the
	// request may or may not have reached the provider. Callers must keep
	// the batch in flight and resolve it by polling, never by retrying the
	// money movement.
	ErrAmbiguous = errors.New("transfer outcome ambiguous")
)

// Client talks to the bank transfer provider's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the transfer client from configuration.
func NewClient(cfg config.TransferConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errBaseURLRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxRetries: maxRetries,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// InitiateRequest describes a single outbound bank transfer. Reference is the
// caller's idempotency key; the provider deduplicates on it, so re-sending the
// same reference never moves money twice.
type InitiateRequest struct {
	Reference     string `json:"reference"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Narrative     string `json:"narrative,omitempty"`
}

// Transfer is the provider's view of a dispatched transfer.
type Transfer struct {
	Reference string
	Status    enums.TransferStatus
	Reason    string
}

type transferResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// Initiate submits the transfer. The provider deduplicates on Reference,
// so an ambiguous attempt is re-sent with backoff without risking a
// double payment. When every attempt stays ambiguous the call returns
// ErrAmbiguous because the provider may have accepted one of them.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*Transfer, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transfer client not configured")
	}
	if err := validateInitiate(req); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal transfer request")
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(500*time.Millisecond))

	var result *Transfer
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		transfer, err := c.initiateOnce(ctx, payload)
		if err != nil {
			if errors.Is(err, ErrAmbiguous) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) initiateOnce(ctx context.Context, payload []byte) (*Transfer, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build transfer request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAmbiguous, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, fmt.Errorf("%w: status %d: %s", ErrAmbiguous, resp.StatusCode, strings.TrimSpace(string(msg)))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "transfer rejected")
	}

	return decodeTransfer(resp.Body)
}

// Get fetches the current status for a transfer reference. Lookups are safe to
// retry, so transient failures are retried with exponential backoff.
func (c *Client) Get(ctx context.Context, reference string) (*Transfer, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transfer client not configured")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer reference is required")
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(500*time.Millisecond))

	var result *Transfer
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		transfer, err := c.getOnce(ctx, trimmed)
		if err != nil {
			return err
		}
		result = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) getOnce(ctx context.Context, reference string) (*Transfer, error) {
	endpoint := fmt.Sprintf("%s/v1/transfers/%s", c.baseURL, url.PathEscape(reference))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build transfer lookup request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("execute transfer lookup: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("transfer %s not found", reference))
	case resp.StatusCode >= http.StatusInternalServerError:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, retry.RetryableError(fmt.Errorf("transfer lookup status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "transfer lookup failed")
	}

	return decodeTransfer(resp.Body)
}

func decodeTransfer(body io.Reader) (*Transfer, error) {
	var apiResp transferResponse
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transfer response")
	}

	status := enums.TransferStatus(apiResp.Status)
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("unknown transfer status %q", apiResp.Status))
	}

	return &Transfer{
		Reference: apiResp.Reference,
		Status:    status,
		Reason:    apiResp.Reason,
	}, nil
}

func validateInitiate(req InitiateRequest) error {
	switch {
	case strings.TrimSpace(req.Reference) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer reference is required")
	case req.AmountMinor <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	case !enums.Currency(req.Currency).IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transfer currency %q", req.Currency))
	case strings.TrimSpace(req.BankCode) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "bank code is required")
	case strings.TrimSpace(req.AccountNumber) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "account number is required")
	case strings.TrimSpace(req.AccountName) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "account name is required")
	}
	return nil
}
