package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/adeyemio/tradefair-backend/pkg/config"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

func testConfig() config.TransferConfig {
	return config.TransferConfig{
		BaseURL:        "http://transfers.test",
		APIKey:         "test-key",
		WebhookSecret:  "hook-secret",
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
	}
}

func TestInitiateSendsAuthorizedRequest(t *testing.T) {
	const expectedURL = "http://transfers.test/v1/transfers"
	respBody := `{"reference":"batch-123","status":"pending"}`

	var capturedURL string
	var capturedHeaders http.Header

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()

		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		if payload["reference"] != "batch-123" {
			t.Fatalf("unexpected reference %q", payload["reference"])
		}
		if payload["amount_minor"] != float64(250000) {
			t.Fatalf("unexpected amount %v", payload["amount_minor"])
		}

		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	transfer, err := client.Initiate(context.Background(), InitiateRequest{
		Reference:     "batch-123",
		AmountMinor:   250000,
		Currency:      "NGN",
		BankCode:      "058",
		AccountNumber: "0123456789",
		AccountName:   "Lagos Merch Co",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeaders.Get("Authorization") != "Bearer test-key" {
		t.Fatalf("authorization header missing")
	}
	if transfer.Reference != "batch-123" || transfer.Status != enums.TransferStatusPending {
		t.Fatalf("unexpected transfer %+v", transfer)
	}
}

func TestInitiateTransportErrorIsAmbiguous(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Initiate(context.Background(), InitiateRequest{
		Reference:     "batch-456",
		AmountMinor:   100,
		Currency:      "NGN",
		BankCode:      "058",
		AccountNumber: "0123456789",
		AccountName:   "Lagos Merch Co",
	})
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestInitiateServerErrorIsAmbiguous(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       io.NopCloser(strings.NewReader("upstream down")),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Initiate(context.Background(), InitiateRequest{
		Reference:     "batch-789",
		AmountMinor:   100,
		Currency:      "NGN",
		BankCode:      "058",
		AccountNumber: "0123456789",
		AccountName:   "Lagos Merch Co",
	})
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestInitiateRetriesAmbiguousOutcome(t *testing.T) {
	attempts := 0
	var references []string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		attempts++
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		references = append(references, payload["reference"].(string))

		if attempts == 1 {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Body:       io.NopCloser(strings.NewReader("upstream down")),
				Header:     http.Header{},
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       io.NopCloser(strings.NewReader(`{"reference":"batch-321","status":"pending"}`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	transfer, err := client.Initiate(context.Background(), InitiateRequest{
		Reference:     "batch-321",
		AmountMinor:   100,
		Currency:      "NGN",
		BankCode:      "058",
		AccountNumber: "0123456789",
		AccountName:   "Lagos Merch Co",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	// every attempt must re-send the same idempotency reference
	for _, ref := range references {
		if ref != "batch-321" {
			t.Fatalf("retry changed the reference to %q", ref)
		}
	}
	if transfer.Status != enums.TransferStatusPending {
		t.Fatalf("unexpected status %s", transfer.Status)
	}
}

func TestInitiateRejectsInvalidRequest(t *testing.T) {
	client, err := NewClient(testConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Initiate(context.Background(), InitiateRequest{
		Reference:   "batch-000",
		AmountMinor: -5,
		Currency:    "NGN",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	attempts := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Body:       io.NopCloser(strings.NewReader("try later")),
				Header:     http.Header{},
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"reference":"batch-123","status":"success"}`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	transfer, err := client.Get(context.Background(), "batch-123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if transfer.Status != enums.TransferStatusSuccess {
		t.Fatalf("unexpected status %s", transfer.Status)
	}
}

func TestGetFailureStatusCarriesReason(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"reference":"batch-123","status":"failure","reason":"invalid account"}`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	transfer, err := client.Get(context.Background(), "batch-123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if transfer.Status != enums.TransferStatusFailure || transfer.Reason != "invalid account" {
		t.Fatalf("unexpected transfer %+v", transfer)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
