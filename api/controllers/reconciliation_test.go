package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/adeyemio/tradefair-backend/api/middleware"
	"github.com/adeyemio/tradefair-backend/internal/reconciliation"
	"github.com/adeyemio/tradefair-backend/pkg/db/models"
)

type testReconciliationService struct {
	previewFn  func(ctx context.Context, vendorID uuid.UUID, amountMinor int64) (*reconciliation.Plan, error)
	commitFn   func(ctx context.Context, input reconciliation.CommitInput) (*models.PayoutBatch, error)
	backfillFn func(ctx context.Context, input reconciliation.BackfillInput) (*models.PayoutBatch, error)
}

func (s *testReconciliationService) PreviewManualPayout(ctx context.Context, vendorID uuid.UUID, amountMinor int64) (*reconciliation.Plan, error) {
	if s.previewFn != nil {
		return s.previewFn(ctx, vendorID, amountMinor)
	}
	return nil, nil
}

func (s *testReconciliationService) CommitManualPayout(ctx context.Context, input reconciliation.CommitInput) (*models.PayoutBatch, error) {
	if s.commitFn != nil {
		return s.commitFn(ctx, input)
	}
	return nil, nil
}

func (s *testReconciliationService) BackfillBatch(ctx context.Context, input reconciliation.BackfillInput) (*models.PayoutBatch, error) {
	if s.backfillFn != nil {
		return s.backfillFn(ctx, input)
	}
	return nil, nil
}

func TestPreviewReconciliationPassesAmount(t *testing.T) {
	vendorID := uuid.New()
	svc := &testReconciliationService{
		previewFn: func(_ context.Context, vid uuid.UUID, amount int64) (*reconciliation.Plan, error) {
			if vid != vendorID || amount != 150000 {
				t.Fatalf("unexpected plan request: %s %d", vid, amount)
			}
			return &reconciliation.Plan{VendorID: vendorID, RequestedMinor: amount}, nil
		},
	}

	body, _ := json.Marshal(map[string]any{"vendorId": vendorID, "amountMinor": 150000})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconciliation/preview", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	PreviewReconciliation(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCommitReconciliationStampsOperator(t *testing.T) {
	vendorID := uuid.New()
	operator := uuid.New().String()
	var captured reconciliation.CommitInput
	svc := &testReconciliationService{
		commitFn: func(_ context.Context, input reconciliation.CommitInput) (*models.PayoutBatch, error) {
			captured = input
			return &models.PayoutBatch{ID: uuid.New(), VendorID: vendorID}, nil
		},
	}

	body, _ := json.Marshal(map[string]any{
		"vendorId":       vendorID,
		"amountMinor":    90000,
		"idempotencyKey": "manual-run-7",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconciliation/commit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithUserID(req.Context(), operator))

	resp := httptest.NewRecorder()
	CommitReconciliation(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Operator != operator {
		t.Fatalf("operator not stamped: %q", captured.Operator)
	}
	if captured.IdempotencyKey != "manual-run-7" || captured.AmountMinor != 90000 {
		t.Fatalf("unexpected commit input %+v", captured)
	}
}

func TestCommitReconciliationRequiresOperator(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"vendorId":       uuid.New(),
		"amountMinor":    90000,
		"idempotencyKey": "manual-run-8",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconciliation/commit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	CommitReconciliation(&testReconciliationService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestBackfillBatchDecodesEntryIDs(t *testing.T) {
	vendorID := uuid.New()
	batchID := uuid.New()
	entryID := uuid.New()
	var captured reconciliation.BackfillInput
	svc := &testReconciliationService{
		backfillFn: func(_ context.Context, input reconciliation.BackfillInput) (*models.PayoutBatch, error) {
			captured = input
			return &models.PayoutBatch{ID: batchID, VendorID: vendorID}, nil
		},
	}

	body, _ := json.Marshal(map[string]any{
		"batchId":          batchID,
		"vendorId":         vendorID,
		"targetPayoutKey":  "2026-08-28",
		"grossAmountMinor": 200000,
		"feeMinor":         5000,
		"entryIds":         []string{entryID.String()},
		"completedAt":      "2026-08-28T09:00:00Z",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconciliation/backfill", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithUserID(req.Context(), "ops@tradefair"))

	resp := httptest.NewRecorder()
	BackfillBatch(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if len(captured.EntryIDs) != 1 || captured.EntryIDs[0] != entryID {
		t.Fatalf("entry ids not decoded: %+v", captured.EntryIDs)
	}
	if captured.Operator != "ops@tradefair" {
		t.Fatalf("operator not stamped: %q", captured.Operator)
	}
}
