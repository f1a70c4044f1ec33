package payouts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/internal/vendorlease"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
	"github.com/adeyemio/tradefair-backend/pkg/transfer"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeBatchRepo struct {
	batches map[uuid.UUID]*models.PayoutBatch
	locks   map[uuid.UUID][]models.PayoutBatchEntry
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{
		batches: map[uuid.UUID]*models.PayoutBatch{},
		locks:   map[uuid.UUID][]models.PayoutBatchEntry{},
	}
}

func (f *fakeBatchRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeBatchRepo) CreateBatch(ctx context.Context, batch *models.PayoutBatch, entries []*models.PayoutBatchEntry) error {
	stored := *batch
	f.batches[batch.ID] = &stored
	for _, entry := range entries {
		entry.BatchID = batch.ID
		f.locks[batch.ID] = append(f.locks[batch.ID], *entry)
	}
	return nil
}

func (f *fakeBatchRepo) FindBatch(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error) {
	batch, ok := f.batches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *batch
	return &copied, nil
}

func (f *fakeBatchRepo) FindActiveForCycle(ctx context.Context, vendorID uuid.UUID, targetPayoutKey string) (*models.PayoutBatch, error) {
	for _, batch := range f.batches {
		if batch.VendorID == vendorID && batch.TargetPayoutKey == targetPayoutKey && batch.Status != enums.PayoutBatchStatusFailed {
			copied := *batch
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBatchRepo) FindByTransferRef(ctx context.Context, transferRef string) (*models.PayoutBatch, error) {
	for _, batch := range f.batches {
		if batch.TransferRef != nil && *batch.TransferRef == transferRef {
			copied := *batch
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBatchRepo) ListProcessing(ctx context.Context) ([]models.PayoutBatch, error) {
	var out []models.PayoutBatch
	for _, batch := range f.batches {
		if batch.Status == enums.PayoutBatchStatusProcessing {
			out = append(out, *batch)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.PayoutBatch, error) {
	var out []models.PayoutBatch
	for _, batch := range f.batches {
		if batch.VendorID == vendorID {
			out = append(out, *batch)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) ListBatchEntries(ctx context.Context, batchID uuid.UUID) ([]models.PayoutBatchEntry, error) {
	return f.locks[batchID], nil
}

func (f *fakeBatchRepo) SetTransferRef(ctx context.Context, batchID uuid.UUID, transferRef string) error {
	f.batches[batchID].TransferRef = &transferRef
	return nil
}

func (f *fakeBatchRepo) MarkCompleted(ctx context.Context, batchID uuid.UUID, completedAt time.Time) error {
	batch, ok := f.batches[batchID]
	if !ok || batch.Status != enums.PayoutBatchStatusProcessing {
		return nil
	}
	batch.Status = enums.PayoutBatchStatusCompleted
	batch.CompletedAt = &completedAt
	return nil
}

func (f *fakeBatchRepo) MarkFailed(ctx context.Context, batchID uuid.UUID, reason string) error {
	batch, ok := f.batches[batchID]
	if !ok || batch.Status != enums.PayoutBatchStatusProcessing {
		return nil
	}
	batch.Status = enums.PayoutBatchStatusFailed
	batch.FailureReason = &reason
	return nil
}

func (f *fakeBatchRepo) DeleteBatchEntries(ctx context.Context, batchID uuid.UUID) error {
	delete(f.locks, batchID)
	return nil
}

type summaryAdjustment struct {
	eligibleDelta int64
	onHoldDelta   int64
	lastPayoutAt  *time.Time
}

type fakeWalletRepo struct {
	wallet.Repository

	vendor      *models.Vendor
	eligible    []models.LedgerEntry
	created     []*models.LedgerEntry
	adjustments []summaryAdjustment
}

func (f *fakeWalletRepo) WithTx(tx *gorm.DB) wallet.Repository { return f }

func (f *fakeWalletRepo) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	if f.vendor == nil || f.vendor.ID != vendorID {
		return nil, gorm.ErrRecordNotFound
	}
	return f.vendor, nil
}

func (f *fakeWalletRepo) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	if f.vendor == nil {
		return nil, nil
	}
	return []models.Vendor{*f.vendor}, nil
}

func (f *fakeWalletRepo) ListEligibleForCycle(ctx context.Context, vendorID uuid.UUID, cycleKey string) ([]models.LedgerEntry, error) {
	return f.eligible, nil
}

func (f *fakeWalletRepo) FindEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	for i := range f.eligible {
		if f.eligible[i].ID == id {
			copied := f.eligible[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeWalletRepo) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	f.created = append(f.created, entry)
	return nil
}

func (f *fakeWalletRepo) AdjustSummary(ctx context.Context, vendorID uuid.UUID, eligibleDelta, onHoldDelta int64, lastPayoutAt *time.Time) error {
	f.adjustments = append(f.adjustments, summaryAdjustment{
		eligibleDelta: eligibleDelta,
		onHoldDelta:   onHoldDelta,
		lastPayoutAt:  lastPayoutAt,
	})
	return nil
}

type fakeBanks struct {
	account *models.BankAccount
}

func (f *fakeBanks) FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error) {
	if f.account == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.account, nil
}

type fakeSchedules struct {
	tier     enums.PayoutTier
	cycleKey string
}

func (f *fakeSchedules) For(ctx context.Context, vendorID uuid.UUID) (*models.PayoutSchedule, error) {
	return &models.PayoutSchedule{VendorID: vendorID, Tier: f.tier}, nil
}

func (f *fakeSchedules) DueCycle(ctx context.Context, vendorID uuid.UUID, now time.Time) (string, error) {
	return f.cycleKey, nil
}

type fakeTransferClient struct {
	initiateResult *transfer.Transfer
	initiateErr    error
	getResult      *transfer.Transfer
	getErr         error
	initiated      []transfer.InitiateRequest
}

func (f *fakeTransferClient) Initiate(ctx context.Context, req transfer.InitiateRequest) (*transfer.Transfer, error) {
	f.initiated = append(f.initiated, req)
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return f.initiateResult, nil
}

func (f *fakeTransferClient) Get(ctx context.Context, reference string) (*transfer.Transfer, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getResult, nil
}

type fakeLeases struct {
	busy      map[uuid.UUID]bool
	onAcquire func()
}

func (f *fakeLeases) Acquire(ctx context.Context, vendorID uuid.UUID) (*vendorlease.Lease, error) {
	if f.busy[vendorID] {
		return nil, vendorlease.ErrHeld
	}
	if f.onAcquire != nil {
		f.onAcquire()
	}
	return &vendorlease.Lease{}, nil
}

type payoutFixture struct {
	svc       Service
	vendor    *models.Vendor
	batches   *fakeBatchRepo
	wallets   *fakeWalletRepo
	transfers *fakeTransferClient
	leases    *fakeLeases
}

func eligibleEntry(vendorID uuid.UUID, amount int64) models.LedgerEntry {
	return models.LedgerEntry{
		ID:              uuid.New(),
		VendorID:        vendorID,
		Currency:        enums.CurrencyNGN,
		Source:          enums.LedgerSourceEvent,
		OrderRef:        "ord-" + uuid.NewString()[:8],
		AmountMinor:     amount,
		Type:            enums.LedgerEntryTypeCreditEligible,
		TargetPayoutAt:  time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC),
		TargetPayoutKey: "2026-09-04",
		CreatedBy:       "system",
	}
}

func newPayoutFixture(t *testing.T, tier enums.PayoutTier, amounts ...int64) *payoutFixture {
	t.Helper()

	vendor := &models.Vendor{
		ID:       uuid.New(),
		Name:     "Lagos Merch Co",
		Currency: enums.CurrencyNGN,
		Timezone: "Africa/Lagos",
	}
	eligible := make([]models.LedgerEntry, 0, len(amounts))
	for _, amount := range amounts {
		eligible = append(eligible, eligibleEntry(vendor.ID, amount))
	}

	fixture := &payoutFixture{
		vendor:  vendor,
		batches: newFakeBatchRepo(),
		wallets: &fakeWalletRepo{vendor: vendor, eligible: eligible},
		transfers: &fakeTransferClient{
			initiateResult: &transfer.Transfer{Status: enums.TransferStatusSuccess},
		},
		leases: &fakeLeases{},
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	banks := &fakeBanks{account: &models.BankAccount{
		VendorID:      vendor.ID,
		BankName:      "First Bank",
		BankCode:      "011",
		AccountNumber: "0123456789",
		AccountName:   "Lagos Merch Co",
		IsVerified:    true,
	}}
	schedules := &fakeSchedules{tier: tier, cycleKey: "2026-09-04"}

	svc, err := NewService(logg, fakeTxRunner{}, fixture.batches, fixture.wallets, banks, schedules, fixture.transfers, fixture.leases, nil)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	fixture.svc = svc
	return fixture
}

func TestRunCycleDispatchesNetAmount(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierThreeDay, 600000, 400000)
	now := time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC)

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if batch.Status != enums.PayoutBatchStatusCompleted {
		t.Fatalf("expected completed batch, got %s", batch.Status)
	}
	if batch.GrossAmountMinor != 1000000 {
		t.Fatalf("expected gross 1000000, got %d", batch.GrossAmountMinor)
	}
	// 2.5% of 1,000,000 kobo
	if batch.FeeMinor != 25000 {
		t.Fatalf("expected fee 25000, got %d", batch.FeeMinor)
	}
	if batch.TotalAmountMinor != 975000 {
		t.Fatalf("expected net 975000, got %d", batch.TotalAmountMinor)
	}

	if len(fx.transfers.initiated) != 1 {
		t.Fatalf("expected one transfer, got %d", len(fx.transfers.initiated))
	}
	req := fx.transfers.initiated[0]
	if req.AmountMinor != 975000 {
		t.Fatalf("transfer must carry the net amount, got %d", req.AmountMinor)
	}
	if req.Reference != batch.ID.String() {
		t.Fatalf("transfer reference must be the batch id")
	}

	if len(fx.wallets.created) != 1 {
		t.Fatalf("expected one debit_payout entry, got %d", len(fx.wallets.created))
	}
	payout := fx.wallets.created[0]
	if payout.Type != enums.LedgerEntryTypeDebitPayout {
		t.Fatalf("expected debit_payout, got %s", payout.Type)
	}
	if payout.PayoutBatchID == nil || *payout.PayoutBatchID != batch.ID {
		t.Fatalf("payout entry must reference its batch")
	}
	if payout.AmountMinor != 1000000 {
		t.Fatalf("payout entry carries the gross amount, got %d", payout.AmountMinor)
	}
	if payout.Source != enums.LedgerSourceEvent {
		t.Fatalf("payout entry must carry the consumed entries' stream, got %s", payout.Source)
	}

	if len(fx.wallets.adjustments) != 2 {
		t.Fatalf("expected two summary adjustments, got %d", len(fx.wallets.adjustments))
	}
	if fx.wallets.adjustments[0].eligibleDelta != -1000000 {
		t.Fatalf("batch creation must move the eligible balance down by gross")
	}
	last := fx.wallets.adjustments[1]
	if last.eligibleDelta != 0 || last.lastPayoutAt == nil {
		t.Fatalf("completion only stamps the last payout time")
	}
}

func TestRunCycleIsIdempotentPerCycle(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	now := time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC)

	first, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("first RunCycle error: %v", err)
	}
	second, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("second RunCycle error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second run must return the existing batch")
	}
	if len(fx.transfers.initiated) != 1 {
		t.Fatalf("money must not move twice, got %d transfers", len(fx.transfers.initiated))
	}
}

func TestRunCycleRequiresVerifiedBank(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	now := time.Now()

	banks := &fakeBanks{account: &models.BankAccount{VendorID: fx.vendor.ID, IsVerified: false}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	schedules := &fakeSchedules{tier: enums.PayoutTierWeekly, cycleKey: "2026-09-04"}
	svc, err := NewService(logg, fakeTxRunner{}, fx.batches, fx.wallets, banks, schedules, fx.transfers, fx.leases, nil)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	_, err = svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if pkgErr := pkgerrors.As(err); pkgErr == nil || pkgErr.Code() != pkgerrors.CodeBankUnverified {
		t.Fatalf("expected bank unverified error, got %v", err)
	}
	if len(fx.transfers.initiated) != 0 || len(fx.batches.batches) != 0 {
		t.Fatalf("nothing must be written for an unverified bank")
	}
}

func TestRunCycleAmbiguousOutcomeLeavesBatchInFlight(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.transfers.initiateErr = fmt.Errorf("%w: connection reset", transfer.ErrAmbiguous)
	now := time.Now()

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if batch.Status != enums.PayoutBatchStatusProcessing {
		t.Fatalf("ambiguous outcome must leave the batch processing, got %s", batch.Status)
	}
	if len(fx.wallets.created) != 0 {
		t.Fatalf("no payout entry until the outcome is known")
	}
	// the eligible balance stays moved down: the money may be gone
	if len(fx.wallets.adjustments) != 1 || fx.wallets.adjustments[0].eligibleDelta != -500000 {
		t.Fatalf("eligible balance must stay reserved while in flight")
	}
}

func TestRunCycleRejectionFailsBatchAndRestoresBalance(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.transfers.initiateErr = pkgerrors.New(pkgerrors.CodeDependency, "transfer rejected")
	now := time.Now()

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if batch.Status != enums.PayoutBatchStatusFailed {
		t.Fatalf("expected failed batch, got %s", batch.Status)
	}
	if len(fx.batches.locks[batch.ID]) != 0 {
		t.Fatalf("failed batch must release its entry locks")
	}
	if len(fx.wallets.adjustments) != 2 || fx.wallets.adjustments[1].eligibleDelta != 500000 {
		t.Fatalf("failed batch must restore the eligible balance")
	}
}

func TestRunCycleNoEligibleEntriesIsNoop(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly)

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", time.Now())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if batch != nil {
		t.Fatalf("expected no batch for an empty cycle")
	}
	if len(fx.transfers.initiated) != 0 {
		t.Fatalf("no transfer for an empty cycle")
	}
}

func TestResolveInFlightSettlesFromProvider(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.transfers.initiateErr = fmt.Errorf("%w: timeout", transfer.ErrAmbiguous)
	now := time.Now()

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	fx.transfers.getResult = &transfer.Transfer{
		Reference: *batch.TransferRef,
		Status:    enums.TransferStatusSuccess,
	}
	summary, err := fx.svc.ResolveInFlight(context.Background(), now)
	if err != nil {
		t.Fatalf("ResolveInFlight error: %v", err)
	}
	if summary.Completed != 1 {
		t.Fatalf("expected 1 completed, got %+v", summary)
	}
	settled, err := fx.batches.FindBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("FindBatch error: %v", err)
	}
	if settled.Status != enums.PayoutBatchStatusCompleted {
		t.Fatalf("expected completed after resolution, got %s", settled.Status)
	}
	if len(fx.wallets.created) != 1 {
		t.Fatalf("resolution must append the payout entry")
	}
}

func TestResolveInFlightFailsUnknownReference(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.transfers.initiateErr = fmt.Errorf("%w: timeout", transfer.ErrAmbiguous)
	now := time.Now()

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	fx.transfers.getErr = pkgerrors.New(pkgerrors.CodeNotFound, "transfer not found")
	summary, err := fx.svc.ResolveInFlight(context.Background(), now)
	if err != nil {
		t.Fatalf("ResolveInFlight error: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", summary)
	}
	settled, err := fx.batches.FindBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("FindBatch error: %v", err)
	}
	if settled.Status != enums.PayoutBatchStatusFailed {
		t.Fatalf("unknown reference means the transfer never existed, got %s", settled.Status)
	}
	if fx.wallets.adjustments[len(fx.wallets.adjustments)-1].eligibleDelta != 500000 {
		t.Fatalf("failed resolution must restore the eligible balance")
	}
}

func TestResolveInFlightKeepsPendingBatches(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.transfers.initiateErr = fmt.Errorf("%w: timeout", transfer.ErrAmbiguous)
	now := time.Now()

	if _, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	fx.transfers.getErr = errors.New("connection refused")
	summary, err := fx.svc.ResolveInFlight(context.Background(), now)
	if err != nil {
		t.Fatalf("ResolveInFlight error: %v", err)
	}
	if summary.Pending != 1 {
		t.Fatalf("unreachable provider must leave the batch in flight, got %+v", summary)
	}
}

func TestResolveFromWebhookIsIdempotent(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	now := time.Now()

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if batch.Status != enums.PayoutBatchStatusCompleted {
		t.Fatalf("expected completed batch, got %s", batch.Status)
	}

	entriesBefore := len(fx.wallets.created)
	if err := fx.svc.ResolveFromWebhook(context.Background(), *batch.TransferRef, enums.TransferStatusSuccess, ""); err != nil {
		t.Fatalf("ResolveFromWebhook error: %v", err)
	}
	if len(fx.wallets.created) != entriesBefore {
		t.Fatalf("replayed webhook must not append entries")
	}
}

func TestResolveFromWebhookFailsProcessingBatch(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.transfers.initiateErr = fmt.Errorf("%w: timeout", transfer.ErrAmbiguous)
	now := time.Now()

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if err := fx.svc.ResolveFromWebhook(context.Background(), *batch.TransferRef, enums.TransferStatusFailure, "account closed"); err != nil {
		t.Fatalf("ResolveFromWebhook error: %v", err)
	}
	settled, err := fx.batches.FindBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("FindBatch error: %v", err)
	}
	if settled.Status != enums.PayoutBatchStatusFailed {
		t.Fatalf("expected failed batch, got %s", settled.Status)
	}
	if settled.FailureReason == nil || *settled.FailureReason != "account closed" {
		t.Fatalf("failure reason must be recorded")
	}
}

func TestResolveFromWebhookSkipsBatchSettledBeforeLease(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.transfers.initiateErr = fmt.Errorf("%w: timeout", transfer.ErrAmbiguous)
	now := time.Now()

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	// Another resolver wins the race between the status read and the
	// lease. The webhook must notice on re-read and write nothing.
	fx.leases.onAcquire = func() {
		completedAt := now
		fx.batches.batches[batch.ID].Status = enums.PayoutBatchStatusCompleted
		fx.batches.batches[batch.ID].CompletedAt = &completedAt
	}
	if err := fx.svc.ResolveFromWebhook(context.Background(), *batch.TransferRef, enums.TransferStatusSuccess, ""); err != nil {
		t.Fatalf("ResolveFromWebhook error: %v", err)
	}
	if len(fx.wallets.created) != 0 {
		t.Fatalf("settled batch must not get a second payout entry")
	}
}

func TestResolveInFlightSkipsBatchSettledBeforeLease(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.transfers.initiateErr = fmt.Errorf("%w: timeout", transfer.ErrAmbiguous)
	now := time.Now()

	batch, err := fx.svc.RunCycle(context.Background(), fx.vendor.ID, "2026-09-04", now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	fx.transfers.getResult = &transfer.Transfer{
		Reference: *batch.TransferRef,
		Status:    enums.TransferStatusSuccess,
	}
	fx.leases.onAcquire = func() {
		completedAt := now
		fx.batches.batches[batch.ID].Status = enums.PayoutBatchStatusCompleted
		fx.batches.batches[batch.ID].CompletedAt = &completedAt
	}
	summary, err := fx.svc.ResolveInFlight(context.Background(), now)
	if err != nil {
		t.Fatalf("ResolveInFlight error: %v", err)
	}
	if summary.Completed != 0 {
		t.Fatalf("already-settled batch must not be resolved again, got %+v", summary)
	}
	if len(fx.wallets.created) != 0 {
		t.Fatalf("settled batch must not get a second payout entry")
	}
}

func TestRunDueSkipsHeldVendors(t *testing.T) {
	fx := newPayoutFixture(t, enums.PayoutTierWeekly, 500000)
	fx.leases.busy = map[uuid.UUID]bool{fx.vendor.ID: true}

	summary, err := fx.svc.RunDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("RunDue error: %v", err)
	}
	if summary.Held != 1 {
		t.Fatalf("expected 1 held vendor, got %+v", summary)
	}
	if len(fx.transfers.initiated) != 0 {
		t.Fatalf("held vendor must not be paid")
	}
}
