package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
)

type fakeRepository struct {
	Repository

	vendor          *models.Vendor
	created         []*models.LedgerEntry
	eligible        []models.LedgerEntry
	summaryRow      *models.WalletSummary
	inFlight        int64
	unpromotedHolds int64
	adjustments     []summaryAdjustment
}

type summaryAdjustment struct {
	eligibleDelta int64
	onHoldDelta   int64
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	f.created = append(f.created, entry)
	return nil
}

func (f *fakeRepository) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	if f.vendor == nil || f.vendor.ID != vendorID {
		return nil, gorm.ErrRecordNotFound
	}
	return f.vendor, nil
}

func (f *fakeRepository) ListUnconsumedEligible(ctx context.Context, vendorID uuid.UUID) ([]models.LedgerEntry, error) {
	return f.eligible, nil
}

func (f *fakeRepository) GetSummary(ctx context.Context, vendorID uuid.UUID) (*models.WalletSummary, error) {
	if f.summaryRow == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.summaryRow, nil
}

func (f *fakeRepository) SumInFlight(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	return f.inFlight, nil
}

func (f *fakeRepository) SumUnpromotedHolds(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	return f.unpromotedHolds, nil
}

func (f *fakeRepository) AdjustSummary(ctx context.Context, vendorID uuid.UUID, eligibleDelta, onHoldDelta int64, lastPayoutAt *time.Time) error {
	f.adjustments = append(f.adjustments, summaryAdjustment{eligibleDelta: eligibleDelta, onHoldDelta: onHoldDelta})
	return nil
}

type fakeCycles struct {
	payoutAt time.Time
	cutoffAt time.Time
	cycleKey string
}

func (f *fakeCycles) NextPayout(ctx context.Context, vendorID uuid.UUID, now time.Time) (time.Time, time.Time, string, error) {
	return f.payoutAt, f.cutoffAt, f.cycleKey, nil
}

func testVendor() *models.Vendor {
	return &models.Vendor{
		ID:       uuid.New(),
		Name:     "Lagos Merch Co",
		Currency: enums.CurrencyNGN,
		Timezone: "Africa/Lagos",
	}
}

func testCycles() *fakeCycles {
	return &fakeCycles{
		payoutAt: time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC),
		cutoffAt: time.Date(2026, 9, 2, 18, 0, 0, 0, time.UTC),
		cycleKey: "2026-09-04",
	}
}

func TestServiceAppendStampsVendorCurrency(t *testing.T) {
	vendor := testVendor()
	repo := &fakeRepository{vendor: vendor}
	svc, err := NewService(repo, testCycles())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	entry, err := svc.Append(context.Background(), AppendEntryInput{
		VendorID:        vendor.ID,
		Source:          enums.LedgerSourceEvent,
		OrderRef:        "ord-1",
		AmountMinor:     150000,
		Type:            enums.LedgerEntryTypeDebitHold,
		TargetPayoutAt:  time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC),
		TargetPayoutKey: "2026-09-08",
		CreatedBy:       "system",
	})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if entry.Currency != enums.CurrencyNGN {
		t.Fatalf("expected vendor currency stamped, got %s", entry.Currency)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one created entry, got %d", len(repo.created))
	}
	if len(repo.adjustments) != 1 || repo.adjustments[0].onHoldDelta != 150000 || repo.adjustments[0].eligibleDelta != 0 {
		t.Fatalf("expected on-hold projection bump, got %+v", repo.adjustments)
	}
}

func TestServiceAppendValidation(t *testing.T) {
	vendor := testVendor()
	repo := &fakeRepository{vendor: vendor}
	svc, err := NewService(repo, testCycles())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	valid := AppendEntryInput{
		VendorID:        vendor.ID,
		Source:          enums.LedgerSourceEvent,
		OrderRef:        "ord-1",
		AmountMinor:     1000,
		Type:            enums.LedgerEntryTypeCreditEligible,
		TargetPayoutAt:  time.Now(),
		TargetPayoutKey: "2026-09-04",
		CreatedBy:       "system",
	}

	tests := []struct {
		name   string
		mutate func(*AppendEntryInput)
	}{
		{name: "missing vendor", mutate: func(in *AppendEntryInput) { in.VendorID = uuid.Nil }},
		{name: "zero amount", mutate: func(in *AppendEntryInput) { in.AmountMinor = 0 }},
		{name: "negative amount", mutate: func(in *AppendEntryInput) { in.AmountMinor = -50 }},
		{name: "bad type", mutate: func(in *AppendEntryInput) { in.Type = "chargeback" }},
		{name: "bad source", mutate: func(in *AppendEntryInput) { in.Source = "affiliate" }},
		{name: "missing creator", mutate: func(in *AppendEntryInput) { in.CreatedBy = "" }},
		{name: "currency mismatch", mutate: func(in *AppendEntryInput) { in.Currency = enums.CurrencyUSD }},
		{name: "unknown vendor", mutate: func(in *AppendEntryInput) { in.VendorID = uuid.New() }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			if _, err := svc.Append(context.Background(), input); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}

	if len(repo.created) != 0 {
		t.Fatalf("no entries should be written on validation failure, got %d", len(repo.created))
	}
}

func TestServiceUpcomingPayoutSplitsCycles(t *testing.T) {
	vendor := testVendor()
	repo := &fakeRepository{
		vendor: vendor,
		eligible: []models.LedgerEntry{
			{ID: uuid.New(), Source: enums.LedgerSourceEvent, AmountMinor: 60000, TargetPayoutKey: "2026-09-04"},
			{ID: uuid.New(), Source: enums.LedgerSourceStore, AmountMinor: 40000, TargetPayoutKey: "2026-09-04"},
			{ID: uuid.New(), Source: enums.LedgerSourceEvent, AmountMinor: 50000, TargetPayoutKey: "2026-09-11"},
		},
	}
	svc, err := NewService(repo, testCycles())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	got, err := svc.UpcomingPayout(context.Background(), vendor.ID, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("UpcomingPayout error: %v", err)
	}

	if got.TotalAmountMinor != 100000 {
		t.Fatalf("total = %d, want 100000", got.TotalAmountMinor)
	}
	if got.FutureAmountMinor != 50000 {
		t.Fatalf("future = %d, want 50000", got.FutureAmountMinor)
	}
	if got.WalletBalanceMinor != 150000 {
		t.Fatalf("wallet balance = %d, want 150000", got.WalletBalanceMinor)
	}
	if got.EligibleCount != 2 {
		t.Fatalf("eligible count = %d, want 2", got.EligibleCount)
	}
	if len(got.Transactions) != 2 || len(got.FutureTransactions) != 1 {
		t.Fatalf("transaction split wrong: %d next, %d future", len(got.Transactions), len(got.FutureTransactions))
	}
	if len(got.Breakdown) != 2 {
		t.Fatalf("breakdown lines = %d, want 2", len(got.Breakdown))
	}
	if got.Breakdown[0].Source != enums.LedgerSourceEvent || got.Breakdown[0].AmountMinor != 60000 {
		t.Fatalf("unexpected event breakdown %+v", got.Breakdown[0])
	}
	if got.Breakdown[1].Source != enums.LedgerSourceStore || got.Breakdown[1].AmountMinor != 40000 {
		t.Fatalf("unexpected store breakdown %+v", got.Breakdown[1])
	}
}

func TestServiceCheckConsistencyFlagsDrift(t *testing.T) {
	vendor := testVendor()
	repo := &fakeRepository{
		vendor: vendor,
		eligible: []models.LedgerEntry{
			{ID: uuid.New(), AmountMinor: 100000, TargetPayoutKey: "2026-09-04"},
			{ID: uuid.New(), AmountMinor: 50000, TargetPayoutKey: "2026-09-11"},
		},
		// Projection says 140,000 while the ledger replays to 150,000.
		summaryRow: &models.WalletSummary{
			VendorID:             vendor.ID,
			EligibleBalanceMinor: 140000,
		},
	}
	svc, err := NewService(repo, testCycles())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	report, err := svc.CheckConsistency(context.Background(), vendor.ID, time.Now())
	if err != nil {
		t.Fatalf("CheckConsistency error: %v", err)
	}
	if report.Consistent {
		t.Fatal("expected inconsistency to be flagged")
	}
	if report.EligibleDeltaMinor != -10000 {
		t.Fatalf("delta = %d, want -10000", report.EligibleDeltaMinor)
	}
	if report.NextCycleMinor != 100000 || report.FutureMinor != 50000 {
		t.Fatalf("cycle split wrong: %+v", report)
	}
	if len(repo.adjustments) != 0 {
		t.Fatal("consistency check must never write")
	}
}

func TestServiceCheckConsistencyCleanLedger(t *testing.T) {
	vendor := testVendor()
	repo := &fakeRepository{
		vendor: vendor,
		eligible: []models.LedgerEntry{
			{ID: uuid.New(), AmountMinor: 100000, TargetPayoutKey: "2026-09-04"},
		},
		summaryRow: &models.WalletSummary{
			VendorID:             vendor.ID,
			EligibleBalanceMinor: 100000,
			OnHoldMinor:          25000,
		},
		unpromotedHolds: 25000,
	}
	svc, err := NewService(repo, testCycles())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	report, err := svc.CheckConsistency(context.Background(), vendor.ID, time.Now())
	if err != nil {
		t.Fatalf("CheckConsistency error: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected clean report, got %+v", report)
	}
}

func TestServiceSummaryIncludesInFlight(t *testing.T) {
	vendor := testVendor()
	lastPaid := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{
		vendor: vendor,
		summaryRow: &models.WalletSummary{
			VendorID:             vendor.ID,
			EligibleBalanceMinor: 75000,
			OnHoldMinor:          30000,
			LastPayoutAt:         &lastPaid,
		},
		inFlight: 20000,
	}
	svc, err := NewService(repo, testCycles())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	summary, err := svc.Summary(context.Background(), vendor.ID, time.Now())
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	if summary.EligibleBalanceMinor != 75000 || summary.OnHoldMinor != 30000 || summary.InFlightMinor != 20000 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.NextPayoutAt == nil || summary.LastPayoutAt == nil {
		t.Fatal("expected payout timestamps populated")
	}
	if summary.Currency != "NGN" {
		t.Fatalf("unexpected currency %s", summary.Currency)
	}
	if _, err := svc.Summary(context.Background(), uuid.New(), time.Now()); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown vendor, got %v", err)
	}
}
