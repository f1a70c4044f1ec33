package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
)

type cycleSource interface {
	NextPayout(ctx context.Context, vendorID uuid.UUID, now time.Time) (payoutAt, cutoffAt time.Time, cycleKey string, err error)
}

// Service exposes the vendor wallet: append-only ledger writes, read
// views, and the consistency diagnostic.
type Service interface {
	Append(ctx context.Context, input AppendEntryInput) (*models.LedgerEntry, error)
	List(ctx context.Context, vendorID uuid.UUID, filters Filters) ([]models.LedgerEntry, error)
	EligibleForCycle(ctx context.Context, vendorID uuid.UUID, cycleKey string) ([]models.LedgerEntry, error)
	UnconsumedEligible(ctx context.Context, vendorID uuid.UUID) ([]models.LedgerEntry, error)
	Summary(ctx context.Context, vendorID uuid.UUID, now time.Time) (*Summary, error)
	UpcomingPayout(ctx context.Context, vendorID uuid.UUID, now time.Time) (*UpcomingPayout, error)
	CheckConsistency(ctx context.Context, vendorID uuid.UUID, now time.Time) (*ConsistencyReport, error)
	Repo() Repository
}

type service struct {
	repo   Repository
	cycles cycleSource
}

// AppendEntryInput carries the immutable data a ledger entry requires.
// Currency is optional; when set it must match the vendor's established
// currency, otherwise the vendor's currency is stamped.
type AppendEntryInput struct {
	VendorID        uuid.UUID
	Currency        enums.Currency
	Source          enums.LedgerSource
	OrderRef        string
	EventID         *uuid.UUID
	AmountMinor     int64
	Type            enums.LedgerEntryType
	Note            string
	TargetPayoutAt  time.Time
	TargetPayoutKey string
	PayoutBatchID   *uuid.UUID
	OriginEntryID   *uuid.UUID
	CreatedBy       string
}

// Summary is the derived wallet view returned to vendors.
type Summary struct {
	VendorID             uuid.UUID  `json:"vendor_id"`
	Currency             string     `json:"currency"`
	EligibleBalanceMinor int64      `json:"eligible_balance_minor"`
	OnHoldMinor          int64      `json:"on_hold_minor"`
	InFlightMinor        int64      `json:"in_flight_minor"`
	NextPayoutAt         *time.Time `json:"next_payout_at,omitempty"`
	LastPayoutAt         *time.Time `json:"last_payout_at,omitempty"`
	LastUpdatedAt        time.Time  `json:"last_updated_at"`
}

// BreakdownLine aggregates upcoming-payout amounts per revenue source.
type BreakdownLine struct {
	Source      enums.LedgerSource `json:"source"`
	AmountMinor int64              `json:"amount_minor"`
	Count       int                `json:"count"`
}

// UpcomingPayout is the vendor-facing preview of the next payout run.
type UpcomingPayout struct {
	TotalAmountMinor   int64                `json:"total_amount_minor"`
	FutureAmountMinor  int64                `json:"future_amount_minor"`
	WalletBalanceMinor int64                `json:"wallet_balance_minor"`
	EligibleCount      int                  `json:"eligible_count"`
	NextPayoutAt       time.Time            `json:"next_payout_at"`
	CycleKey           string               `json:"cycle_key"`
	Breakdown          []BreakdownLine      `json:"breakdown"`
	Transactions       []models.LedgerEntry `json:"transactions"`
	FutureTransactions []models.LedgerEntry `json:"future_transactions"`
}

// ConsistencyReport compares the replayed ledger against the maintained
// projection. A non-zero delta is reported, never auto-corrected, since
// silent repair could mask a real accounting bug.
type ConsistencyReport struct {
	VendorID            uuid.UUID `json:"vendor_id"`
	NextCycleMinor      int64     `json:"next_cycle_minor"`
	FutureMinor         int64     `json:"future_minor"`
	WalletBalanceMinor  int64     `json:"wallet_balance_minor"`
	EligibleDeltaMinor  int64     `json:"eligible_delta_minor"`
	ReplayedOnHoldMinor int64     `json:"replayed_on_hold_minor"`
	OnHoldMinor         int64     `json:"on_hold_minor"`
	OnHoldDeltaMinor    int64     `json:"on_hold_delta_minor"`
	Consistent          bool      `json:"consistent"`
}

// NewService wires a wallet service with its repository and the schedule
// source used to place entries into cycles.
func NewService(repo Repository, cycles cycleSource) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if cycles == nil {
		return nil, fmt.Errorf("cycle source required")
	}
	return &service{repo: repo, cycles: cycles}, nil
}

// Repo exposes the repository so money-mutating collaborators can bind it
// to their transaction.
func (s *service) Repo() Repository {
	return s.repo
}

func (s *service) Append(ctx context.Context, input AppendEntryInput) (*models.LedgerEntry, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if input.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid entry type %q", input.Type))
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger source %q", input.Source))
	}
	if input.CreatedBy == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "created_by required")
	}

	vendor, err := s.repo.FindVendor(ctx, input.VendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	if input.Currency != "" && input.Currency != vendor.Currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("currency %s does not match vendor currency %s", input.Currency, vendor.Currency))
	}

	entry := &models.LedgerEntry{
		VendorID:        input.VendorID,
		Currency:        vendor.Currency,
		Source:          input.Source,
		OrderRef:        input.OrderRef,
		EventID:         input.EventID,
		AmountMinor:     input.AmountMinor,
		Type:            input.Type,
		Note:            input.Note,
		TargetPayoutAt:  input.TargetPayoutAt,
		TargetPayoutKey: input.TargetPayoutKey,
		PayoutBatchID:   input.PayoutBatchID,
		OriginEntryID:   input.OriginEntryID,
		CreatedBy:       input.CreatedBy,
	}

	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}

	eligibleDelta, onHoldDelta := summaryDeltas(entry.Type, entry.AmountMinor)
	if eligibleDelta != 0 || onHoldDelta != 0 {
		if err := s.repo.AdjustSummary(ctx, input.VendorID, eligibleDelta, onHoldDelta, nil); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "maintain wallet summary")
		}
	}

	return entry, nil
}

// summaryDeltas maps an appended entry to its projection adjustment.
// debit_payout is deliberately zero: the payout pipeline moves the
// eligible balance when it locks entries into a batch, not when the
// settlement entry lands.
func summaryDeltas(entryType enums.LedgerEntryType, amountMinor int64) (eligible, onHold int64) {
	switch entryType {
	case enums.LedgerEntryTypeCreditEligible:
		return amountMinor, 0
	case enums.LedgerEntryTypeDebitHold:
		return 0, amountMinor
	case enums.LedgerEntryTypeHoldRelease, enums.LedgerEntryTypeDebitRefund:
		return 0, -amountMinor
	default:
		return 0, 0
	}
}

func (s *service) List(ctx context.Context, vendorID uuid.UUID, filters Filters) ([]models.LedgerEntry, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	entries, err := s.repo.List(ctx, vendorID, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return entries, nil
}

func (s *service) EligibleForCycle(ctx context.Context, vendorID uuid.UUID, cycleKey string) ([]models.LedgerEntry, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if cycleKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cycle key required")
	}
	entries, err := s.repo.ListEligibleForCycle(ctx, vendorID, cycleKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible entries")
	}
	return entries, nil
}

func (s *service) UnconsumedEligible(ctx context.Context, vendorID uuid.UUID) ([]models.LedgerEntry, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	entries, err := s.repo.ListUnconsumedEligible(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unconsumed eligible entries")
	}
	return entries, nil
}

func (s *service) Summary(ctx context.Context, vendorID uuid.UUID, now time.Time) (*Summary, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	vendor, err := s.repo.FindVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}

	out := &Summary{
		VendorID: vendorID,
		Currency: string(vendor.Currency),
	}

	row, err := s.repo.GetSummary(ctx, vendorID)
	switch {
	case err == nil:
		out.EligibleBalanceMinor = row.EligibleBalanceMinor
		out.OnHoldMinor = row.OnHoldMinor
		out.LastPayoutAt = row.LastPayoutAt
		out.LastUpdatedAt = row.LastUpdatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no activity yet: zero balances
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet summary")
	}

	inFlight, err := s.repo.SumInFlight(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum in-flight amount")
	}
	out.InFlightMinor = inFlight

	payoutAt, _, _, err := s.cycles.NextPayout(ctx, vendorID, now)
	if err != nil {
		return nil, err
	}
	out.NextPayoutAt = &payoutAt

	return out, nil
}

func (s *service) UpcomingPayout(ctx context.Context, vendorID uuid.UUID, now time.Time) (*UpcomingPayout, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	payoutAt, _, cycleKey, err := s.cycles.NextPayout(ctx, vendorID, now)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListUnconsumedEligible(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unconsumed eligible entries")
	}

	out := &UpcomingPayout{
		NextPayoutAt:       payoutAt,
		CycleKey:           cycleKey,
		Transactions:       []models.LedgerEntry{},
		FutureTransactions: []models.LedgerEntry{},
	}

	bySource := map[enums.LedgerSource]*BreakdownLine{}
	for _, entry := range entries {
		out.WalletBalanceMinor += entry.AmountMinor
		if entry.TargetPayoutKey <= cycleKey {
			out.TotalAmountMinor += entry.AmountMinor
			out.EligibleCount++
			out.Transactions = append(out.Transactions, entry)

			line, ok := bySource[entry.Source]
			if !ok {
				line = &BreakdownLine{Source: entry.Source}
				bySource[entry.Source] = line
			}
			line.AmountMinor += entry.AmountMinor
			line.Count++
		} else {
			out.FutureAmountMinor += entry.AmountMinor
			out.FutureTransactions = append(out.FutureTransactions, entry)
		}
	}

	for _, source := range []enums.LedgerSource{enums.LedgerSourceEvent, enums.LedgerSourceStore} {
		if line, ok := bySource[source]; ok {
			out.Breakdown = append(out.Breakdown, *line)
		}
	}

	return out, nil
}

// CheckConsistency replays the ledger and compares it with the projection
// row. The payout-cycle check mirrors the wallet view: next-cycle total
// plus future total must equal the projected wallet balance.
func (s *service) CheckConsistency(ctx context.Context, vendorID uuid.UUID, now time.Time) (*ConsistencyReport, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	_, _, cycleKey, err := s.cycles.NextPayout(ctx, vendorID, now)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListUnconsumedEligible(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay eligible entries")
	}

	report := &ConsistencyReport{VendorID: vendorID}
	for _, entry := range entries {
		if entry.TargetPayoutKey <= cycleKey {
			report.NextCycleMinor += entry.AmountMinor
		} else {
			report.FutureMinor += entry.AmountMinor
		}
	}

	row, err := s.repo.GetSummary(ctx, vendorID)
	switch {
	case err == nil:
		report.WalletBalanceMinor = row.EligibleBalanceMinor
		report.OnHoldMinor = row.OnHoldMinor
	case errors.Is(err, gorm.ErrRecordNotFound):
		// projection never initialized: treat as zero
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet summary")
	}

	replayedOnHold, err := s.repo.SumUnpromotedHolds(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay hold entries")
	}
	report.ReplayedOnHoldMinor = replayedOnHold

	report.EligibleDeltaMinor = report.WalletBalanceMinor - (report.NextCycleMinor + report.FutureMinor)
	report.OnHoldDeltaMinor = report.OnHoldMinor - report.ReplayedOnHoldMinor
	report.Consistent = report.EligibleDeltaMinor == 0 && report.OnHoldDeltaMinor == 0

	return report, nil
}
