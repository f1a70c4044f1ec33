// Package reconciliation covers the money movements the automated
// processor cannot make on its own: operator-triggered manual payouts
// and backfills of historical batches that settled outside the system.
//
// Manual payouts are two-phase. Preview computes the exact plan (which
// entries would be consumed, where the split falls) without writing
// anything; Commit recomputes the same plan under the vendor's lease
// inside a transaction and applies it. A preview is never a
// reservation.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/internal/vendorlease"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

const idempotencyTTL = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type leaseManager interface {
	Acquire(ctx context.Context, vendorID uuid.UUID) (*vendorlease.Lease, error)
}

type idempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// PlannedConsumption is one eligible entry the manual payout would
// consume, possibly partially.
type PlannedConsumption struct {
	EntryID       uuid.UUID `json:"entryId"`
	OrderRef      string    `json:"orderRef"`
	AmountMinor   int64     `json:"amountMinor"`
	ConsumedMinor int64     `json:"consumedMinor"`
}

// Plan describes what a manual payout of the requested amount would do.
type Plan struct {
	VendorID       uuid.UUID            `json:"vendorId"`
	RequestedMinor int64                `json:"requestedMinor"`
	AvailableMinor int64                `json:"availableMinor"`
	Consumed       []PlannedConsumption `json:"consumed"`
	RemainderMinor int64                `json:"remainderMinor"`
	Narrative      []string             `json:"narrative"`
}

// CommitInput parameterizes a manual payout commit.
type CommitInput struct {
	VendorID       uuid.UUID `json:"-"`
	AmountMinor    int64     `json:"amountMinor" validate:"required,gt=0"`
	IdempotencyKey string    `json:"idempotencyKey" validate:"required"`
	Operator       string    `json:"-"`
}

// BackfillInput records a payout that settled outside the system.
type BackfillInput struct {
	BatchID          uuid.UUID   `json:"batchId" validate:"required"`
	VendorID         uuid.UUID   `json:"-"`
	TargetPayoutKey  string      `json:"targetPayoutKey" validate:"required"`
	GrossAmountMinor int64       `json:"grossAmountMinor" validate:"required,gt=0"`
	FeeMinor         int64       `json:"feeMinor"`
	TransferRef      *string     `json:"transferRef"`
	EntryIDs         []uuid.UUID `json:"entryIds"`
	CompletedAt      time.Time   `json:"completedAt" validate:"required"`
	Operator         string      `json:"-"`
}

// Service exposes manual payouts and batch backfills.
type Service interface {
	PreviewManualPayout(ctx context.Context, vendorID uuid.UUID, amountMinor int64) (*Plan, error)
	CommitManualPayout(ctx context.Context, input CommitInput) (*models.PayoutBatch, error)
	BackfillBatch(ctx context.Context, input BackfillInput) (*models.PayoutBatch, error)
}

type service struct {
	logg    *logger.Logger
	db      txRunner
	wallets wallet.Repository
	batches payouts.Repository
	leases  leaseManager
	idem    idempotencyStore
	now     func() time.Time
}

// NewService wires the reconciliation service.
func NewService(
	logg *logger.Logger,
	db txRunner,
	wallets wallet.Repository,
	batches payouts.Repository,
	leases leaseManager,
	idem idempotencyStore,
) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if batches == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if leases == nil {
		return nil, fmt.Errorf("lease manager required")
	}
	if idem == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	return &service{
		logg:    logg,
		db:      db,
		wallets: wallets,
		batches: batches,
		leases:  leases,
		idem:    idem,
		now:     time.Now,
	}, nil
}

// PreviewManualPayout computes the consumption plan without writing
// anything. The plan can be stale by the time it is committed; Commit
// recomputes it.
func (s *service) PreviewManualPayout(ctx context.Context, vendorID uuid.UUID, amountMinor int64) (*Plan, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if amountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	eligible, err := s.wallets.ListUnconsumedEligible(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible entries")
	}
	return buildPlan(vendorID, amountMinor, eligible), nil
}

// buildPlan walks the eligible entries oldest first until the requested
// amount is covered. The last entry may be consumed partially; the plan
// records the remainder that would be re-credited.
func buildPlan(vendorID uuid.UUID, amountMinor int64, eligible []models.LedgerEntry) *Plan {
	plan := &Plan{
		VendorID:       vendorID,
		RequestedMinor: amountMinor,
	}

	remaining := amountMinor
	for i := range eligible {
		entry := eligible[i]
		plan.AvailableMinor += entry.AmountMinor
		if remaining <= 0 {
			continue
		}

		consumed := entry.AmountMinor
		if consumed > remaining {
			consumed = remaining
		}
		plan.Consumed = append(plan.Consumed, PlannedConsumption{
			EntryID:       entry.ID,
			OrderRef:      entry.OrderRef,
			AmountMinor:   entry.AmountMinor,
			ConsumedMinor: consumed,
		})
		if consumed < entry.AmountMinor {
			plan.RemainderMinor = entry.AmountMinor - consumed
			plan.Narrative = append(plan.Narrative, fmt.Sprintf(
				"split entry %s (%s): consume %d of %d, re-credit %d",
				entry.ID, entry.OrderRef, consumed, entry.AmountMinor, plan.RemainderMinor))
		} else {
			plan.Narrative = append(plan.Narrative, fmt.Sprintf(
				"consume entry %s (%s) in full: %d",
				entry.ID, entry.OrderRef, consumed))
		}
		remaining -= consumed
	}

	if remaining > 0 {
		plan.Narrative = append(plan.Narrative, fmt.Sprintf(
			"short by %d: requested %d, available %d",
			remaining, amountMinor, plan.AvailableMinor))
	}
	return plan
}

func (p *Plan) covered() bool {
	var consumed int64
	for _, c := range p.Consumed {
		consumed += c.ConsumedMinor
	}
	return consumed == p.RequestedMinor
}

// CommitManualPayout applies a manual payout. The idempotency key makes
// retries safe: a replayed commit returns the batch the first commit
// created.
func (s *service) CommitManualPayout(ctx context.Context, input CommitInput) (*models.PayoutBatch, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if input.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	if input.Operator == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}

	// The batch's target key doubles as the database-level idempotency
	// guard: the partial unique index on (vendor_id, target_payout_key)
	// rejects a second non-failed batch for the same key.
	manualKey := "manual-" + input.IdempotencyKey

	if existing, err := s.batches.FindActiveForCycle(ctx, input.VendorID, manualKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing manual batch")
	}

	idemKey := s.idem.IdempotencyKey("reconcile", input.IdempotencyKey)
	acquired, err := s.idem.SetNX(ctx, idemKey, input.Operator, idempotencyTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "manual payout already in progress for this key")
	}

	// A commit that fails wrote nothing, so the key must come back too:
	// the operator retries with the same key once the condition clears.
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := s.idem.Del(ctx, idemKey); err != nil {
			s.logg.Error(ctx, "release idempotency key after failed commit", err)
		}
	}()

	lease, err := s.leases.Acquire(ctx, input.VendorID)
	if err != nil {
		if errors.Is(err, vendorlease.ErrHeld) {
			return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "vendor busy, retry the commit")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire vendor lease")
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logg.Error(ctx, "release vendor lease", err)
		}
	}()

	vendor, err := s.wallets.FindVendor(ctx, input.VendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}

	now := s.now().UTC()
	createdBy := "manual:" + input.Operator

	var batch *models.PayoutBatch
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		walletRepo := s.wallets.WithTx(tx)
		batchRepo := s.batches.WithTx(tx)

		eligible, err := walletRepo.ListUnconsumedEligible(ctx, input.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible entries")
		}
		plan := buildPlan(input.VendorID, input.AmountMinor, eligible)
		if !plan.covered() {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, fmt.Sprintf(
				"requested %d but only %d available", input.AmountMinor, plan.AvailableMinor))
		}

		batchID := uuid.New()
		var fullSum int64
		entryIDs := make([]uuid.UUID, 0, len(plan.Consumed))
		locks := make([]*models.PayoutBatchEntry, 0, len(plan.Consumed))
		consumed := make([]models.LedgerEntry, 0, len(plan.Consumed))
		bySource := map[uuid.UUID]enums.LedgerSource{}
		for i := range eligible {
			bySource[eligible[i].ID] = eligible[i].Source
		}
		for _, c := range plan.Consumed {
			fullSum += c.AmountMinor
			entryIDs = append(entryIDs, c.EntryID)
			locks = append(locks, &models.PayoutBatchEntry{
				EntryID:     c.EntryID,
				AmountMinor: c.ConsumedMinor,
			})
			// weight the source split by what the payout actually takes
			consumed = append(consumed, models.LedgerEntry{
				Source:      bySource[c.EntryID],
				AmountMinor: c.ConsumedMinor,
			})
		}

		batch = &models.PayoutBatch{
			ID:               batchID,
			VendorID:         input.VendorID,
			TargetPayoutKey:  manualKey,
			GrossAmountMinor: input.AmountMinor,
			FeeMinor:         0,
			TotalAmountMinor: input.AmountMinor,
			Status:           enums.PayoutBatchStatusCompleted,
			ConsumedEntryIDs: entryIDs,
			CreatedBy:        createdBy,
			CompletedAt:      &now,
		}
		if err := batchRepo.CreateBatch(ctx, batch, locks); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create manual batch")
		}

		entries := []*models.LedgerEntry{{
			VendorID:        input.VendorID,
			Currency:        vendor.Currency,
			Source:          wallet.DominantSource(consumed),
			OrderRef:        fmt.Sprintf("payout:%s", batchID),
			AmountMinor:     input.AmountMinor,
			Type:            enums.LedgerEntryTypeDebitPayout,
			Note:            fmt.Sprintf("manual payout by %s", input.Operator),
			TargetPayoutAt:  now,
			TargetPayoutKey: manualKey,
			PayoutBatchID:   &batchID,
			CreatedBy:       createdBy,
		}}

		// A partially consumed entry is locked in full; the unpaid
		// remainder comes back as a fresh eligible credit pointing at
		// the entry it was carved out of.
		if plan.RemainderMinor > 0 {
			split := plan.Consumed[len(plan.Consumed)-1]
			origin := split.EntryID
			var splitEntry models.LedgerEntry
			for i := range eligible {
				if eligible[i].ID == origin {
					splitEntry = eligible[i]
					break
				}
			}
			entries = append(entries, &models.LedgerEntry{
				VendorID:        input.VendorID,
				Currency:        vendor.Currency,
				Source:          splitEntry.Source,
				OrderRef:        splitEntry.OrderRef,
				EventID:         splitEntry.EventID,
				AmountMinor:     plan.RemainderMinor,
				Type:            enums.LedgerEntryTypeCreditEligible,
				Note:            fmt.Sprintf("remainder of split entry %s", origin),
				TargetPayoutAt:  splitEntry.TargetPayoutAt,
				TargetPayoutKey: splitEntry.TargetPayoutKey,
				OriginEntryID:   &origin,
				CreatedBy:       createdBy,
			})
		}
		if err := walletRepo.CreateEntries(ctx, entries); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append manual payout entries")
		}

		// The consumed entries drop out of the balance in full, the
		// remainder credit adds back what was not paid.
		return walletRepo.AdjustSummary(ctx, input.VendorID, plan.RemainderMinor-fullSum, 0, &now)
	})
	if err != nil {
		return nil, err
	}
	committed = true

	logCtx := s.logg.WithVendorID(ctx, input.VendorID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"batchId":     batch.ID.String(),
		"amountMinor": input.AmountMinor,
		"operator":    input.Operator,
	})
	s.logg.Info(logCtx, "manual payout committed")
	return batch, nil
}

// BackfillBatch records a historical settlement. Replaying the same
// batch id is a no-op, so imports can be retried wholesale.
func (s *service) BackfillBatch(ctx context.Context, input BackfillInput) (*models.PayoutBatch, error) {
	if input.BatchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if input.TargetPayoutKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target payout key required")
	}
	if input.GrossAmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive")
	}
	if input.FeeMinor < 0 || input.FeeMinor > input.GrossAmountMinor {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee must be between zero and the gross amount")
	}
	if input.CompletedAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "completion time required")
	}
	if input.Operator == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}

	// Replays are safe only when they describe the same settlement: the
	// debit_payout entry and summary adjustment already happened, so a
	// divergent replay cannot be applied without desyncing the ledger.
	if existing, err := s.batches.FindBatch(ctx, input.BatchID); err == nil {
		if existing.GrossAmountMinor != input.GrossAmountMinor || existing.FeeMinor != input.FeeMinor {
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "batch id already backfilled with different amounts")
		}
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing batch")
	}

	lease, err := s.leases.Acquire(ctx, input.VendorID)
	if err != nil {
		if errors.Is(err, vendorlease.ErrHeld) {
			return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "vendor busy, retry the backfill")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire vendor lease")
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logg.Error(ctx, "release vendor lease", err)
		}
	}()

	vendor, err := s.wallets.FindVendor(ctx, input.VendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}

	completedAt := input.CompletedAt.UTC()
	createdBy := "manual:" + input.Operator
	net := input.GrossAmountMinor - input.FeeMinor

	var batch *models.PayoutBatch
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		walletRepo := s.wallets.WithTx(tx)
		batchRepo := s.batches.WithTx(tx)

		locks := make([]*models.PayoutBatchEntry, 0, len(input.EntryIDs))
		consumed := make([]models.LedgerEntry, 0, len(input.EntryIDs))
		var lockedSum int64
		for _, entryID := range input.EntryIDs {
			entry, err := walletRepo.FindEntry(ctx, entryID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("ledger entry %s not found", entryID))
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
			}
			if entry.VendorID != input.VendorID {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("ledger entry %s belongs to another vendor", entryID))
			}
			locks = append(locks, &models.PayoutBatchEntry{
				EntryID:     entryID,
				AmountMinor: entry.AmountMinor,
			})
			consumed = append(consumed, *entry)
			lockedSum += entry.AmountMinor
		}

		batch = &models.PayoutBatch{
			ID:               input.BatchID,
			VendorID:         input.VendorID,
			TargetPayoutKey:  input.TargetPayoutKey,
			GrossAmountMinor: input.GrossAmountMinor,
			FeeMinor:         input.FeeMinor,
			TotalAmountMinor: net,
			Status:           enums.PayoutBatchStatusCompleted,
			TransferRef:      input.TransferRef,
			ConsumedEntryIDs: input.EntryIDs,
			CreatedBy:        createdBy,
			CompletedAt:      &completedAt,
		}
		if err := batchRepo.CreateBatch(ctx, batch, locks); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create backfill batch")
		}

		entry := &models.LedgerEntry{
			VendorID:        input.VendorID,
			Currency:        vendor.Currency,
			Source:          wallet.DominantSource(consumed),
			OrderRef:        fmt.Sprintf("payout:%s", input.BatchID),
			AmountMinor:     input.GrossAmountMinor,
			Type:            enums.LedgerEntryTypeDebitPayout,
			Note:            fmt.Sprintf("backfilled settlement by %s", input.Operator),
			TargetPayoutAt:  completedAt,
			TargetPayoutKey: input.TargetPayoutKey,
			PayoutBatchID:   &input.BatchID,
			CreatedBy:       createdBy,
		}
		if err := walletRepo.CreateEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payout entry")
		}

		// The locked entries leave the balance now that the batch
		// consumes them.
		return walletRepo.AdjustSummary(ctx, input.VendorID, -lockedSum, 0, &completedAt)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithVendorID(ctx, input.VendorID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"batchId":  batch.ID.String(),
		"cycleKey": input.TargetPayoutKey,
	})
	s.logg.Info(logCtx, "historical batch backfilled")
	return batch, nil
}
