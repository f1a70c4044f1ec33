// Package payouts turns eligible ledger balance into bank transfers. A
// cycle run locks the payable entries into a processing batch, moves the
// eligible balance down, then dispatches one transfer for the net amount.
// Batches whose transfer outcome is unknown stay in processing until the
// provider gives a definitive answer; money is never re-dispatched on a
// guess.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/internal/fees"
	"github.com/adeyemio/tradefair-backend/internal/vendorlease"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
	"github.com/adeyemio/tradefair-backend/pkg/metrics"
	"github.com/adeyemio/tradefair-backend/pkg/transfer"
)

const createdByProcessor = "system:payouts"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type leaseManager interface {
	Acquire(ctx context.Context, vendorID uuid.UUID) (*vendorlease.Lease, error)
}

type transferClient interface {
	Initiate(ctx context.Context, req transfer.InitiateRequest) (*transfer.Transfer, error)
	Get(ctx context.Context, reference string) (*transfer.Transfer, error)
}

type bankAccountSource interface {
	FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error)
}

type scheduleSource interface {
	For(ctx context.Context, vendorID uuid.UUID) (*models.PayoutSchedule, error)
	DueCycle(ctx context.Context, vendorID uuid.UUID, now time.Time) (string, error)
}

// RunSummary reports one sweep of due payout cycles.
type RunSummary struct {
	Vendors    int
	Dispatched int
	Empty      int
	Held       int
	Unverified int
	Ambiguous  int
	Failed     int
}

// ResolveSummary reports one pass over in-flight batches.
type ResolveSummary struct {
	Checked   int
	Completed int
	Failed    int
	Pending   int
	Held      int
}

// Service runs payout cycles and settles their transfer outcomes.
type Service interface {
	RunCycle(ctx context.Context, vendorID uuid.UUID, cycleKey string, now time.Time) (*models.PayoutBatch, error)
	RunDue(ctx context.Context, now time.Time) (RunSummary, error)
	ResolveInFlight(ctx context.Context, now time.Time) (ResolveSummary, error)
	ResolveFromWebhook(ctx context.Context, reference string, status enums.TransferStatus, reason string) error
	History(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.PayoutBatch, error)
	BatchEntries(ctx context.Context, batchID uuid.UUID) ([]models.PayoutBatchEntry, error)
}

type service struct {
	logg      *logger.Logger
	db        txRunner
	repo      Repository
	wallets   wallet.Repository
	banks     bankAccountSource
	schedules scheduleSource
	transfers transferClient
	leases    leaseManager
	metrics   *metrics.PayoutMetrics
	now       func() time.Time
}

// NewService wires the payout processor.
func NewService(
	logg *logger.Logger,
	db txRunner,
	repo Repository,
	wallets wallet.Repository,
	banks bankAccountSource,
	schedules scheduleSource,
	transfers transferClient,
	leases leaseManager,
	payoutMetrics *metrics.PayoutMetrics,
) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if banks == nil {
		return nil, fmt.Errorf("bank account source required")
	}
	if schedules == nil {
		return nil, fmt.Errorf("schedule service required")
	}
	if transfers == nil {
		return nil, fmt.Errorf("transfer client required")
	}
	if leases == nil {
		return nil, fmt.Errorf("lease manager required")
	}
	return &service{
		logg:      logg,
		db:        db,
		repo:      repo,
		wallets:   wallets,
		banks:     banks,
		schedules: schedules,
		transfers: transfers,
		leases:    leases,
		metrics:   payoutMetrics,
		now:       time.Now,
	}, nil
}

// RunCycle settles one vendor's payout cycle. Running it twice for the
// same cycle is safe: the second run finds the existing non-failed batch
// and returns it untouched.
func (s *service) RunCycle(ctx context.Context, vendorID uuid.UUID, cycleKey string, now time.Time) (*models.PayoutBatch, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if cycleKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cycle key required")
	}

	lease, err := s.leases.Acquire(ctx, vendorID)
	if err != nil {
		if errors.Is(err, vendorlease.ErrHeld) {
			return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "vendor busy, payout deferred")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire vendor lease")
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logg.Error(ctx, "release vendor lease", err)
		}
	}()

	if existing, err := s.repo.FindActiveForCycle(ctx, vendorID, cycleKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing batch")
	}

	vendor, err := s.wallets.FindVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}

	bank, err := s.banks.FindByVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeBankUnverified, "vendor has no bank account on file")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
	}
	if !bank.IsVerified {
		return nil, pkgerrors.New(pkgerrors.CodeBankUnverified, "vendor bank account is not verified")
	}

	sched, err := s.schedules.For(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	var batch *models.PayoutBatch
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		walletRepo := s.wallets.WithTx(tx)
		batchRepo := s.repo.WithTx(tx)

		eligible, err := walletRepo.ListEligibleForCycle(ctx, vendorID, cycleKey)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payable entries")
		}
		if len(eligible) == 0 {
			return nil
		}

		var gross int64
		entryIDs := make([]uuid.UUID, 0, len(eligible))
		locks := make([]*models.PayoutBatchEntry, 0, len(eligible))
		for i := range eligible {
			gross += eligible[i].AmountMinor
			entryIDs = append(entryIDs, eligible[i].ID)
			locks = append(locks, &models.PayoutBatchEntry{
				EntryID:     eligible[i].ID,
				AmountMinor: eligible[i].AmountMinor,
			})
		}
		fee := fees.Calculate(gross, sched.Tier)
		net := gross - fee

		batchID := uuid.New()
		transferRef := batchID.String()
		batch = &models.PayoutBatch{
			ID:               batchID,
			VendorID:         vendorID,
			TargetPayoutKey:  cycleKey,
			GrossAmountMinor: gross,
			FeeMinor:         fee,
			TotalAmountMinor: net,
			Status:           enums.PayoutBatchStatusProcessing,
			TransferRef:      &transferRef,
			ConsumedEntryIDs: entryIDs,
			CreatedBy:        createdByProcessor,
		}
		if err := batchRepo.CreateBatch(ctx, batch, locks); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout batch")
		}
		return walletRepo.AdjustSummary(ctx, vendorID, -gross, 0, nil)
	})
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, nil
	}
	if s.metrics != nil {
		s.metrics.IncBatch("created")
	}

	// The transfer goes out after the batch is committed. If we crash
	// between the two, the in-flight resolution pass finds the batch and
	// asks the provider what happened to its reference.
	result, err := s.transfers.Initiate(ctx, transfer.InitiateRequest{
		Reference:     *batch.TransferRef,
		AmountMinor:   batch.TotalAmountMinor,
		Currency:      string(vendor.Currency),
		BankCode:      bank.BankCode,
		AccountNumber: bank.AccountNumber,
		AccountName:   bank.AccountName,
		Narrative:     fmt.Sprintf("TradeFair payout %s", cycleKey),
	})
	if err != nil {
		if errors.Is(err, transfer.ErrAmbiguous) {
			logCtx := s.logg.WithVendorID(ctx, vendorID.String())
			s.logg.Warn(logCtx, "transfer outcome unknown, batch left in processing")
			return batch, nil
		}
		if ferr := s.finalizeFailed(ctx, batch, err.Error()); ferr != nil {
			return batch, ferr
		}
		return s.repo.FindBatch(ctx, batch.ID)
	}

	switch result.Status {
	case enums.TransferStatusSuccess:
		if err := s.finalizeCompleted(ctx, batch, vendor.Currency, now); err != nil {
			return batch, err
		}
	case enums.TransferStatusFailure:
		if err := s.finalizeFailed(ctx, batch, result.Reason); err != nil {
			return batch, err
		}
	case enums.TransferStatusPending:
		// settled later by webhook or the resolution pass
	}
	return s.repo.FindBatch(ctx, batch.ID)
}

// RunDue runs every vendor whose payout time has passed. Vendors that
// cannot pay out right now (lease held, bank unverified) are logged and
// skipped; the next sweep retries them.
func (s *service) RunDue(ctx context.Context, now time.Time) (RunSummary, error) {
	vendors, err := s.wallets.ListVendors(ctx)
	if err != nil {
		return RunSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors")
	}

	summary := RunSummary{Vendors: len(vendors)}
	for i := range vendors {
		vendorID := vendors[i].ID
		cycleKey, err := s.schedules.DueCycle(ctx, vendorID, now)
		if err != nil {
			s.logg.Error(s.logg.WithVendorID(ctx, vendorID.String()), "resolve due cycle", err)
			summary.Failed++
			continue
		}
		if cycleKey == "" {
			continue
		}

		batch, err := s.RunCycle(ctx, vendorID, cycleKey, now)
		if err != nil {
			logCtx := s.logg.WithVendorID(ctx, vendorID.String())
			switch code := errorCode(err); code {
			case pkgerrors.CodeConcurrency:
				summary.Held++
				s.logg.Info(logCtx, "payout deferred, vendor lease held")
			case pkgerrors.CodeBankUnverified:
				summary.Unverified++
				s.logg.Warn(logCtx, "payout skipped, bank account unverified")
			default:
				summary.Failed++
				s.logg.Error(logCtx, "payout cycle failed", err)
			}
			continue
		}
		switch {
		case batch == nil:
			summary.Empty++
		case batch.Status == enums.PayoutBatchStatusProcessing:
			summary.Ambiguous++
		case batch.Status == enums.PayoutBatchStatusFailed:
			summary.Failed++
		default:
			summary.Dispatched++
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"vendors":    summary.Vendors,
		"dispatched": summary.Dispatched,
		"ambiguous":  summary.Ambiguous,
		"failed":     summary.Failed,
	})
	s.logg.Info(logCtx, "payout sweep complete")
	return summary, nil
}

// ResolveInFlight asks the provider for the outcome of every batch still
// in processing. A reference the provider has never seen means the
// transfer was not created, so the batch is safe to fail and retry.
func (s *service) ResolveInFlight(ctx context.Context, now time.Time) (ResolveSummary, error) {
	batches, err := s.repo.ListProcessing(ctx)
	if err != nil {
		return ResolveSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list in-flight batches")
	}

	summary := ResolveSummary{Checked: len(batches)}
	for i := range batches {
		batch := batches[i]
		if batch.TransferRef == nil {
			continue
		}

		lease, err := s.leases.Acquire(ctx, batch.VendorID)
		if err != nil {
			if errors.Is(err, vendorlease.ErrHeld) {
				summary.Held++
				continue
			}
			return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire vendor lease")
		}

		// The listing happened before the lease, so a webhook may
		// have settled the batch in the gap. Re-read under the lease.
		current, err := s.repo.FindBatch(ctx, batch.ID)
		if err == nil && current.Status != enums.PayoutBatchStatusProcessing {
			if relErr := lease.Release(ctx); relErr != nil {
				s.logg.Error(ctx, "release vendor lease", relErr)
			}
			continue
		}
		if err == nil {
			err = s.resolveBatch(ctx, current, now, &summary)
		} else {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload batch")
		}
		if relErr := lease.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "release vendor lease", relErr)
		}
		if err != nil {
			return summary, err
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"checked":   summary.Checked,
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"pending":   summary.Pending,
	})
	s.logg.Info(logCtx, "in-flight resolution pass complete")
	return summary, nil
}

func (s *service) resolveBatch(ctx context.Context, batch *models.PayoutBatch, now time.Time, summary *ResolveSummary) error {
	result, err := s.transfers.Get(ctx, *batch.TransferRef)
	if err != nil {
		if errorCode(err) == pkgerrors.CodeNotFound {
			summary.Failed++
			return s.finalizeFailed(ctx, batch, "transfer reference unknown to provider")
		}
		// provider unreachable, try again next pass
		summary.Pending++
		s.logg.Warn(s.logg.WithVendorID(ctx, batch.VendorID.String()), "provider lookup failed, batch stays in flight")
		return nil
	}

	switch result.Status {
	case enums.TransferStatusSuccess:
		vendor, err := s.wallets.FindVendor(ctx, batch.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
		}
		summary.Completed++
		return s.finalizeCompleted(ctx, batch, vendor.Currency, now)
	case enums.TransferStatusFailure:
		summary.Failed++
		return s.finalizeFailed(ctx, batch, result.Reason)
	default:
		summary.Pending++
		return nil
	}
}

// ResolveFromWebhook settles a batch from a provider callback. Replayed
// webhooks and callbacks for already-settled batches are no-ops.
func (s *service) ResolveFromWebhook(ctx context.Context, reference string, status enums.TransferStatus, reason string) error {
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer reference required")
	}

	batch, err := s.repo.FindByTransferRef(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no batch for transfer reference")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch by transfer reference")
	}
	if batch.Status != enums.PayoutBatchStatusProcessing {
		return nil
	}

	lease, err := s.leases.Acquire(ctx, batch.VendorID)
	if err != nil {
		if errors.Is(err, vendorlease.ErrHeld) {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "vendor busy, webhook retry expected")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire vendor lease")
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logg.Error(ctx, "release vendor lease", err)
		}
	}()

	// The status check above ran before the lease was held, so the
	// in-flight resolver may have settled the batch in the gap.
	// Re-read under the lease before mutating anything.
	batch, err = s.repo.FindBatch(ctx, batch.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload batch")
	}
	if batch.Status != enums.PayoutBatchStatusProcessing {
		return nil
	}

	switch status {
	case enums.TransferStatusSuccess:
		vendor, err := s.wallets.FindVendor(ctx, batch.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
		}
		return s.finalizeCompleted(ctx, batch, vendor.Currency, s.now())
	case enums.TransferStatusFailure:
		return s.finalizeFailed(ctx, batch, reason)
	default:
		return nil
	}
}

func (s *service) History(ctx context.Context, vendorID uuid.UUID, limit, offset int) ([]models.PayoutBatch, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	batches, err := s.repo.ListByVendor(ctx, vendorID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout history")
	}
	return batches, nil
}

func (s *service) BatchEntries(ctx context.Context, batchID uuid.UUID) ([]models.PayoutBatchEntry, error) {
	if batchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	entries, err := s.repo.ListBatchEntries(ctx, batchID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batch entries")
	}
	return entries, nil
}

// finalizeCompleted converts a processing batch into a settled payout:
// one aggregate debit_payout entry, the batch marked completed, and the
// summary's last payout stamped. The eligible balance already moved when
// the batch was created.
func (s *service) finalizeCompleted(ctx context.Context, batch *models.PayoutBatch, currency enums.Currency, completedAt time.Time) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		walletRepo := s.wallets.WithTx(tx)
		batchRepo := s.repo.WithTx(tx)

		consumed := make([]models.LedgerEntry, 0, len(batch.ConsumedEntryIDs))
		for _, entryID := range batch.ConsumedEntryIDs {
			consumedEntry, err := walletRepo.FindEntry(ctx, entryID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load consumed entry")
			}
			consumed = append(consumed, *consumedEntry)
		}

		entry := &models.LedgerEntry{
			VendorID:        batch.VendorID,
			Currency:        currency,
			Source:          wallet.DominantSource(consumed),
			OrderRef:        fmt.Sprintf("payout:%s", batch.ID),
			AmountMinor:     batch.GrossAmountMinor,
			Type:            enums.LedgerEntryTypeDebitPayout,
			Note:            fmt.Sprintf("payout settled: gross %d, fee %d, net %d", batch.GrossAmountMinor, batch.FeeMinor, batch.TotalAmountMinor),
			TargetPayoutAt:  completedAt,
			TargetPayoutKey: batch.TargetPayoutKey,
			PayoutBatchID:   &batch.ID,
			CreatedBy:       createdByProcessor,
		}
		if err := walletRepo.CreateEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payout entry")
		}
		if err := batchRepo.MarkCompleted(ctx, batch.ID, completedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark batch completed")
		}
		return walletRepo.AdjustSummary(ctx, batch.VendorID, 0, 0, &completedAt)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncBatch("completed")
		s.metrics.IncTransfer("success")
		s.metrics.AddPaidAmount(string(currency), batch.TotalAmountMinor)
	}
	logCtx := s.logg.WithVendorID(ctx, batch.VendorID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"batchId":  batch.ID.String(),
		"cycleKey": batch.TargetPayoutKey,
		"netMinor": batch.TotalAmountMinor,
	})
	s.logg.Info(logCtx, "payout batch completed")
	return nil
}

// finalizeFailed releases the batch's consumed entries and restores the
// eligible balance. The entries become payable again in the next cycle.
func (s *service) finalizeFailed(ctx context.Context, batch *models.PayoutBatch, reason string) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		walletRepo := s.wallets.WithTx(tx)
		batchRepo := s.repo.WithTx(tx)

		if err := batchRepo.MarkFailed(ctx, batch.ID, reason); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark batch failed")
		}
		if err := batchRepo.DeleteBatchEntries(ctx, batch.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release batch entries")
		}
		return walletRepo.AdjustSummary(ctx, batch.VendorID, batch.GrossAmountMinor, 0, nil)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncBatch("failed")
		s.metrics.IncTransfer("failure")
	}
	logCtx := s.logg.WithVendorID(ctx, batch.VendorID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"batchId": batch.ID.String(),
		"reason":  reason,
	})
	s.logg.Warn(logCtx, "payout batch failed, entries released")
	return nil
}

func errorCode(err error) pkgerrors.Code {
	if pkgErr := pkgerrors.As(err); pkgErr != nil {
		return pkgErr.Code()
	}
	return ""
}
