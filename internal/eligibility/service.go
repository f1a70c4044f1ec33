// Package eligibility promotes matured hold revenue into spendable
// eligible balance. Promotion appends a hold_release plus a fresh
// credit_eligible entry, both pointing back at the hold they retire, so
// a hold is promoted at most once no matter how often the sweep runs.
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/internal/vendorlease"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

const createdBySweep = "system:eligibility"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type leaseManager interface {
	Acquire(ctx context.Context, vendorID uuid.UUID) (*vendorlease.Lease, error)
}

type cycleTargets interface {
	TargetForEntry(ctx context.Context, vendorID uuid.UUID, from time.Time) (time.Time, string, error)
}

// SweepResult summarizes one promotion sweep across all vendors.
type SweepResult struct {
	Vendors  int
	Promoted int
	Held     int
}

// Service promotes matured holds to eligible balance.
type Service interface {
	PromoteDue(ctx context.Context, now time.Time) (SweepResult, error)
	PromoteVendor(ctx context.Context, vendorID uuid.UUID, now time.Time) (int, error)
}

type service struct {
	logg   *logger.Logger
	db     txRunner
	repo   wallet.Repository
	leases leaseManager
	cycles cycleTargets
}

// NewService wires the promotion sweep.
func NewService(logg *logger.Logger, db txRunner, repo wallet.Repository, leases leaseManager, cycles cycleTargets) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if leases == nil {
		return nil, fmt.Errorf("lease manager required")
	}
	if cycles == nil {
		return nil, fmt.Errorf("schedule service required")
	}
	return &service{
		logg:   logg,
		db:     db,
		repo:   repo,
		leases: leases,
		cycles: cycles,
	}, nil
}

// PromoteDue sweeps every vendor that has at least one matured hold. A
// vendor whose lease is held by another worker is skipped and picked up
// on the next sweep; its holds stay matured until then.
func (s *service) PromoteDue(ctx context.Context, now time.Time) (SweepResult, error) {
	vendorIDs, err := s.repo.VendorsWithMaturedHolds(ctx, now)
	if err != nil {
		return SweepResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors with matured holds")
	}

	result := SweepResult{Vendors: len(vendorIDs)}
	for _, vendorID := range vendorIDs {
		promoted, err := s.PromoteVendor(ctx, vendorID, now)
		if err != nil {
			if pkgErr := pkgerrors.As(err); pkgErr != nil && pkgErr.Code() == pkgerrors.CodeConcurrency {
				result.Held++
				continue
			}
			return result, err
		}
		result.Promoted += promoted
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"vendors":  result.Vendors,
		"promoted": result.Promoted,
		"held":     result.Held,
	})
	s.logg.Info(logCtx, "promotion sweep complete")
	return result, nil
}

// PromoteVendor promotes every matured hold for one vendor inside a
// single transaction, under the vendor's lease.
func (s *service) PromoteVendor(ctx context.Context, vendorID uuid.UUID, now time.Time) (int, error) {
	if vendorID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	lease, err := s.leases.Acquire(ctx, vendorID)
	if err != nil {
		if errors.Is(err, vendorlease.ErrHeld) {
			return 0, pkgerrors.New(pkgerrors.CodeConcurrency, "vendor busy, promotion deferred")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire vendor lease")
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logg.Error(ctx, "release vendor lease", err)
		}
	}()

	targetAt, cycleKey, err := s.cycles.TargetForEntry(ctx, vendorID, now)
	if err != nil {
		return 0, err
	}

	promoted := 0
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// Re-read inside the transaction: the sweep list may be stale
		// by the time the lease is ours.
		holds, err := repo.ListMaturedHolds(ctx, vendorID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list matured holds")
		}
		if len(holds) == 0 {
			return nil
		}

		entries := make([]*models.LedgerEntry, 0, len(holds)*2)
		var total int64
		for i := range holds {
			hold := holds[i]
			entries = append(entries, releaseEntry(hold), promotedEntry(hold, targetAt, cycleKey))
			total += hold.AmountMinor
		}
		if err := repo.CreateEntries(ctx, entries); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append promotion entries")
		}
		if err := repo.AdjustSummary(ctx, vendorID, total, -total, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust wallet summary")
		}

		promoted = len(holds)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if promoted > 0 {
		logCtx := s.logg.WithVendorID(ctx, vendorID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"promoted": promoted, "cycleKey": cycleKey})
		s.logg.Info(logCtx, "matured holds promoted")
	}
	return promoted, nil
}

// releaseEntry retires the hold. It carries the hold's own target stamps
// so the audit trail shows which window the money was held for.
func releaseEntry(hold models.LedgerEntry) *models.LedgerEntry {
	origin := hold.ID
	return &models.LedgerEntry{
		VendorID:        hold.VendorID,
		Currency:        hold.Currency,
		Source:          hold.Source,
		OrderRef:        hold.OrderRef,
		EventID:         hold.EventID,
		AmountMinor:     hold.AmountMinor,
		Type:            enums.LedgerEntryTypeHoldRelease,
		TargetPayoutAt:  hold.TargetPayoutAt,
		TargetPayoutKey: hold.TargetPayoutKey,
		OriginEntryID:   &origin,
		CreatedBy:       createdBySweep,
	}
}

// promotedEntry is the spendable credit, stamped with the vendor's next
// payout cycle.
func promotedEntry(hold models.LedgerEntry, targetAt time.Time, cycleKey string) *models.LedgerEntry {
	origin := hold.ID
	return &models.LedgerEntry{
		VendorID:        hold.VendorID,
		Currency:        hold.Currency,
		Source:          hold.Source,
		OrderRef:        hold.OrderRef,
		EventID:         hold.EventID,
		AmountMinor:     hold.AmountMinor,
		Type:            enums.LedgerEntryTypeCreditEligible,
		TargetPayoutAt:  targetAt,
		TargetPayoutKey: cycleKey,
		OriginEntryID:   &origin,
		CreatedBy:       createdBySweep,
	}
}
