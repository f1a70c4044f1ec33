package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

type consistencyChecker interface {
	CheckConsistency(ctx context.Context, vendorID uuid.UUID, now time.Time) (*wallet.ConsistencyReport, error)
}

type vendorLister interface {
	ListVendors(ctx context.Context) ([]models.Vendor, error)
}

// NewConsistencyJob builds the job that replays every vendor's ledger
// against the wallet projection. Drift is logged for operators; the
// projection is never rewritten automatically.
func NewConsistencyJob(logg *logger.Logger, vendors vendorLister, wallets consistencyChecker) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if vendors == nil {
		return nil, fmt.Errorf("vendor lister required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	return &consistencyJob{logg: logg, vendors: vendors, wallets: wallets, now: time.Now}, nil
}

type consistencyJob struct {
	logg    *logger.Logger
	vendors vendorLister
	wallets consistencyChecker
	now     func() time.Time
}

func (j *consistencyJob) Name() string { return "consistency-check" }

func (j *consistencyJob) Run(ctx context.Context) error {
	vendors, err := j.vendors.ListVendors(ctx)
	if err != nil {
		return fmt.Errorf("list vendors: %w", err)
	}

	now := j.now().UTC()
	var errs error
	drifted := 0
	for _, vendor := range vendors {
		report, err := j.wallets.CheckConsistency(ctx, vendor.ID, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", vendor.ID, err))
			continue
		}
		if report.Consistent {
			continue
		}
		drifted++
		vendorCtx := j.logg.WithVendorID(ctx, vendor.ID.String())
		vendorCtx = j.logg.WithFields(vendorCtx, map[string]any{
			"eligible_delta_minor": report.EligibleDeltaMinor,
			"on_hold_delta_minor":  report.OnHoldDeltaMinor,
		})
		j.logg.Warn(vendorCtx, "wallet projection drifted from ledger replay")
	}

	ctx = j.logg.WithFields(ctx, map[string]any{
		"vendors": len(vendors),
		"drifted": drifted,
	})
	j.logg.Info(ctx, "consistency check finished")
	return errs
}
