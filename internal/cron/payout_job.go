package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

type payoutRunner interface {
	RunDue(ctx context.Context, now time.Time) (payouts.RunSummary, error)
}

// NewPayoutJob builds the job that creates and dispatches payout
// batches for every vendor whose cycle has come due.
func NewPayoutJob(logg *logger.Logger, runner payoutRunner) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if runner == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &payoutJob{logg: logg, runner: runner, now: time.Now}, nil
}

type payoutJob struct {
	logg   *logger.Logger
	runner payoutRunner
	now    func() time.Time
}

func (j *payoutJob) Name() string { return "payout-run" }

func (j *payoutJob) Run(ctx context.Context) error {
	summary, err := j.runner.RunDue(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("run due payouts: %w", err)
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"vendors":    summary.Vendors,
		"dispatched": summary.Dispatched,
		"empty":      summary.Empty,
		"held":       summary.Held,
		"unverified": summary.Unverified,
		"ambiguous":  summary.Ambiguous,
		"failed":     summary.Failed,
	})
	j.logg.Info(ctx, "payout run finished")
	return nil
}
