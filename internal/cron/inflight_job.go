package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

type inFlightResolver interface {
	ResolveInFlight(ctx context.Context, now time.Time) (payouts.ResolveSummary, error)
}

// NewInFlightJob builds the job that settles payout batches whose
// transfer outcome was unknown when they were dispatched.
func NewInFlightJob(logg *logger.Logger, resolver inFlightResolver) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &inFlightJob{logg: logg, resolver: resolver, now: time.Now}, nil
}

type inFlightJob struct {
	logg     *logger.Logger
	resolver inFlightResolver
	now      func() time.Time
}

func (j *inFlightJob) Name() string { return "inflight-resolve" }

func (j *inFlightJob) Run(ctx context.Context) error {
	summary, err := j.resolver.ResolveInFlight(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("resolve in-flight batches: %w", err)
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"checked":   summary.Checked,
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"pending":   summary.Pending,
		"held":      summary.Held,
	})
	j.logg.Info(ctx, "in-flight resolution finished")
	return nil
}
