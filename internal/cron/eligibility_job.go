package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adeyemio/tradefair-backend/internal/eligibility"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

type eligibilitySweeper interface {
	PromoteDue(ctx context.Context, now time.Time) (eligibility.SweepResult, error)
}

// NewEligibilityJob builds the job that promotes matured holds into
// eligible balance.
func NewEligibilityJob(logg *logger.Logger, sweeper eligibilitySweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("eligibility service required")
	}
	return &eligibilityJob{logg: logg, sweeper: sweeper, now: time.Now}, nil
}

type eligibilityJob struct {
	logg    *logger.Logger
	sweeper eligibilitySweeper
	now     func() time.Time
}

func (j *eligibilityJob) Name() string { return "eligibility-sweep" }

func (j *eligibilityJob) Run(ctx context.Context) error {
	result, err := j.sweeper.PromoteDue(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("promote matured holds: %w", err)
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"vendors":  result.Vendors,
		"promoted": result.Promoted,
		"held":     result.Held,
	})
	j.logg.Info(ctx, "eligibility sweep finished")
	return nil
}
