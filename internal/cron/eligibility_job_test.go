package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adeyemio/tradefair-backend/internal/eligibility"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

func TestEligibilityJobSweepsAtCurrentTime(t *testing.T) {
	now := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	sweeper := &fakeSweeper{result: eligibility.SweepResult{Vendors: 3, Promoted: 5, Held: 1}}
	job := newEligibilityJob(t, sweeper)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.called != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.called)
	}
	if !sweeper.lastNow.Equal(now) {
		t.Fatalf("expected sweep at %s, got %s", now, sweeper.lastNow)
	}
}

func TestEligibilityJobPropagatesErrors(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("boom")}
	job := newEligibilityJob(t, sweeper)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newEligibilityJob(t *testing.T, sweeper *fakeSweeper) *eligibilityJob {
	t.Helper()
	jobIface, err := NewEligibilityJob(logger.New(logger.Options{ServiceName: "test"}), sweeper)
	if err != nil {
		t.Fatalf("NewEligibilityJob: %v", err)
	}
	job, ok := jobIface.(*eligibilityJob)
	if !ok {
		t.Fatalf("expected eligibilityJob, got %T", jobIface)
	}
	return job
}

type fakeSweeper struct {
	result  eligibility.SweepResult
	err     error
	called  int
	lastNow time.Time
}

func (f *fakeSweeper) PromoteDue(_ context.Context, now time.Time) (eligibility.SweepResult, error) {
	f.called++
	f.lastNow = now
	if f.err != nil {
		return eligibility.SweepResult{}, f.err
	}
	return f.result, nil
}
