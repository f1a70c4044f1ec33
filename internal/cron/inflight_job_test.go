package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

func TestInFlightJobResolvesPendingBatches(t *testing.T) {
	now := time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC)
	resolver := &fakeResolver{result: payouts.ResolveSummary{Checked: 2, Completed: 1, Pending: 1}}
	job := newInFlightJob(t, resolver)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resolver.called != 1 {
		t.Fatalf("expected one resolution pass, got %d", resolver.called)
	}
	if !resolver.lastNow.Equal(now) {
		t.Fatalf("expected resolution at %s, got %s", now, resolver.lastNow)
	}
}

func TestInFlightJobPropagatesErrors(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("boom")}
	job := newInFlightJob(t, resolver)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newInFlightJob(t *testing.T, resolver *fakeResolver) *inFlightJob {
	t.Helper()
	jobIface, err := NewInFlightJob(logger.New(logger.Options{ServiceName: "test"}), resolver)
	if err != nil {
		t.Fatalf("NewInFlightJob: %v", err)
	}
	job, ok := jobIface.(*inFlightJob)
	if !ok {
		t.Fatalf("expected inFlightJob, got %T", jobIface)
	}
	return job
}

type fakeResolver struct {
	result  payouts.ResolveSummary
	err     error
	called  int
	lastNow time.Time
}

func (f *fakeResolver) ResolveInFlight(_ context.Context, now time.Time) (payouts.ResolveSummary, error) {
	f.called++
	f.lastNow = now
	if f.err != nil {
		return payouts.ResolveSummary{}, f.err
	}
	return f.result, nil
}
