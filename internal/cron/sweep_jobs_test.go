package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

type fakeSweeper struct {
	report lifecycle.SweepReport
	err    error
	calls  int
	lastAt time.Time
}

func (f *fakeSweeper) sweep(_ context.Context, now time.Time) (lifecycle.SweepReport, error) {
	f.calls++
	f.lastAt = now
	return f.report, f.err
}

func (f *fakeSweeper) RenewDue(ctx context.Context, now time.Time) (lifecycle.SweepReport, error) {
	return f.sweep(ctx, now)
}

func (f *fakeSweeper) SweepExpiredToGrace(ctx context.Context, now time.Time) (lifecycle.SweepReport, error) {
	return f.sweep(ctx, now)
}

func (f *fakeSweeper) SweepGraceToExpired(ctx context.Context, now time.Time) (lifecycle.SweepReport, error) {
	return f.sweep(ctx, now)
}

func (f *fakeSweeper) ApplyPendingChanges(ctx context.Context, now time.Time) (lifecycle.SweepReport, error) {
	return f.sweep(ctx, now)
}

func TestSweepJobsDelegateAndPropagateErrors(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})

	builders := []struct {
		name  string
		build func(sweeper *fakeSweeper) (Job, error)
	}{
		{"renewal", func(s *fakeSweeper) (Job, error) { return NewRenewalJob(logg, s) }},
		{"grace", func(s *fakeSweeper) (Job, error) { return NewGraceJob(logg, s) }},
		{"expiry", func(s *fakeSweeper) (Job, error) { return NewExpiryJob(logg, s) }},
		{"pending_change", func(s *fakeSweeper) (Job, error) { return NewPendingChangeJob(logg, s) }},
	}

	for _, tc := range builders {
		t.Run(tc.name, func(t *testing.T) {
			sweeper := &fakeSweeper{report: lifecycle.SweepReport{Scanned: 3, Applied: 2}}
			job, err := tc.build(sweeper)
			if err != nil {
				t.Fatalf("construct job: %v", err)
			}
			if err := job.Run(context.Background()); err != nil {
				t.Fatalf("run: %v", err)
			}
			if sweeper.calls != 1 {
				t.Fatalf("expected one sweep call, got %d", sweeper.calls)
			}
			if sweeper.lastAt.IsZero() {
				t.Fatal("sweep must receive the run time")
			}

			sweeper.err = errors.New("boom")
			if err := job.Run(context.Background()); err == nil {
				t.Fatal("sweep errors must surface so the worker records the failure")
			}
		})
	}
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})

	if _, err := NewRenewalJob(nil, &fakeSweeper{}); err == nil {
		t.Fatal("expected error without logger")
	}
	if _, err := NewRenewalJob(logg, nil); err == nil {
		t.Fatal("expected error without sweeper")
	}
	if _, err := NewPendingChangeJob(logg, nil); err == nil {
		t.Fatal("expected error without applier")
	}
}
