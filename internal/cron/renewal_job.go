package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

type renewalSweeper interface {
	RenewDue(ctx context.Context, now time.Time) (lifecycle.SweepReport, error)
}

// renewalJob extends zero-cost subscriptions whose period is about to lapse.
type renewalJob struct {
	logg    *logger.Logger
	sweeper renewalSweeper
}

// NewRenewalJob builds the cron job that renews zero-cost subscriptions.
func NewRenewalJob(logg *logger.Logger, sweeper renewalSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("renewal sweeper required")
	}
	return &renewalJob{logg: logg, sweeper: sweeper}, nil
}

func (j *renewalJob) Name() string { return "subscription_renewal" }

func (j *renewalJob) Run(ctx context.Context) error {
	report, err := j.sweeper.RenewDue(ctx, time.Now().UTC())
	j.logReport(ctx, report)
	return err
}

func (j *renewalJob) logReport(ctx context.Context, report lifecycle.SweepReport) {
	ctx = j.logg.WithFields(ctx, map[string]any{
		"scanned": report.Scanned,
		"applied": report.Applied,
	})
	j.logg.Info(ctx, "renewal sweep finished")
}
