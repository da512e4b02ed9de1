package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

type expirySweeper interface {
	SweepGraceToExpired(ctx context.Context, now time.Time) (lifecycle.SweepReport, error)
}

// expiryJob expires subscriptions whose grace window ran out.
type expiryJob struct {
	logg    *logger.Logger
	sweeper expirySweeper
}

// NewExpiryJob builds the cron job that expires exhausted grace windows.
func NewExpiryJob(logg *logger.Logger, sweeper expirySweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("expiry sweeper required")
	}
	return &expiryJob{logg: logg, sweeper: sweeper}, nil
}

func (j *expiryJob) Name() string { return "subscription_expiry" }

func (j *expiryJob) Run(ctx context.Context) error {
	report, err := j.sweeper.SweepGraceToExpired(ctx, time.Now().UTC())
	ctx = j.logg.WithFields(ctx, map[string]any{
		"scanned": report.Scanned,
		"applied": report.Applied,
	})
	j.logg.Info(ctx, "expiry sweep finished")
	return err
}
