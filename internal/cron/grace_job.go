package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

type graceSweeper interface {
	SweepExpiredToGrace(ctx context.Context, now time.Time) (lifecycle.SweepReport, error)
}

// graceJob moves lapsed subscriptions into their grace window.
type graceJob struct {
	logg    *logger.Logger
	sweeper graceSweeper
}

// NewGraceJob builds the cron job that opens grace windows for lapsed
// subscriptions.
func NewGraceJob(logg *logger.Logger, sweeper graceSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("grace sweeper required")
	}
	return &graceJob{logg: logg, sweeper: sweeper}, nil
}

func (j *graceJob) Name() string { return "subscription_grace" }

func (j *graceJob) Run(ctx context.Context) error {
	report, err := j.sweeper.SweepExpiredToGrace(ctx, time.Now().UTC())
	ctx = j.logg.WithFields(ctx, map[string]any{
		"scanned": report.Scanned,
		"applied": report.Applied,
	})
	j.logg.Info(ctx, "grace sweep finished")
	return err
}
