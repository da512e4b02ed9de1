package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

type pendingChangeApplier interface {
	ApplyPendingChanges(ctx context.Context, now time.Time) (lifecycle.SweepReport, error)
}

// pendingChangeJob executes scheduled downgrades at their cycle boundary.
type pendingChangeJob struct {
	logg    *logger.Logger
	applier pendingChangeApplier
}

// NewPendingChangeJob builds the cron job that applies scheduled plan
// changes.
func NewPendingChangeJob(logg *logger.Logger, applier pendingChangeApplier) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if applier == nil {
		return nil, fmt.Errorf("pending change applier required")
	}
	return &pendingChangeJob{logg: logg, applier: applier}, nil
}

func (j *pendingChangeJob) Name() string { return "subscription_pending_change" }

func (j *pendingChangeJob) Run(ctx context.Context) error {
	report, err := j.applier.ApplyPendingChanges(ctx, time.Now().UTC())
	ctx = j.logg.WithFields(ctx, map[string]any{
		"scanned": report.Scanned,
		"applied": report.Applied,
	})
	j.logg.Info(ctx, "pending change sweep finished")
	return err
}
