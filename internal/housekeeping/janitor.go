package housekeeping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// TradePruner trims the trade history to the most recent keep rows.
type TradePruner interface {
	PruneTrades(ctx context.Context, keep int) (int64, error)
}

// Janitor runs the trade history retention job on a cron schedule.
type Janitor struct {
	cron    *cron.Cron
	logger  *slog.Logger
	pruner  TradePruner
	keep    int
	baseCtx context.Context
}

// NewJanitor schedules the retention job. schedule accepts standard cron
// expressions and descriptors such as "@every 1m".
func NewJanitor(baseCtx context.Context, logger *slog.Logger, pruner TradePruner, schedule string, keep int) (*Janitor, error) {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", keep)
	}
	j := &Janitor{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		pruner:  pruner,
		keep:    keep,
		baseCtx: baseCtx,
	}
	if _, err := j.cron.AddFunc(schedule, func() { _, _ = j.RunOnce(j.baseCtx) }); err != nil {
		return nil, fmt.Errorf("schedule retention job %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce prunes the trade history immediately.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	removed, err := j.pruner.PruneTrades(ctx, j.keep)
	if err != nil {
		j.logger.Error("Janitor: failed to prune trade history", "error", err)
		return 0, err
	}
	if removed > 0 {
		j.logger.Info("Janitor: pruned trade history", "removed", removed, "kept", j.keep)
	}
	return removed, nil
}

func (j *Janitor) Start() {
	j.logger.Info("Janitor: cron started")
	j.cron.Start()
}

// Stop halts the schedule and waits for a running job to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("Janitor: cron stopped")
}
