package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type StaleReaper interface {
	ReapStalePayouts(ctx context.Context) (int64, error)
}

// Reaper periodically returns orders whose payout claim outlived the
// processing lease to unpaid.
type Reaper struct {
	reaper   StaleReaper
	schedule string
	logger   *zap.Logger
}

func NewReaper(reaper StaleReaper, schedule string, logger *zap.Logger) *Reaper {
	return &Reaper{
		reaper:   reaper,
		schedule: schedule,
		logger:   logger,
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule reaper %q: %w", r.schedule, err)
	}

	r.logger.Info("payout reaper started", zap.String("schedule", r.schedule))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("payout reaper stopped")
	return nil
}

func (r *Reaper) RunOnce(ctx context.Context) {
	released, err := r.reaper.ReapStalePayouts(ctx)
	if err != nil {
		r.logger.Error("reap stale payouts", zap.Error(err))
		return
	}
	r.logger.Debug("reaper pass done", zap.Int64("released", released))
}
