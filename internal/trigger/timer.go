package trigger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"semsync/internal/engine"
	"semsync/internal/scheduler"
)

// Timer requests a full re-scan at a fixed interval. It is the safety net
// for anything the watcher missed (editors that bypass inotify, network
// mounts, events dropped under load).
type Timer struct {
	interval time.Duration
	sched    *scheduler.Scheduler
	logger   *zap.Logger
}

// NewTimer creates a Timer. A non-positive interval disables it; Run then
// returns immediately.
func NewTimer(interval time.Duration, sched *scheduler.Scheduler, logger *zap.Logger) *Timer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timer{interval: interval, sched: sched, logger: logger}
}

// Run ticks until ctx is canceled.
func (t *Timer) Run(ctx context.Context) error {
	if t.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.logger.Debug("periodic re-scan trigger")
			t.sched.NotifyFull(engine.SourceTimer)
		}
	}
}
