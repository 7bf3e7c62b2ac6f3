package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"semsync/internal/engine"
	"semsync/internal/scheduler"
	"semsync/internal/trigger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the repository and keep the index up to date",
	Long: `Runs an initial full sync, then watches the filesystem for changes.
Bursts of events are debounced into single cycles, and a periodic full
re-scan catches anything the watcher missed.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial full cycle brings the index current before watching starts.
	// Events arriving meanwhile queue behind the repository lock.
	logger.Info("running initial sync", zap.String("root", cfg.Root))
	stats, err := a.engine.Sync(ctx, engine.Request{Full: true, Source: engine.SourceManual})
	if err != nil {
		return err
	}
	reportStats(stats)

	sched := scheduler.New(a.engine, cfg.Scheduler.QuietPeriod, cfg.Scheduler.MaxWait, logger)

	watcher, err := trigger.NewWatcher(cfg.Root, scanRules(cfg), sched, logger)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	timer := trigger.NewTimer(cfg.Watch.RescanInterval, sched, logger)

	logger.Info("watching",
		zap.String("root", cfg.Root),
		zap.Duration("quiet_period", cfg.Scheduler.QuietPeriod),
		zap.Duration("max_wait", cfg.Scheduler.MaxWait),
		zap.Duration("rescan_interval", cfg.Watch.RescanInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return timer.Run(gctx) })

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return err
}
