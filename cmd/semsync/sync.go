package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"semsync/internal/engine"
	"semsync/internal/trigger"
)

var syncFiles []string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle and exit",
	Long: `Brings the index up to date in a single cycle. Without --files the
whole tree is scanned; with --files only the named paths are re-checked.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncFiles, "files", nil, "repository-relative paths to re-check (default: full scan)")
}

func runSync(cmd *cobra.Command, args []string) error {
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

	req := engine.Request{Full: true, Source: engine.SourceManual}
	if len(syncFiles) > 0 {
		req = engine.Request{
			Paths:  trigger.ParsePathList(strings.Join(syncFiles, "\n")),
			Source: engine.SourceManual,
		}
	}

	stats, err := a.engine.Sync(ctx, req)
	if err != nil {
		return err
	}
	reportStats(stats)
	return nil
}
