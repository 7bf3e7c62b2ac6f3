package main

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"semsync/internal/engine"
	"semsync/internal/trigger"
)

var (
	updateFiles []string
	updateQuiet bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "VCS hook entry point: index the paths a commit touched",
	Long: `Intended to be called from a post-commit hook:

  git diff --name-only HEAD~1 | semsync update

Paths come from --files or stdin. An empty list is a no-op, and failures
are reported but never produce a non-zero exit, so a broken index setup
cannot block commits.`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringSliceVar(&updateFiles, "files", nil, "paths to re-check (default: read from stdin)")
	updateCmd.Flags().BoolVarP(&updateQuiet, "quiet", "q", false, "log warnings only")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if updateQuiet {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}

	raw := strings.Join(updateFiles, "\n")
	if len(updateFiles) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Warn("failed to read stdin", zap.Error(err))
			return nil
		}
		raw = string(data)
	}

	paths := trigger.ParsePathList(raw)
	if len(paths) == 0 {
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Warn("hook update skipped", zap.Error(err))
		return nil
	}

	a, err := buildApp(cfg)
	if err != nil {
		logger.Warn("hook update skipped", zap.Error(err))
		return nil
	}
	defer a.Close()

	stats, err := a.engine.Sync(cmd.Context(), engine.Request{Paths: paths, Source: engine.SourceHook})
	if err != nil {
		logger.Warn("hook update failed", zap.Error(err))
		return nil
	}

	logger.Info("hook update finished",
		zap.String("cycle_id", stats.CycleID),
		zap.Int("files_added", stats.FilesAdded),
		zap.Int("files_modified", stats.FilesModified),
		zap.Int("files_removed", stats.FilesRemoved),
		zap.Int("failed", len(stats.Failed)))
	return nil
}
