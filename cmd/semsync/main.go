package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"semsync/internal/chunker"
	"semsync/internal/config"
	"semsync/internal/embedder"
	"semsync/internal/engine"
	"semsync/internal/fingerprint"
	"semsync/internal/scanner"
	"semsync/internal/vectorstore"
)

var (
	version   = "dev"
	buildTime = "unknown"

	// Global flags
	cfgPath string
	rootDir string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "semsync",
	Short: "semsync keeps a semantic code index in step with a repository",
	Long: `semsync maintains a vector index over a source tree. It chunks files
into overlapping line windows, embeds them, and re-embeds only what changed,
detected by content-hash fingerprints.

Run "semsync watch" to keep the index live, "semsync sync" for a one-shot
update, or "semsync serve" to expose search over MCP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger. stdout stays clean for command output (and for
		// the MCP protocol under serve); logs go to stderr.
		zcfg := zap.NewProductionConfig()
		zcfg.OutputPaths = []string{"stderr"}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("semsync %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", vectorstore.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", vectorstore.DriverName)
		fmt.Printf("Vector Extension: %v\n", vectorstore.VectorExtensionAvailable)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "repository root (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration from flags and config file.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		if rootDir != "" {
			return nil, fmt.Errorf("--root and --config are mutually exclusive; set root in the config file")
		}
		return cfg, nil
	}

	dir := rootDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		dir = wd
	}
	return config.Default(dir), nil
}

// app holds the wired components shared by the commands.
type app struct {
	cfg    *config.Config
	prints *fingerprint.Store
	store  vectorstore.Store
	emb    embedder.Embedder
	engine *engine.Engine
}

func buildApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	prints, err := fingerprint.Open(cfg.FingerprintPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open fingerprint store: %w", err)
	}

	store, err := vectorstore.Open(cfg.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	emb, err := embedder.New(cfg.Embedder)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	scn := scanner.New(cfg.Root, scanRules(cfg), logger)
	chk := chunker.New(cfg.Chunking.WindowLines, cfg.Chunking.StrideLines)
	writer := vectorstore.NewRetryingWriter(store, vectorstore.DefaultRetryConfig(), logger)

	eng := engine.New(scn, chk, emb, writer, prints, engine.Options{
		Workers:      cfg.Engine.Workers,
		BatchSize:    cfg.Embedder.BatchSize,
		LockTimeout:  cfg.Engine.LockTimeout,
		CycleTimeout: cfg.Engine.CycleTimeout,
	}, logger)

	return &app{cfg: cfg, prints: prints, store: store, emb: emb, engine: eng}, nil
}

func (a *app) Close() {
	_ = a.emb.Close()
	_ = a.store.Close()
}

// scanRules derives scanner rules from config, excluding the data directory
// when it lives inside the repository.
func scanRules(cfg *config.Config) scanner.Rules {
	dataDirRel := ""
	if rel, err := filepath.Rel(cfg.Root, cfg.DataDir); err == nil && !strings.HasPrefix(rel, "..") {
		dataDirRel = filepath.ToSlash(rel)
	}
	return scanner.NewRules(cfg.Scan.Extensions, cfg.Scan.ExcludeDirs, dataDirRel, cfg.Scan.MaxFileBytes)
}

// reportStats prints a one-line cycle summary to stdout.
func reportStats(stats *engine.Stats) {
	fmt.Printf("cycle %s: %s in %s (+%d ~%d -%d files, %d chunks upserted, %d deleted)\n",
		stats.CycleID, stats.Status, stats.Duration.Round(time.Millisecond),
		stats.FilesAdded, stats.FilesModified, stats.FilesRemoved,
		stats.ChunksUpserted, stats.ChunksDeleted)
	for _, f := range stats.Failed {
		fmt.Printf("  failed: %s: %s\n", f.Path, f.Err)
	}
	for _, p := range stats.Oversize {
		fmt.Printf("  skipped (oversize): %s\n", p)
	}
}
