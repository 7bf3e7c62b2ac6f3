package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"semsync/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search and sync tools over MCP on stdio",
	Long: `Exposes search_code, trigger_update, and index_status as MCP tools.
stdout carries the protocol; all logging goes to stderr.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	srv := mcp.NewServer(cfg.Root, a.emb, a.store, a.engine, logger)

	logger.Info("MCP server ready, listening on stdio",
		zap.String("root", cfg.Root),
		zap.String("index", cfg.IndexPath()))
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("MCP server stopped")
	return nil
}
