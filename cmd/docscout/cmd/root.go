// Package cmd provides the CLI commands for docscout.
package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/logging"
	"github.com/docscout/docscout/internal/service"
	"github.com/docscout/docscout/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the docscout CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docscout",
		Short: "Documentation retrieval service for AI coding assistants",
		Long: `docscout syncs documentation repositories, indexes their content for
semantic and keyword search, and serves assembled context over MCP and REST.

Configure repositories in config/config.json, then run 'docscout sync'
followed by 'docscout start'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("docscout version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.json", "Path to the configuration file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// newLogger sets up structured logging for the loaded configuration.
// stderr mirroring is disabled in MCP stdio mode, where the client may
// capture both streams.
func newLogger(cfg *config.Config, stderr bool) (*slog.Logger, func(), error) {
	lc := logging.DefaultConfig(cfg.DataDir)
	lc.Level = cfg.Server.LogLevel
	if debugMode {
		lc.Level = "debug"
	}
	lc.WriteToStderr = stderr
	return logging.Setup(lc)
}

// buildService loads configuration and wires the full service.
func buildService(ctx context.Context, stderr bool) (*service.Service, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, logCleanup, err := newLogger(cfg, stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)

	svc, err := service.New(ctx, config.NewManager(cfg, configPath), logger)
	if err != nil {
		logCleanup()
		return nil, nil, nil, err
	}

	cleanup := func() {
		svc.Close()
		logCleanup()
	}
	return svc, logger, cleanup, nil
}
