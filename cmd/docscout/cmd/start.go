package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/api"
	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/mcp"
)

// Server modes.
const (
	ModeMCP      = "mcp"
	ModeAPI      = "api"
	ModeEnhanced = "enhanced"
)

const shutdownGrace = 10 * time.Second

func newStartCmd() *cobra.Command {
	var mode string
	var port int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the docscout server",
		Long: `Start the server in one of three modes:

  mcp       MCP over stdio for AI assistant integration (default)
  api       HTTP REST API
  enhanced  both MCP on stdio and the HTTP API`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context(), mode, port)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", ModeMCP, "Server mode: mcp, api, or enhanced")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port override for api and enhanced modes")
	return cmd
}

func runStart(ctx context.Context, mode string, port int) error {
	switch mode {
	case ModeMCP, ModeAPI, ModeEnhanced:
	default:
		return errors.Newf(errors.KindValidation, "unknown mode %q (expected mcp, api, or enhanced)", mode)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// In MCP modes stdout carries JSON-RPC; logs go to file only.
	stderrLogs := mode == ModeAPI
	svc, logger, cleanup, err := buildService(ctx, stderrLogs)
	if err != nil {
		return err
	}
	defer cleanup()

	var httpSrv *api.Server
	if mode == ModeAPI || mode == ModeEnhanced {
		httpSrv = api.NewServerWithPort(svc, logger, port)
		go func() {
			if err := httpSrv.Start(); err != nil {
				logger.Error("HTTP server failed", slog.String("error", err.Error()))
				stop()
			}
		}()
	}

	var serveErr error
	if mode == ModeMCP || mode == ModeEnhanced {
		serveErr = mcp.NewServer(svc, logger).Serve(ctx)
	} else {
		<-ctx.Done()
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown incomplete", slog.String("error", err.Error()))
		}
	}
	return serveErr
}
