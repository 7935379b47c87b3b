package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docscout/docscout/internal/service"
	"github.com/docscout/docscout/pkg/version"
)

// Server bridges MCP clients with the documentation service.
type Server struct {
	mcp    *mcp.Server
	svc    *service.Service
	logger *slog.Logger
}

// NewServer creates the MCP server and registers tools, resources, and
// prompts.
func NewServer(svc *service.Service, logger *slog.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "docscout",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server on stdio until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}
