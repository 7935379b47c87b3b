package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	statusResourceURI = "docs://status"
	statsResourceURI  = "docs://stats"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "repository_status",
			URI:         statusResourceURI,
			Description: "Sync state and indexed counts for every configured repository",
			MIMEType:    "application/json",
		},
		s.handleStatusResource,
	)

	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "index_stats",
			URI:         statsResourceURI,
			Description: "Vector index and catalog statistics",
			MIMEType:    "application/json",
		},
		s.handleStatsResource,
	)
}

func (s *Server) handleStatusResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	statuses, err := s.svc.Status(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(statusResourceURI, statuses)
}

func (s *Server) handleStatsResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := s.svc.Stats(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(statsResourceURI, stats)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
