package mcp

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docscout/docscout/internal/contextgen"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/service"
)

// SearchInput is the input schema for the search_documentation tool.
type SearchInput struct {
	Query        string   `json:"query" jsonschema:"the search query to execute"`
	Repositories []string `json:"repositories,omitempty" jsonschema:"limit results to these repository names"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
}

// SearchOutput is the output schema for the search_documentation tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"matching documentation chunks, best first"`
}

// SearchResultOutput is one search hit.
type SearchResultOutput struct {
	Repository string  `json:"repository" jsonschema:"repository the chunk came from"`
	FilePath   string  `json:"file_path" jsonschema:"file path within the repository"`
	Section    string  `json:"section,omitempty" jsonschema:"section heading the chunk belongs to"`
	Content    string  `json:"content" jsonschema:"chunk content"`
	Score      float64 `json:"score" jsonschema:"relevance score between 0 and 1"`
}

// ContextInput is the input schema for the generate_context tool.
type ContextInput struct {
	Task         string   `json:"task" jsonschema:"the development task to gather documentation for"`
	Language     string   `json:"language,omitempty" jsonschema:"programming language to boost, e.g. go, python"`
	Framework    string   `json:"framework,omitempty" jsonschema:"framework to boost, e.g. react, gin"`
	Repositories []string `json:"repositories,omitempty" jsonschema:"limit retrieval to these repository names"`
	Categories   []string `json:"categories,omitempty" jsonschema:"limit retrieval to these repository categories"`
	Strategy     string   `json:"strategy,omitempty" jsonschema:"search strategy: semantic, keyword, or hybrid"`
	MaxResults   int      `json:"max_results,omitempty" jsonschema:"maximum chunks to include, default 20"`
	Level        string   `json:"level,omitempty" jsonschema:"progressive disclosure level: overview, detailed, or comprehensive"`
}

// ContextOutput is the output schema for the generate_context tool.
type ContextOutput struct {
	Content    string            `json:"content" jsonschema:"assembled markdown documentation context"`
	Sources    []SourceOutput    `json:"sources" jsonschema:"files that contributed to the context"`
	TokensUsed int               `json:"tokens_used" jsonschema:"estimated tokens in the assembled context"`
	Strategy   string            `json:"strategy" jsonschema:"search strategy actually used"`
	Confidence float64           `json:"confidence,omitempty" jsonschema:"mean relevance of the top results"`
	Disclosure *DisclosureOutput `json:"disclosure,omitempty" jsonschema:"progressive disclosure state when a level was requested"`
}

// SourceOutput names one contributing file.
type SourceOutput struct {
	Repository string  `json:"repository"`
	FilePath   string  `json:"file_path"`
	Relevance  float64 `json:"relevance"`
}

// DisclosureOutput carries progressive disclosure cursor state.
type DisclosureOutput struct {
	Level     string `json:"level"`
	HasMore   bool   `json:"has_more"`
	NextLevel string `json:"next_level,omitempty"`
}

// StatusInput is the input schema for the get_repository_status tool.
type StatusInput struct {
	Repository string `json:"repository,omitempty" jsonschema:"repository name, empty for all repositories"`
}

// StatusOutput is the output schema for the get_repository_status tool.
type StatusOutput struct {
	Repositories []service.RepositoryStatus `json:"repositories" jsonschema:"per-repository sync state and index counts"`
}

// SyncInput is the input schema for the sync_repository tool.
type SyncInput struct {
	Repository string `json:"repository,omitempty" jsonschema:"repository name, empty to sync all repositories"`
}

// SyncOutput is the output schema for the sync_repository tool.
type SyncOutput struct {
	Synced   []string          `json:"synced" jsonschema:"repositories synced successfully"`
	Failures map[string]string `json:"failures,omitempty" jsonschema:"per-repository error messages"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_documentation",
		Description: "Search indexed documentation across all configured repositories. Returns ranked chunks with scores. Use generate_context instead when you want assembled, ready-to-use context for a task.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "generate_context",
		Description: "Generate assembled documentation context for a development task. Retrieves, ranks, deduplicates, and budgets relevant chunks into markdown grouped by repository. Supports language/framework boosting and progressive disclosure levels.",
	}, s.handleGenerateContext)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_repository_status",
		Description: "Report sync state, last synced commit, and indexed document counts for configured repositories.",
	}, s.handleStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_repository",
		Description: "Sync one repository (or all) from its git remote and re-index changed documentation.",
	}, s.handleSync)

	s.logger.Debug("MCP tools registered", slog.Int("count", 4))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	start := time.Now()
	var filter *index.Filter
	if len(input.Repositories) > 0 {
		filter = &index.Filter{Repositories: input.Repositories}
	}
	hits, err := s.svc.Search(ctx, input.Query, filter, input.Limit)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	s.logger.Info("search completed",
		slog.String("query", input.Query),
		slog.Int("results", len(hits)),
		slog.Duration("duration", time.Since(start)))

	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(hits))}
	for _, h := range hits {
		if h.Chunk == nil {
			continue
		}
		out.Results = append(out.Results, SearchResultOutput{
			Repository: h.Chunk.Repository,
			FilePath:   h.Chunk.FilePath,
			Section:    h.Chunk.Section,
			Content:    h.Chunk.Content,
			Score:      h.Score,
		})
	}
	return nil, out, nil
}

func (s *Server) handleGenerateContext(ctx context.Context, _ *mcp.CallToolRequest, input ContextInput) (
	*mcp.CallToolResult, ContextOutput, error,
) {
	if strings.TrimSpace(input.Task) == "" {
		return nil, ContextOutput{}, NewInvalidParamsError("task parameter is required")
	}

	q := &contextgen.Query{
		Task:         input.Task,
		Language:     input.Language,
		Framework:    input.Framework,
		Repositories: input.Repositories,
		Categories:   input.Categories,
		Strategy:     input.Strategy,
		MaxResults:   input.MaxResults,
	}

	start := time.Now()
	gen := s.svc.Generator()

	var result *contextgen.Result
	var disclosure *DisclosureOutput
	if input.Level != "" {
		prog, err := gen.GenerateProgressive(ctx, q, input.Level)
		if err != nil {
			return nil, ContextOutput{}, MapError(err)
		}
		result = &prog.Result
		disclosure = &DisclosureOutput{
			Level:     prog.Level,
			HasMore:   prog.HasMore,
			NextLevel: prog.NextLevel,
		}
	} else {
		var err error
		result, err = gen.Generate(ctx, q)
		if err != nil {
			return nil, ContextOutput{}, MapError(err)
		}
	}

	s.logger.Info("context generated",
		slog.String("task", input.Task),
		slog.String("strategy", result.Metadata.Strategy),
		slog.Int("chunks", result.Metadata.TotalChunks),
		slog.Int("tokens", result.Metadata.TokensUsed),
		slog.Duration("duration", time.Since(start)))

	out := ContextOutput{
		Content:    result.Content,
		TokensUsed: result.Metadata.TokensUsed,
		Strategy:   result.Metadata.Strategy,
		Confidence: result.Metadata.Confidence,
		Disclosure: disclosure,
		Sources:    make([]SourceOutput, 0, len(result.Metadata.Sources)),
	}
	for _, src := range result.Metadata.Sources {
		out.Sources = append(out.Sources, SourceOutput{
			Repository: src.Repository,
			FilePath:   src.FilePath,
			Relevance:  src.Relevance,
		})
	}
	return nil, out, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, input StatusInput) (
	*mcp.CallToolResult, StatusOutput, error,
) {
	if input.Repository != "" {
		st, err := s.svc.RepositoryStatusByName(ctx, input.Repository)
		if err != nil {
			return nil, StatusOutput{}, MapError(err)
		}
		return nil, StatusOutput{Repositories: []service.RepositoryStatus{*st}}, nil
	}

	all, err := s.svc.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, MapError(err)
	}
	return nil, StatusOutput{Repositories: all}, nil
}

func (s *Server) handleSync(ctx context.Context, _ *mcp.CallToolRequest, input SyncInput) (
	*mcp.CallToolResult, SyncOutput, error,
) {
	if input.Repository != "" {
		if err := s.svc.SyncRepository(ctx, input.Repository); err != nil {
			return nil, SyncOutput{}, MapError(err)
		}
		return nil, SyncOutput{Synced: []string{input.Repository}}, nil
	}

	failures := s.svc.SyncAll(ctx)
	out := SyncOutput{}
	for _, rc := range s.svc.Config().Repositories() {
		if _, failed := failures[rc.Name]; !failed {
			out.Synced = append(out.Synced, rc.Name)
		}
	}
	if len(failures) > 0 {
		out.Failures = make(map[string]string, len(failures))
		for name, err := range failures {
			out.Failures[name] = err.Error()
		}
	}
	return nil, out, nil
}
