package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/docscout/docscout/internal/catalog"
	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/gitsync"
	"github.com/docscout/docscout/internal/index"
)

// RepositoryStatus joins a repository's configuration, its sync state, and
// its indexed document counts.
type RepositoryStatus struct {
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Branch     string            `json:"branch"`
	Priority   config.Priority   `json:"priority"`
	Category   string            `json:"category,omitempty"`
	State      gitsync.RepoState `json:"state"`
	HeadCommit string            `json:"headCommit,omitempty"`
	LastSync   time.Time         `json:"lastSync,omitempty"`
	LastError  string            `json:"lastError,omitempty"`
	Scheduled  bool              `json:"scheduled"`
	Documents  int               `json:"documents"`
	Chunks     int               `json:"chunks"`
}

// ServiceStats aggregates index and catalog statistics.
type ServiceStats struct {
	Vector       *index.Stats              `json:"vector"`
	Repositories []catalog.RepositoryStats `json:"repositories"`
	Embedding    string                    `json:"embeddingModel"`
}

// Status reports the full status of every configured repository, sorted by
// name. Repositories never synced report state idle.
func (s *Service) Status(ctx context.Context) ([]RepositoryStatus, error) {
	stats, err := s.catalog.Stats(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]catalog.RepositoryStats, len(stats))
	for _, st := range stats {
		counts[st.Repository] = st
	}

	repos := s.cfg.Repositories()
	out := make([]RepositoryStatus, 0, len(repos))
	for _, rc := range repos {
		rs := RepositoryStatus{
			Name:      rc.Name,
			URL:       rc.URL,
			Branch:    rc.Branch,
			Priority:  rc.Priority,
			Category:  rc.Category,
			State:     gitsync.StateIdle,
			Scheduled: s.scheduler.Scheduled(rc.Name),
		}
		if st, ok := s.syncer.Status(rc.Name); ok {
			rs.State = st.State
			rs.HeadCommit = st.HeadCommit
			rs.LastSync = st.LastSync
			rs.LastError = st.LastError
		}
		if cs, ok := counts[rc.Name]; ok {
			rs.Documents = cs.Documents
			rs.Chunks = cs.Chunks
		}
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RepositoryStatusByName reports one repository's status.
func (s *Service) RepositoryStatusByName(ctx context.Context, name string) (*RepositoryStatus, error) {
	all, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, errors.Newf(errors.KindNotFound, "repository %q not found", name)
}

// Stats reports index and catalog statistics.
func (s *Service) Stats(ctx context.Context) (*ServiceStats, error) {
	vs, err := s.vectors.Stats(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := s.catalog.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &ServiceStats{
		Vector:       vs,
		Repositories: cs,
		Embedding:    s.embedder.ModelName(),
	}, nil
}

// Search runs a semantic search over the vector index, constrained by the
// optional filter (repositories, chunk types, path glob, metadata). When the
// embedding or vector backend fails it degrades to catalog substring search
// at constant score, with the filter applied post hoc.
func (s *Service) Search(ctx context.Context, query string, filter *index.Filter, limit int) ([]index.SearchResult, error) {
	if limit <= 0 {
		limit = config.DefaultMaxResults
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err == nil {
		var hits []index.SearchResult
		hits, err = s.vectors.Search(ctx, vector, index.SearchOptions{Limit: limit, Filter: filter})
		if err == nil {
			return hits, nil
		}
	}
	s.logger.Warn("semantic search degraded to substring search",
		slog.String("error", err.Error()))

	var repositories []string
	if filter != nil {
		repositories = filter.Repositories
	}
	chunks, cerr := s.catalog.SearchSubstring(ctx, query, repositories, limit)
	if cerr != nil {
		return nil, cerr
	}
	out := make([]index.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		if filter != nil && !filter.Matches(c) {
			continue
		}
		out = append(out, index.SearchResult{Chunk: c, Score: 1.0})
	}
	return out, nil
}

// SearchMetadata scans the vector index for chunks matching the filter,
// without ranking.
func (s *Service) SearchMetadata(ctx context.Context, filter *index.Filter, limit int) ([]*docs.Chunk, error) {
	if limit <= 0 {
		limit = config.DefaultMaxResults
	}
	return s.vectors.SearchByMetadata(ctx, filter, limit)
}
