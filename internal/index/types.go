// Package index provides vector and keyword indexes over document chunks:
// a local in-process HNSW backend, a Qdrant-backed remote backend, and a
// Bleve full-text index for keyword and hybrid search.
package index

import (
	"context"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/docscout/docscout/internal/docs"
)

// Backend names accepted in configuration.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// SearchResult pairs a chunk with its similarity score in [0, 1].
type SearchResult struct {
	Chunk *docs.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

// Filter restricts search and metadata scans. Zero-value fields match
// everything; set fields are conjunctive.
type Filter struct {
	// Repositories limits results to the named repositories.
	Repositories []string `json:"repositories,omitempty"`

	// Types limits results to the given chunk types.
	Types []docs.ChunkType `json:"types,omitempty"`

	// PathGlob matches file paths with ** patterns ("docs/**/*.md").
	PathGlob string `json:"pathGlob,omitempty"`

	// Metadata requires exact key/value matches on chunk metadata.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Matches reports whether the chunk satisfies every set condition.
func (f *Filter) Matches(c *docs.Chunk) bool {
	if f == nil {
		return true
	}
	if len(f.Repositories) > 0 && !containsFold(f.Repositories, c.Repository) {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if c.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.PathGlob != "" {
		ok, err := doublestar.Match(f.PathGlob, c.FilePath)
		if err != nil || !ok {
			return false
		}
	}
	for k, want := range f.Metadata {
		if got, ok := c.Metadata[k]; !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// SearchOptions tunes a vector search.
type SearchOptions struct {
	// Limit caps the number of results.
	Limit int

	// ScoreThreshold drops results scoring below it. Zero disables.
	ScoreThreshold float64

	// Filter restricts candidates before ranking.
	Filter *Filter
}

// Stats describes index contents.
type Stats struct {
	Backend      string         `json:"backend"`
	Dimensions   int            `json:"dimensions"`
	Chunks       int            `json:"totalChunks"`
	Documents    int            `json:"totalDocuments"`
	Repositories map[string]int `json:"chunksByRepository"`
}

// VectorIndex stores chunk embeddings and serves similarity search.
// Chunks passed to Upsert must carry their Embedding.
type VectorIndex interface {
	// Upsert inserts or replaces chunks by ID.
	Upsert(ctx context.Context, chunks []*docs.Chunk) error

	// Search returns the chunks nearest to the query vector, best first.
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error)

	// SearchByMetadata scans for chunks matching the filter, no ranking.
	SearchByMetadata(ctx context.Context, filter *Filter, limit int) ([]*docs.Chunk, error)

	// DeleteByDocument removes all chunks of one document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeleteByRepository removes all chunks of one repository.
	DeleteByRepository(ctx context.Context, repository string) error

	// Stats reports index contents.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases resources.
	Close() error
}
