package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/docs"
)

func testChunk(id, docID, repo, path, content string, vec []float32) *docs.Chunk {
	return &docs.Chunk{
		ID:         id,
		DocumentID: docID,
		Repository: repo,
		FilePath:   path,
		Type:       docs.ChunkParagraph,
		Content:    content,
		Metadata:   map[string]string{"language": "go"},
		Embedding:  vec,
	}
}

func unitVec(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func newTestLocal(t *testing.T) *LocalIndex {
	t.Helper()
	idx, err := NewLocalIndex(LocalOptions{Dimensions: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestLocalIndexSearchRanksByScore(t *testing.T) {
	idx := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "docs/a.md", "alpha", unitVec(8, 0)),
		testChunk("c2", "d1", "repo-a", "docs/b.md", "beta", unitVec(8, 1)),
		testChunk("c3", "d2", "repo-b", "docs/c.md", "gamma", unitVec(8, 2)),
	}))

	results, err := idx.Search(ctx, unitVec(8, 0), SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestLocalIndexScoreThreshold(t *testing.T) {
	idx := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "alpha", unitVec(8, 0)),
		testChunk("c2", "d1", "repo-a", "b.md", "beta", unitVec(8, 1)),
	}))

	results, err := idx.Search(ctx, unitVec(8, 0), SearchOptions{Limit: 10, ScoreThreshold: 0.9})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestLocalIndexFilterByRepository(t *testing.T) {
	idx := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "alpha", unitVec(8, 0)),
		testChunk("c2", "d2", "repo-b", "b.md", "beta", unitVec(8, 0)),
	}))

	results, err := idx.Search(ctx, unitVec(8, 0), SearchOptions{
		Limit:  10,
		Filter: &Filter{Repositories: []string{"repo-b"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].Chunk.ID)
}

func TestLocalIndexUpsertReplacesByID(t *testing.T) {
	idx := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "old", unitVec(8, 0)),
	}))
	require.NoError(t, idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "new", unitVec(8, 3)),
	}))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)

	results, err := idx.Search(ctx, unitVec(8, 3), SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Chunk.Content)
}

func TestLocalIndexDeleteByDocumentCascades(t *testing.T) {
	idx := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "alpha", unitVec(8, 0)),
		testChunk("c2", "d1", "repo-a", "a.md", "beta", unitVec(8, 1)),
		testChunk("c3", "d2", "repo-a", "b.md", "gamma", unitVec(8, 2)),
	}))

	require.NoError(t, idx.DeleteByDocument(ctx, "d1"))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)

	results, err := idx.Search(ctx, unitVec(8, 0), SearchOptions{Limit: 10})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "d1", r.Chunk.DocumentID)
	}
}

func TestLocalIndexDeleteByRepository(t *testing.T) {
	idx := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "alpha", unitVec(8, 0)),
		testChunk("c2", "d2", "repo-b", "b.md", "beta", unitVec(8, 1)),
	}))

	require.NoError(t, idx.DeleteByRepository(ctx, "repo-a"))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)
	assert.Zero(t, stats.Repositories["repo-a"])
	assert.Equal(t, 1, stats.Repositories["repo-b"])
}

func TestLocalIndexDimensionMismatch(t *testing.T) {
	idx := newTestLocal(t)
	ctx := context.Background()

	err := idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "alpha", unitVec(4, 0)),
	})
	assert.Error(t, err)

	_, err = idx.Search(ctx, unitVec(4, 0), SearchOptions{Limit: 1})
	assert.Error(t, err)
}

func TestLocalIndexSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")
	ctx := context.Background()

	idx, err := NewLocalIndex(LocalOptions{Dimensions: 8, Path: path})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "alpha", unitVec(8, 0)),
		testChunk("c2", "d2", "repo-b", "b.md", "beta", unitVec(8, 1)),
	}))
	require.NoError(t, idx.Close())

	reopened, err := NewLocalIndex(LocalOptions{Dimensions: 8, Path: path})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)

	results, err := reopened.Search(ctx, unitVec(8, 0), SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestFilterMatches(t *testing.T) {
	chunk := testChunk("c1", "d1", "repo-a", "docs/guide/install.md", "alpha", nil)

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &Filter{}, true},
		{"repository match", &Filter{Repositories: []string{"repo-a"}}, true},
		{"repository case fold", &Filter{Repositories: []string{"REPO-A"}}, true},
		{"repository miss", &Filter{Repositories: []string{"repo-b"}}, false},
		{"glob match", &Filter{PathGlob: "docs/**/*.md"}, true},
		{"glob miss", &Filter{PathGlob: "src/**"}, false},
		{"metadata match", &Filter{Metadata: map[string]string{"language": "go"}}, true},
		{"metadata miss", &Filter{Metadata: map[string]string{"language": "rust"}}, false},
		{"type match", &Filter{Types: []docs.ChunkType{docs.ChunkParagraph}}, true},
		{"type miss", &Filter{Types: []docs.ChunkType{docs.ChunkCode}}, false},
		{"conjunction", &Filter{Repositories: []string{"repo-a"}, PathGlob: "src/**"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(chunk))
		})
	}
}

func TestKeywordIndexSearch(t *testing.T) {
	k, err := NewKeywordIndex("")
	require.NoError(t, err)
	defer func() { _ = k.Close() }()

	ctx := context.Background()
	require.NoError(t, k.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "configuring the database connection pool", nil),
		testChunk("c2", "d2", "repo-a", "b.md", "deploying with kubernetes manifests", nil),
	}))

	results, err := k.Search(ctx, "database connection", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Contains(t, results[0].Chunk.Content, "database")
}

func TestKeywordIndexDeleteByRepository(t *testing.T) {
	k, err := NewKeywordIndex("")
	require.NoError(t, err)
	defer func() { _ = k.Close() }()

	ctx := context.Background()
	require.NoError(t, k.Upsert(ctx, []*docs.Chunk{
		testChunk("c1", "d1", "repo-a", "a.md", "alpha content", nil),
		testChunk("c2", "d2", "repo-b", "b.md", "beta content", nil),
	}))

	require.NoError(t, k.DeleteByRepository(ctx, "repo-a"))

	count, err := k.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
