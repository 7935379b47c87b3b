package contextgen

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/catalog"
	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/index"
)

const testDims = 8

// fakeEmbedder maps known tasks to fixed vectors and can be forced to fail.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New(errors.KindTransient, "provider down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, testDims), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                    { return testDims }
func (f *fakeEmbedder) ModelName() string                  { return "fake" }
func (f *fakeEmbedder) Available(ctx context.Context) bool { return !f.fail }
func (f *fakeEmbedder) Close() error                       { return nil }

func axis(hot int) []float32 {
	v := make([]float32, testDims)
	v[hot] = 1
	return v
}

// offAxis builds a vector with the given cosine similarity to axis(0).
func offAxis(cos float64) []float32 {
	v := make([]float32, testDims)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

type fixture struct {
	gen *Generator
	idx *index.LocalIndex
	cat *catalog.Catalog
}

func newFixture(t *testing.T, cfg *config.Config, emb *fakeEmbedder) *fixture {
	t.Helper()
	idx, err := index.NewLocalIndex(index.LocalOptions{Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	cat, err := catalog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	logger := slog.New(slog.DiscardHandler)
	gen := NewGenerator(emb, idx, nil, cat, config.NewManager(cfg, ""), logger)
	return &fixture{gen: gen, idx: idx, cat: cat}
}

func baseConfig(repos ...config.Repository) *config.Config {
	return &config.Config{
		Project:      "test",
		Repositories: repos,
		ContextGeneration: config.ContextGeneration{
			MaxResults:      20,
			MaxTokens:       8000,
			ScoreThreshold:  0.7,
			PriorityWeights: config.DefaultPriorityWeights(),
		},
	}
}

func chunkWith(id, docID, repo, path, section, content string, meta map[string]string, vec []float32) *docs.Chunk {
	if meta == nil {
		meta = map[string]string{}
	}
	return &docs.Chunk{
		ID: id, DocumentID: docID, Repository: repo, FilePath: path,
		Type: docs.ChunkParagraph, Content: content, Section: section,
		Metadata: meta, Embedding: vec,
	}
}

func TestGenerateEmptyTaskRejected(t *testing.T) {
	f := newFixture(t, baseConfig(), &fakeEmbedder{})
	_, err := f.gen.Generate(context.Background(), &Query{Task: "  "})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestGeneratePriorityOrdering(t *testing.T) {
	cfg := baseConfig(
		config.Repository{Name: "primary-docs", URL: "u", Priority: config.PriorityHigh},
		config.Repository{Name: "legacy-docs", URL: "u", Priority: config.PriorityLow},
	)
	emb := &fakeEmbedder{vectors: map[string][]float32{"install": axis(0)}}
	f := newFixture(t, cfg, emb)

	ctx := context.Background()
	require.NoError(t, f.idx.Upsert(ctx, []*docs.Chunk{
		chunkWith("c1", "d1", "legacy-docs", "install.md", "Install", "Run the installer.", nil, axis(0)),
		chunkWith("c2", "d2", "primary-docs", "install.md", "Install", "Run the installer.", nil, axis(0)),
	}))

	res, err := f.gen.Generate(ctx, &Query{Task: "install", Strategy: StrategySemantic})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "primary-docs", res.Chunks[0].Chunk.Repository)
	assert.InDelta(t, 1.5, res.Chunks[0].Final, 1e-6)
	assert.InDelta(t, 0.7, res.Chunks[1].Final, 1e-6)
	assert.Greater(t, res.Metadata.Confidence, 0.0)
}

func TestGenerateLanguageBoostWins(t *testing.T) {
	cfg := baseConfig(config.Repository{Name: "docs", URL: "u"})
	emb := &fakeEmbedder{vectors: map[string][]float32{"parse json": axis(0)}}
	f := newFixture(t, cfg, emb)

	ctx := context.Background()
	// The non-matching chunk scores higher semantically, within 10%.
	require.NoError(t, f.idx.Upsert(ctx, []*docs.Chunk{
		chunkWith("c1", "d1", "docs", "json-go.md", "Parsing", "Parse JSON in Go.",
			map[string]string{"language": "go"}, offAxis(0.95)),
		chunkWith("c2", "d2", "docs", "json-ts.md", "Parsing", "Parse JSON in TypeScript.",
			map[string]string{"language": "typescript"}, offAxis(0.90)),
	}))

	res, err := f.gen.Generate(ctx, &Query{
		Task: "parse json", Language: "typescript", Strategy: StrategySemantic,
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "c2", res.Chunks[0].Chunk.ID)
	assert.Contains(t, res.Chunks[0].Explanation, "language match")
}

func TestGenerateDedupesByFilepathAndSection(t *testing.T) {
	cfg := baseConfig(config.Repository{Name: "docs", URL: "u"})
	emb := &fakeEmbedder{vectors: map[string][]float32{"setup": axis(0)}}
	f := newFixture(t, cfg, emb)

	ctx := context.Background()
	require.NoError(t, f.idx.Upsert(ctx, []*docs.Chunk{
		chunkWith("c1", "d1", "docs", "setup.md", "Setup", "Setup part one.", nil, offAxis(0.95)),
		chunkWith("c2", "d1", "docs", "setup.md", "Setup", "Setup part two.", nil, offAxis(0.85)),
		chunkWith("c3", "d1", "docs", "setup.md", "Advanced", "Advanced setup.", nil, offAxis(0.8)),
	}))

	res, err := f.gen.Generate(ctx, &Query{Task: "setup", Strategy: StrategySemantic})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "c1", res.Chunks[0].Chunk.ID)
	assert.Equal(t, "c3", res.Chunks[1].Chunk.ID)
}

func TestGenerateTokenBudgetNeverSplitsChunks(t *testing.T) {
	cfg := baseConfig(config.Repository{Name: "docs", URL: "u"})
	cfg.ContextGeneration.MaxTokens = 12
	emb := &fakeEmbedder{vectors: map[string][]float32{"guide": axis(0)}}
	f := newFixture(t, cfg, emb)

	// Each chunk is 32 chars, about 8 tokens.
	content := strings.Repeat("x", 32)
	ctx := context.Background()
	require.NoError(t, f.idx.Upsert(ctx, []*docs.Chunk{
		chunkWith("c1", "d1", "docs", "a.md", "A", content, nil, offAxis(0.95)),
		chunkWith("c2", "d2", "docs", "b.md", "B", content, nil, offAxis(0.9)),
		chunkWith("c3", "d3", "docs", "c.md", "C", content, nil, offAxis(0.85)),
	}))

	res, err := f.gen.Generate(ctx, &Query{Task: "guide", Strategy: StrategySemantic})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "c1", res.Chunks[0].Chunk.ID)
	assert.LessOrEqual(t, res.Metadata.TokensUsed, 12)
}

func TestGenerateDegradesToSubstringSearch(t *testing.T) {
	cfg := baseConfig(config.Repository{Name: "docs", URL: "u"})
	f := newFixture(t, cfg, &fakeEmbedder{fail: true})

	ctx := context.Background()
	doc := &docs.Document{
		ID: "d1", Repository: "docs", FilePath: "install.md",
		Type: docs.TypeMarkdown, ContentHash: "h",
	}
	_, err := f.cat.ReplaceDocument(ctx, doc, []*docs.Chunk{
		chunkWith("c1", "d1", "docs", "install.md", "Install", "Run the install script first.", nil, nil),
	})
	require.NoError(t, err)

	res, err := f.gen.Generate(ctx, &Query{Task: "install script"})
	require.NoError(t, err)
	assert.Equal(t, StrategySimple, res.Metadata.Strategy)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, 1.0, res.Chunks[0].Final)
	assert.Contains(t, res.Content, "install script")
}

func TestGenerateContentGroupedByRepository(t *testing.T) {
	cfg := baseConfig(
		config.Repository{Name: "repo-a", URL: "u"},
		config.Repository{Name: "repo-b", URL: "u"},
	)
	emb := &fakeEmbedder{vectors: map[string][]float32{"auth": axis(0)}}
	f := newFixture(t, cfg, emb)

	ctx := context.Background()
	require.NoError(t, f.idx.Upsert(ctx, []*docs.Chunk{
		chunkWith("c1", "d1", "repo-a", "auth.md", "Auth", "Token auth details.", nil, offAxis(0.95)),
		chunkWith("c2", "d2", "repo-b", "auth.md", "Auth", "Session auth details.", nil, offAxis(0.9)),
	}))

	res, err := f.gen.Generate(ctx, &Query{Task: "auth", Strategy: StrategySemantic})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "# Documentation Context")
	assert.Contains(t, res.Content, "## Repository: repo-a")
	assert.Contains(t, res.Content, "## Repository: repo-b")
	assert.Contains(t, res.Content, "_Relevance:")
	assert.ElementsMatch(t, []string{"repo-a", "repo-b"}, res.Metadata.RelevantRepositories)
	assert.Len(t, res.Metadata.Sources, 2)
}

func TestGenerateRepositoryFilter(t *testing.T) {
	cfg := baseConfig(
		config.Repository{Name: "repo-a", URL: "u"},
		config.Repository{Name: "repo-b", URL: "u"},
	)
	emb := &fakeEmbedder{vectors: map[string][]float32{"auth": axis(0)}}
	f := newFixture(t, cfg, emb)

	ctx := context.Background()
	require.NoError(t, f.idx.Upsert(ctx, []*docs.Chunk{
		chunkWith("c1", "d1", "repo-a", "auth.md", "Auth", "Token auth.", nil, axis(0)),
		chunkWith("c2", "d2", "repo-b", "auth.md", "Auth", "Session auth.", nil, axis(0)),
	}))

	res, err := f.gen.Generate(ctx, &Query{
		Task: "auth", Strategy: StrategySemantic, Repositories: []string{"repo-b"},
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "repo-b", res.Chunks[0].Chunk.Repository)
}

func TestGenerateProgressiveOverview(t *testing.T) {
	cfg := baseConfig(config.Repository{Name: "docs", URL: "u"})
	emb := &fakeEmbedder{vectors: map[string][]float32{"overview": axis(0)}}
	f := newFixture(t, cfg, emb)

	ctx := context.Background()
	summary := chunkWith("s1", "d1", "docs", "guide.md", "Guide", "# Guide\n\nIntro.", nil, offAxis(0.85))
	summary.ChildIDs = []string{"c1"}
	require.NoError(t, f.idx.Upsert(ctx, []*docs.Chunk{
		summary,
		chunkWith("c1", "d1", "docs", "guide.md", "Install", "Install steps.", nil, offAxis(0.95)),
		chunkWith("c2", "d1", "docs", "guide.md", "Usage", "Usage steps.", nil, offAxis(0.9)),
		chunkWith("c3", "d1", "docs", "guide.md", "Deploy", "Deploy steps.", nil, offAxis(0.8)),
		chunkWith("c4", "d1", "docs", "guide.md", "Debug", "Debug steps.", nil, offAxis(0.75)),
	}))

	res, err := f.gen.GenerateProgressive(ctx, &Query{Task: "overview", Strategy: StrategySemantic}, LevelOverview)
	require.NoError(t, err)
	assert.Equal(t, LevelOverview, res.Level)
	assert.Equal(t, LevelDetailed, res.NextLevel)
	assert.True(t, res.HasMore)
	require.Len(t, res.Chunks, 3)
	assert.Equal(t, "s1", res.Chunks[0].Chunk.ID, "summary chunks lead the overview")
}

func TestGenerateProgressiveUnknownLevelDefaultsToOverview(t *testing.T) {
	cfg := baseConfig(config.Repository{Name: "docs", URL: "u"})
	emb := &fakeEmbedder{vectors: map[string][]float32{"x": axis(0)}}
	f := newFixture(t, cfg, emb)

	res, err := f.gen.GenerateProgressive(context.Background(), &Query{Task: "x", Strategy: StrategySemantic}, "bogus")
	require.NoError(t, err)
	assert.Equal(t, LevelOverview, res.Level)
}

// boostReranker doubles scores for a named repository.
type boostReranker struct{ repo string }

func (b *boostReranker) Name() string         { return "boost-" + b.repo }
func (b *boostReranker) Strategies() []string { return nil }
func (b *boostReranker) Rerank(ctx context.Context, q *Query, chunks []ScoredChunk) []ScoredChunk {
	for i := range chunks {
		if chunks[i].Chunk.Repository == b.repo {
			chunks[i].Final *= 2
		}
	}
	return chunks
}

func TestPluginRerankerRunsAfterBaseRanking(t *testing.T) {
	cfg := baseConfig(
		config.Repository{Name: "repo-a", URL: "u"},
		config.Repository{Name: "repo-b", URL: "u"},
	)
	emb := &fakeEmbedder{vectors: map[string][]float32{"auth": axis(0)}}
	f := newFixture(t, cfg, emb)
	f.gen.AddReranker(&boostReranker{repo: "repo-b"})

	ctx := context.Background()
	require.NoError(t, f.idx.Upsert(ctx, []*docs.Chunk{
		chunkWith("c1", "d1", "repo-a", "a.md", "A", "Token auth.", nil, offAxis(0.95)),
		chunkWith("c2", "d2", "repo-b", "b.md", "B", "Session auth.", nil, offAxis(0.85)),
	}))

	res, err := f.gen.Generate(ctx, &Query{Task: "auth", Strategy: StrategySemantic})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "c2", res.Chunks[0].Chunk.ID)
}
