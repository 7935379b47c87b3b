package plugin

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/contextgen"
	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/errors"
)

type fakeProcessor struct {
	name      string
	exts      []string
	fail      bool
	initCalls int
	destroyed bool
}

func (f *fakeProcessor) Name() string                     { return f.name }
func (f *fakeProcessor) Init(cfg map[string]string) error { f.initCalls++; return nil }
func (f *fakeProcessor) Destroy() error                   { f.destroyed = true; return nil }
func (f *fakeProcessor) Extensions() []string             { return f.exts }

func (f *fakeProcessor) Process(path string, content []byte, repository string) (*docs.Document, []*docs.Chunk, error) {
	if f.fail {
		return nil, nil, errors.New(errors.KindFatal, "plugin broken")
	}
	doc := &docs.Document{ID: "plugin-doc", Repository: repository, FilePath: path}
	return doc, []*docs.Chunk{{ID: "plugin-chunk", DocumentID: "plugin-doc"}}, nil
}

type fakeReranker struct {
	name      string
	destroyed bool
}

func (f *fakeReranker) Name() string                     { return f.name }
func (f *fakeReranker) Init(cfg map[string]string) error { return nil }
func (f *fakeReranker) Destroy() error                   { f.destroyed = true; return nil }
func (f *fakeReranker) Strategies() []string             { return []string{"hybrid"} }
func (f *fakeReranker) Rerank(ctx context.Context, q *contextgen.Query, chunks []contextgen.ScoredChunk) []contextgen.ScoredChunk {
	return chunks
}

func newTestRegistry() *Registry {
	return NewRegistry(docs.NewProcessor(), slog.New(slog.DiscardHandler))
}

func TestPluginProcessorRunsFirst(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.RegisterProcessor(&fakeProcessor{name: "adoc", exts: []string{".adoc"}}, nil))

	doc, chunks, err := r.Process("manual.adoc", []byte("content"), "repo")
	require.NoError(t, err)
	assert.Equal(t, "plugin-doc", doc.ID)
	require.Len(t, chunks, 1)
}

func TestPluginFailureFallsBackToDefault(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.RegisterProcessor(&fakeProcessor{name: "md", exts: []string{".md"}, fail: true}, nil))

	doc, chunks, err := r.Process("guide.md", []byte("# Guide\n\nBody text.\n"), "repo")
	require.NoError(t, err)
	assert.NotEqual(t, "plugin-doc", doc.ID)
	assert.NotEmpty(t, chunks)
}

func TestUnclaimedExtensionUsesDefault(t *testing.T) {
	r := newTestRegistry()
	doc, _, err := r.Process("guide.md", []byte("# Guide\n\nBody.\n"), "repo")
	require.NoError(t, err)
	assert.Equal(t, "repo", doc.Repository)
}

func TestRegistrationIsIdempotentByName(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.RegisterReranker(&fakeReranker{name: "boost"}, nil))
	require.NoError(t, r.RegisterReranker(&fakeReranker{name: "boost"}, nil))
	assert.Len(t, r.Rerankers(), 1)
}

func TestDestroyTearsDownAllPlugins(t *testing.T) {
	r := newTestRegistry()
	proc := &fakeProcessor{name: "adoc", exts: []string{".adoc"}}
	rr := &fakeReranker{name: "boost"}
	require.NoError(t, r.RegisterProcessor(proc, nil))
	require.NoError(t, r.RegisterReranker(rr, nil))

	require.NoError(t, r.Destroy())
	assert.True(t, proc.destroyed)
	assert.True(t, rr.destroyed)
	assert.Empty(t, r.Rerankers())
}
