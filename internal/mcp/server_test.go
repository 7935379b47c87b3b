package mcp

import (
	"context"
	"log/slog"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/gitsync"
	"github.com/docscout/docscout/internal/service"
)

func newTestServer(t *testing.T, repos ...config.Repository) *Server {
	t.Helper()
	cfg := config.New()
	cfg.DataDir = t.TempDir()
	cfg.Repositories = repos
	cfg.VectorStore.Dimensions = 64

	svc, err := service.New(context.Background(), config.NewManager(cfg, ""), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return NewServer(svc, slog.New(slog.DiscardHandler))
}

func TestSearchToolRequiresQuery(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "   "})
	require.Error(t, err)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)
}

func TestSearchToolEmptyIndexReturnsNoResults(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
}

func TestGenerateContextToolRequiresTask(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleGenerateContext(context.Background(), nil, ContextInput{})
	require.Error(t, err)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)
}

func TestGenerateContextToolEmptyIndex(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleGenerateContext(context.Background(), nil,
		ContextInput{Task: "configure oauth"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "No relevant documentation found")
	assert.Empty(t, out.Sources)
}

func TestGenerateContextToolProgressiveLevel(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleGenerateContext(context.Background(), nil,
		ContextInput{Task: "configure oauth", Level: "overview"})
	require.NoError(t, err)
	require.NotNil(t, out.Disclosure)
	assert.Equal(t, "overview", out.Disclosure.Level)
}

func TestStatusTool(t *testing.T) {
	s := newTestServer(t,
		config.Repository{Name: "docs", URL: "https://example.com/docs.git"},
		config.Repository{Name: "api", URL: "https://example.com/api.git"},
	)

	_, out, err := s.handleStatus(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	require.Len(t, out.Repositories, 2)
	assert.Equal(t, gitsync.StateIdle, out.Repositories[0].State)

	_, out, err = s.handleStatus(context.Background(), nil, StatusInput{Repository: "docs"})
	require.NoError(t, err)
	require.Len(t, out.Repositories, 1)
	assert.Equal(t, "docs", out.Repositories[0].Name)
}

func TestStatusToolUnknownRepository(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleStatus(context.Background(), nil, StatusInput{Repository: "nope"})
	require.Error(t, err)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeRepoNotFound, me.Code)
}

func TestSyncToolUnknownRepository(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleSync(context.Background(), nil, SyncInput{Repository: "nope"})
	require.Error(t, err)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeRepoNotFound, me.Code)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", errors.New(errors.KindValidation, "bad"), ErrCodeInvalidParams},
		{"not found", errors.New(errors.KindNotFound, "missing"), ErrCodeRepoNotFound},
		{"auth", errors.New(errors.KindAuth, "denied"), ErrCodeAuthFailed},
		{"security", errors.New(errors.KindSecurity, "blocked"), ErrCodeSecurityBlocked},
		{"transient", errors.New(errors.KindTransient, "flaky"), ErrCodeBackendDown},
		{"backend", errors.New(errors.KindBackend, "down"), ErrCodeBackendDown},
		{"fatal", errors.New(errors.KindFatal, "boom"), ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))
}

func TestMapErrorPassesThroughProtocolErrors(t *testing.T) {
	in := NewInvalidParamsError("nope")
	assert.Same(t, in, MapError(in))
}

func TestExplainCodePrompt(t *testing.T) {
	s := newTestServer(t)

	req := &sdk.GetPromptRequest{Params: &sdk.GetPromptParams{
		Arguments: map[string]string{"code": "func main() {}", "language": "go"},
	}}
	res, err := s.handleExplainCodePrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text := res.Messages[0].Content.(*sdk.TextContent).Text
	assert.Contains(t, text, "func main() {}")
	assert.Contains(t, text, "```go")
}

func TestPromptsRequireArguments(t *testing.T) {
	s := newTestServer(t)
	empty := &sdk.GetPromptRequest{Params: &sdk.GetPromptParams{}}

	_, err := s.handleExplainCodePrompt(context.Background(), empty)
	assert.Error(t, err)
	_, err = s.handleWriteDocumentationPrompt(context.Background(), empty)
	assert.Error(t, err)
	_, err = s.handleCodeExamplePrompt(context.Background(), empty)
	assert.Error(t, err)
}

func TestWriteDocumentationPrompt(t *testing.T) {
	s := newTestServer(t)

	req := &sdk.GetPromptRequest{Params: &sdk.GetPromptParams{
		Arguments: map[string]string{"topic": "rate limiting", "audience": "contributors"},
	}}
	res, err := s.handleWriteDocumentationPrompt(context.Background(), req)
	require.NoError(t, err)
	text := res.Messages[0].Content.(*sdk.TextContent).Text
	assert.Contains(t, text, "rate limiting")
	assert.Contains(t, text, "contributors")
}

func TestStatusResource(t *testing.T) {
	s := newTestServer(t, config.Repository{Name: "docs", URL: "https://example.com/docs.git"})

	res, err := s.handleStatusResource(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, statusResourceURI, res.Contents[0].URI)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	assert.Contains(t, res.Contents[0].Text, `"docs"`)
}

func TestStatsResource(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleStatsResource(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, statsResourceURI, res.Contents[0].URI)
	assert.Contains(t, res.Contents[0].Text, "vector")
}
