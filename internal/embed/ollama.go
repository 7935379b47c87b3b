package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/docscout/docscout/internal/errors"
)

// Ollama defaults.
const (
	DefaultOllamaEndpoint = "http://localhost:11434"
	DefaultOllamaModel    = "all-minilm"
)

// OllamaConfig configures the Ollama HTTP embedder.
type OllamaConfig struct {
	Endpoint   string
	Model      string
	Dimensions int
	Timeout    time.Duration
	PoolSize   int
}

// OllamaEmbedder generates embeddings through Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama-backed embedder. It does not probe the
// server; callers use Available to decide whether to fall back.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOllamaEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	// No client-level timeout: per-request context timeouts control deadlines.
	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request, with
// retry on transient failures.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errors.New(errors.KindFatal, "embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	return errors.RetryWithResult(ctx, errors.DefaultRetryConfig(), func() ([][]float32, error) {
		return e.embedOnce(ctx, texts)
	})
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "encode embed request")
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "build embed request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "embedding provider unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := errors.KindBackend
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = errors.KindTransient
		}
		return nil, errors.Newf(kind, "embedding provider returned %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, errors.KindBackend, "decode embed response")
	}
	if len(result.Embeddings) != len(texts) {
		return nil, errors.Newf(errors.KindBackend, "embedding count mismatch: got %d for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, vec := range result.Embeddings {
		if len(vec) != e.dims {
			return nil, errors.Newf(errors.KindBackend, "embedding dimension mismatch: got %d, want %d", len(vec), e.dims)
		}
		out[i] = normalizeVector(vec)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName returns the configured model.
func (e *OllamaEmbedder) ModelName() string { return e.config.Model }

// Available probes the server's tag listing with a short timeout.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close shuts down idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.transport.CloseIdleConnections()
	return nil
}
