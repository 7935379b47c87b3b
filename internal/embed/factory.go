package embed

import (
	"context"
	"log/slog"

	"github.com/docscout/docscout/internal/config"
)

// New builds the embedding stack from configuration: provider, request
// batcher, and LRU cache (outermost, so cache hits skip the batch window).
// Every provider produces vectors of the given dimension, so the embedder
// always agrees with the vector index it feeds. When the configured provider
// is unreachable the static embedder takes over so indexing and search keep
// working offline.
func New(ctx context.Context, cfg config.Embeddings, dims int, logger *slog.Logger) Embedder {
	provider := newProvider(ctx, cfg, dims, logger)
	batched := NewBatcher(provider, cfg.BatchSize, BatchWindow)
	return NewCachedEmbedder(batched, cfg.CacheSize)
}

func newProvider(ctx context.Context, cfg config.Embeddings, dims int, logger *slog.Logger) Embedder {
	switch cfg.Provider {
	case "ollama":
		ollama := NewOllamaEmbedder(OllamaConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: dims,
		})
		if ollama.Available(ctx) {
			logger.Info("embedding provider ready",
				slog.String("provider", "ollama"),
				slog.String("model", ollama.ModelName()))
			return ollama
		}
		logger.Warn("embedding provider unavailable, falling back to static embeddings",
			slog.String("provider", "ollama"),
			slog.String("endpoint", ollama.config.Endpoint))
		_ = ollama.Close()
		return NewStaticEmbedder(dims)
	default:
		logger.Info("embedding provider ready", slog.String("provider", "static"))
		return NewStaticEmbedder(dims)
	}
}
