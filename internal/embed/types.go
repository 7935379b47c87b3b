package embed

import (
	"context"
	"math"
	"time"
)

// Embedding constants.
const (
	// DefaultDimensions is the embedding dimension used across providers.
	DefaultDimensions = 384

	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize is the maximum texts per provider call.
	MaxBatchSize = 32

	// BatchWindow is how long the batcher waits to coalesce requests.
	BatchWindow = 50 * time.Millisecond

	// DefaultTimeout bounds a single provider round trip.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheSize is the number of embeddings kept in the LRU cache.
	DefaultCacheSize = 10000
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result is
	// positionally aligned with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is ready to serve.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
