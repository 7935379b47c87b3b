package embed

import (
	"context"
	"sync"
	"time"
)

// Batcher coalesces concurrent embedding requests into provider batches.
// Requests accumulate until the batch is full or the batch window elapses,
// whichever comes first. If a batch call fails, each text is retried
// individually so one bad input cannot sink its neighbors.
type Batcher struct {
	inner     Embedder
	batchSize int
	window    time.Duration

	mu      sync.Mutex
	pending []*batchRequest
	timer   *time.Timer
	closed  bool
}

type batchRequest struct {
	ctx  context.Context
	text string
	done chan batchResult
}

type batchResult struct {
	vec []float32
	err error
}

var _ Embedder = (*Batcher)(nil)

// NewBatcher wraps inner with request coalescing.
func NewBatcher(inner Embedder, batchSize int, window time.Duration) *Batcher {
	if batchSize < MinBatchSize {
		batchSize = MinBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if window <= 0 {
		window = BatchWindow
	}
	return &Batcher{inner: inner, batchSize: batchSize, window: window}
}

// Embed enqueues the text and waits for its batch to complete.
func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &batchRequest{ctx: ctx, text: text, done: make(chan batchResult, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return b.inner.Embed(ctx, text)
	}
	b.pending = append(b.pending, req)
	if len(b.pending) >= b.batchSize {
		batch := b.takeLocked()
		b.mu.Unlock()
		go b.flush(batch)
	} else {
		if b.timer == nil {
			b.timer = time.AfterFunc(b.window, b.flushPending)
		}
		b.mu.Unlock()
	}

	select {
	case res := <-req.done:
		return res.vec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedBatch bypasses coalescing: the caller already has a batch.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.batchSize {
		return b.inner.EmbedBatch(ctx, texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := b.inner.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// takeLocked drains the pending queue and stops the window timer.
// Callers must hold b.mu.
func (b *Batcher) takeLocked() []*batchRequest {
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}

func (b *Batcher) flushPending() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	b.flush(batch)
}

func (b *Batcher) flush(batch []*batchRequest) {
	if len(batch) == 0 {
		return
	}

	texts := make([]string, len(batch))
	for i, req := range batch {
		texts[i] = req.text
	}

	// Use the batch window's own deadline context, not any single caller's.
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	vecs, err := b.inner.EmbedBatch(ctx, texts)
	if err == nil {
		for i, req := range batch {
			req.done <- batchResult{vec: vecs[i]}
		}
		return
	}

	// Per-item fallback isolates a failing text.
	for _, req := range batch {
		vec, itemErr := b.inner.Embed(req.ctx, req.text)
		req.done <- batchResult{vec: vec, err: itemErr}
	}
}

// Dimensions returns the embedding dimension.
func (b *Batcher) Dimensions() int { return b.inner.Dimensions() }

// ModelName returns the model identifier.
func (b *Batcher) ModelName() string { return b.inner.ModelName() }

// Available reports readiness of the inner embedder.
func (b *Batcher) Available(ctx context.Context) bool { return b.inner.Available(ctx) }

// Close flushes any pending batch and closes the inner embedder.
func (b *Batcher) Close() error {
	b.mu.Lock()
	b.closed = true
	batch := b.takeLocked()
	b.mu.Unlock()
	b.flush(batch)
	return b.inner.Close()
}
