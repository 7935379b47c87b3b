package index

import (
	"bufio"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/errors"
)

// LocalIndex is an in-process vector index on a pure Go HNSW graph, with
// chunk payloads held in memory and optional snapshot persistence.
type LocalIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int
	path       string

	// string chunk ID <-> graph key
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	chunks map[string]*docs.Chunk // by chunk ID
	byDoc  map[string][]string    // document ID -> chunk IDs
	closed bool
}

// localSnapshot is the gob-persisted form of the index. The graph is
// rebuilt from chunk embeddings on load.
type localSnapshot struct {
	Dimensions int
	Chunks     []*docs.Chunk
}

// LocalOptions configures a LocalIndex.
type LocalOptions struct {
	Dimensions int
	// Path is the snapshot file. Empty disables persistence.
	Path string
}

// NewLocalIndex creates the in-process backend, loading a prior snapshot
// from Path when one exists.
func NewLocalIndex(opts LocalOptions) (*LocalIndex, error) {
	if opts.Dimensions <= 0 {
		opts.Dimensions = 384
	}

	idx := &LocalIndex{
		graph:      newGraph(),
		dimensions: opts.Dimensions,
		path:       opts.Path,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
		chunks:     make(map[string]*docs.Chunk),
		byDoc:      make(map[string][]string),
	}

	if opts.Path != "" {
		if err := idx.load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 40
	g.Ml = 0.25
	return g
}

// Upsert inserts or replaces chunks by ID.
func (idx *LocalIndex) Upsert(ctx context.Context, chunks []*docs.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return errors.New(errors.KindFatal, "index is closed")
	}

	for _, c := range chunks {
		if len(c.Embedding) != idx.dimensions {
			return errors.Newf(errors.KindValidation,
				"chunk %s: embedding dimension %d, index expects %d", c.ID, len(c.Embedding), idx.dimensions)
		}
	}

	for _, c := range chunks {
		idx.upsertLocked(c)
	}
	return nil
}

func (idx *LocalIndex) upsertLocked(c *docs.Chunk) {
	// Lazy deletion on replace: orphan the old graph key rather than
	// removing the node, which coder/hnsw handles poorly for last nodes.
	if oldKey, exists := idx.idMap[c.ID]; exists {
		delete(idx.keyMap, oldKey)
		delete(idx.idMap, c.ID)
	} else {
		idx.byDoc[c.DocumentID] = append(idx.byDoc[c.DocumentID], c.ID)
	}

	key := idx.nextKey
	idx.nextKey++

	vec := make([]float32, len(c.Embedding))
	copy(vec, c.Embedding)

	idx.graph.Add(hnsw.MakeNode(key, vec))
	idx.idMap[c.ID] = key
	idx.keyMap[key] = c.ID
	idx.chunks[c.ID] = c
}

// Search returns the nearest chunks, best first. When a filter is set the
// graph is over-queried so post-filtering still fills the limit.
func (idx *LocalIndex) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, errors.New(errors.KindFatal, "index is closed")
	}
	if len(vector) != idx.dimensions {
		return nil, errors.Newf(errors.KindValidation,
			"query dimension %d, index expects %d", len(vector), idx.dimensions)
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if idx.graph.Len() == 0 {
		return []SearchResult{}, nil
	}

	k := opts.Limit
	if opts.Filter != nil {
		k *= 4
	}
	// Lazy-deleted nodes still occupy the graph, so over-fetch by the
	// number of orphaned graph entries.
	k += idx.graph.Len() - len(idx.keyMap) + 4

	query := make([]float32, len(vector))
	copy(query, vector)

	nodes := idx.graph.Search(query, k)
	results := make([]SearchResult, 0, opts.Limit)
	for _, node := range nodes {
		id, ok := idx.keyMap[node.Key]
		if !ok {
			continue // lazily deleted
		}
		chunk := idx.chunks[id]
		if !opts.Filter.Matches(chunk) {
			continue
		}
		score := 1 - float64(idx.graph.Distance(query, node.Value))
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		results = append(results, SearchResult{Chunk: chunk, Score: score})
		if len(results) >= opts.Limit {
			break
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// SearchByMetadata scans stored chunks against the filter.
func (idx *LocalIndex) SearchByMetadata(ctx context.Context, filter *Filter, limit int) ([]*docs.Chunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, errors.New(errors.KindFatal, "index is closed")
	}
	if limit <= 0 {
		limit = 100
	}

	ids := make([]string, 0, len(idx.chunks))
	for id := range idx.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic scan order

	var out []*docs.Chunk
	for _, id := range ids {
		c := idx.chunks[id]
		if filter.Matches(c) {
			out = append(out, c)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// DeleteByDocument removes all chunks of one document.
func (idx *LocalIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return errors.New(errors.KindFatal, "index is closed")
	}
	for _, id := range idx.byDoc[documentID] {
		idx.deleteChunkLocked(id)
	}
	delete(idx.byDoc, documentID)
	return nil
}

// DeleteByRepository removes all chunks of one repository.
func (idx *LocalIndex) DeleteByRepository(ctx context.Context, repository string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return errors.New(errors.KindFatal, "index is closed")
	}
	for docID, ids := range idx.byDoc {
		match := false
		for _, id := range ids {
			if c, ok := idx.chunks[id]; ok && c.Repository == repository {
				match = true
				break
			}
		}
		if match {
			for _, id := range ids {
				idx.deleteChunkLocked(id)
			}
			delete(idx.byDoc, docID)
		}
	}
	return nil
}

func (idx *LocalIndex) deleteChunkLocked(id string) {
	if key, ok := idx.idMap[id]; ok {
		delete(idx.keyMap, key)
		delete(idx.idMap, id)
	}
	delete(idx.chunks, id)
}

// Stats reports index contents.
func (idx *LocalIndex) Stats(ctx context.Context) (*Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, errors.New(errors.KindFatal, "index is closed")
	}

	byRepo := make(map[string]int)
	docSet := make(map[string]struct{})
	for _, c := range idx.chunks {
		byRepo[c.Repository]++
		docSet[c.DocumentID] = struct{}{}
	}
	return &Stats{
		Backend:      BackendLocal,
		Dimensions:   idx.dimensions,
		Chunks:       len(idx.chunks),
		Documents:    len(docSet),
		Repositories: byRepo,
	}, nil
}

// Save writes a snapshot of all chunks (with embeddings) to disk atomically.
func (idx *LocalIndex) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.path == "" {
		return nil
	}

	snap := localSnapshot{Dimensions: idx.dimensions}
	snap.Chunks = make([]*docs.Chunk, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		snap.Chunks = append(snap.Chunks, c)
	}
	sort.Slice(snap.Chunks, func(i, j int) bool { return snap.Chunks[i].ID < snap.Chunks[j].ID })

	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return errors.Wrap(err, errors.KindFatal, "create index directory")
	}
	tmp := idx.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, errors.KindFatal, "create index snapshot")
	}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(&snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.KindFatal, "encode index snapshot")
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.KindFatal, "flush index snapshot")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.KindFatal, "close index snapshot")
	}
	return os.Rename(tmp, idx.path)
}

// load rebuilds the graph from a prior snapshot, if present.
func (idx *LocalIndex) load() error {
	f, err := os.Open(idx.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.KindFatal, "open index snapshot")
	}
	defer func() { _ = f.Close() }()

	var snap localSnapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&snap); err != nil {
		return errors.Wrap(err, errors.KindFatal, "decode index snapshot")
	}
	if snap.Dimensions != idx.dimensions {
		// Dimension change means a different embedding model; start fresh.
		return nil
	}
	for _, c := range snap.Chunks {
		if len(c.Embedding) == idx.dimensions {
			idx.upsertLocked(c)
		}
	}
	return nil
}

// Close snapshots to disk (when persistence is enabled) and shuts down.
func (idx *LocalIndex) Close() error {
	if err := idx.Save(); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.closed = true
	idx.mu.Unlock()
	return nil
}

var _ VectorIndex = (*LocalIndex)(nil)
