package index

import (
	"context"
	"encoding/json"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/errors"
)

// DefaultCollection is the Qdrant collection name when none is configured.
const DefaultCollection = "documentation"

// chunkIDNamespace seeds deterministic point UUIDs so the same chunk always
// maps to the same Qdrant point.
var chunkIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docscout/chunk"))

// QdrantIndex stores chunk embeddings in a Qdrant collection. Chunk payloads
// travel with the points, so the index is the single source of truth for
// search results.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimensions int
}

// QdrantOptions configures a QdrantIndex.
type QdrantOptions struct {
	// URL is "host:port" for the gRPC endpoint, default port 6334.
	URL        string
	Collection string
	Dimensions int
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists.
func NewQdrantIndex(ctx context.Context, opts QdrantOptions) (*QdrantIndex, error) {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 384
	}

	host, portStr, err := net.SplitHostPort(opts.URL)
	if err != nil {
		host = opts.URL
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.Newf(errors.KindValidation, "invalid qdrant url %q", opts.URL)
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindBackend, "create qdrant client")
	}

	idx := &QdrantIndex{client: client, collection: opts.Collection, dimensions: opts.Dimensions}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := idx.client.CollectionExists(ctx, idx.collection)
	if err != nil {
		return errors.Wrap(err, errors.KindTransient, "check qdrant collection")
	}
	if exists {
		return nil
	}
	err = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(idx.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return errors.Wrap(err, errors.KindBackend, "create qdrant collection")
	}
	return nil
}

// pointID derives the stable UUID for a chunk ID.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(chunkIDNamespace, []byte(chunkID)).String())
}

// Upsert inserts or replaces chunks by their derived point IDs.
func (idx *QdrantIndex) Upsert(ctx context.Context, chunks []*docs.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != idx.dimensions {
			return errors.Newf(errors.KindValidation,
				"chunk %s: embedding dimension %d, index expects %d", c.ID, len(c.Embedding), idx.dimensions)
		}
		body, err := json.Marshal(c)
		if err != nil {
			return errors.Wrap(err, errors.KindFatal, "encode chunk payload")
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: map[string]*qdrant.Value{
				"originalId": qdrant.NewValueString(c.ID),
				"documentId": qdrant.NewValueString(c.DocumentID),
				"repository": qdrant.NewValueString(c.Repository),
				"filePath":   qdrant.NewValueString(c.FilePath),
				"type":       qdrant.NewValueString(string(c.Type)),
				"content":    qdrant.NewValueString(c.Content),
				"chunk":      qdrant.NewValueString(string(body)),
			},
		})
	}

	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return errors.Wrap(err, errors.KindTransient, "qdrant upsert")
	}
	return nil
}

// qdrantFilter maps the server-enforceable parts of a Filter. Glob and
// metadata conditions are applied client-side after over-fetching.
func qdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	var qf qdrant.Filter
	if len(f.Repositories) > 0 {
		for _, repo := range f.Repositories {
			qf.Should = append(qf.Should, qdrant.NewMatch("repository", repo))
		}
	}
	if len(f.Types) == 1 {
		qf.Must = append(qf.Must, qdrant.NewMatch("type", string(f.Types[0])))
	}
	if len(qf.Must) == 0 && len(qf.Should) == 0 {
		return nil
	}
	return &qf
}

// Search queries the collection and decodes chunk payloads.
func (idx *QdrantIndex) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(vector) != idx.dimensions {
		return nil, errors.Newf(errors.KindValidation,
			"query dimension %d, index expects %d", len(vector), idx.dimensions)
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	fetch := uint64(opts.Limit)
	if opts.Filter != nil && (opts.Filter.PathGlob != "" || len(opts.Filter.Metadata) > 0) {
		fetch *= 4
	}

	query := &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(fetch),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         qdrantFilter(opts.Filter),
	}
	if opts.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(float32(opts.ScoreThreshold))
	}

	points, err := idx.client.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "qdrant query")
	}

	results := make([]SearchResult, 0, opts.Limit)
	for _, p := range points {
		chunk, err := decodeChunkPayload(p.Payload)
		if err != nil {
			continue
		}
		if !opts.Filter.Matches(chunk) {
			continue
		}
		results = append(results, SearchResult{Chunk: chunk, Score: float64(p.Score)})
		if len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

// SearchByMetadata scrolls the collection and filters client-side.
func (idx *QdrantIndex) SearchByMetadata(ctx context.Context, filter *Filter, limit int) ([]*docs.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []*docs.Chunk
	var offset *qdrant.PointId
	for {
		points, err := idx.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: idx.collection,
			Filter:         qdrantFilter(filter),
			Limit:          qdrant.PtrOf(uint32(256)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.KindTransient, "qdrant scroll")
		}
		if len(points) == 0 {
			return out, nil
		}
		for _, p := range points {
			chunk, err := decodeChunkPayload(p.Payload)
			if err != nil {
				continue
			}
			if filter.Matches(chunk) {
				out = append(out, chunk)
				if len(out) >= limit {
					return out, nil
				}
			}
		}
		offset = points[len(points)-1].Id
	}
}

// DeleteByDocument removes all points carrying the document ID.
func (idx *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	return idx.deleteByMatch(ctx, "documentId", documentID)
}

// DeleteByRepository removes all points carrying the repository name.
func (idx *QdrantIndex) DeleteByRepository(ctx context.Context, repository string) error {
	return idx.deleteByMatch(ctx, "repository", repository)
}

func (idx *QdrantIndex) deleteByMatch(ctx context.Context, field, value string) error {
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatch(field, value)},
				},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return errors.Wrap(err, errors.KindTransient, "qdrant delete")
	}
	return nil
}

// Stats counts points and aggregates per-repository totals by scrolling
// payload summaries.
func (idx *QdrantIndex) Stats(ctx context.Context) (*Stats, error) {
	total, err := idx.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: idx.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "qdrant count")
	}

	byRepo := make(map[string]int)
	docSet := make(map[string]struct{})
	var offset *qdrant.PointId
	for {
		points, err := idx.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: idx.collection,
			Limit:          qdrant.PtrOf(uint32(1024)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("repository", "documentId"),
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.KindTransient, "qdrant scroll")
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			if v, ok := p.Payload["repository"]; ok {
				byRepo[v.GetStringValue()]++
			}
			if v, ok := p.Payload["documentId"]; ok {
				docSet[v.GetStringValue()] = struct{}{}
			}
		}
		offset = points[len(points)-1].Id
	}

	return &Stats{
		Backend:      BackendQdrant,
		Dimensions:   idx.dimensions,
		Chunks:       int(total),
		Documents:    len(docSet),
		Repositories: byRepo,
	}, nil
}

// Close shuts down the client connection.
func (idx *QdrantIndex) Close() error {
	return idx.client.Close()
}

func decodeChunkPayload(payload map[string]*qdrant.Value) (*docs.Chunk, error) {
	raw, ok := payload["chunk"]
	if !ok {
		return nil, errors.New(errors.KindBackend, "point missing chunk payload")
	}
	var chunk docs.Chunk
	if err := json.Unmarshal([]byte(raw.GetStringValue()), &chunk); err != nil {
		return nil, errors.Wrap(err, errors.KindBackend, "decode chunk payload")
	}
	// Content carries the json:"-" tag; restore it from its own field.
	if c, ok := payload["content"]; ok {
		chunk.Content = c.GetStringValue()
	}
	return &chunk, nil
}

var _ VectorIndex = (*QdrantIndex)(nil)
