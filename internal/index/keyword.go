package index

import (
	"context"
	"encoding/json"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/errors"
)

// KeywordIndex is a Bleve full-text index over chunk content, used for the
// keyword search strategy and the lexical half of hybrid search.
type KeywordIndex struct {
	idx bleve.Index
}

// keywordDoc is the indexed form of a chunk. Blob carries the full chunk
// JSON as a stored field so hits decode without a second lookup.
type keywordDoc struct {
	Content    string `json:"content"`
	Section    string `json:"section"`
	Repository string `json:"repository"`
	DocumentID string `json:"documentId"`
	FilePath   string `json:"filePath"`
	Type       string `json:"type"`
	Blob       string `json:"blob"`
}

// NewKeywordIndex opens or creates the index at path. An empty path builds
// an in-memory index, used in tests and degraded setups.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	var idx bleve.Index
	var err error

	if path == "" {
		idx, err = bleve.NewMemOnly(keywordMapping())
	} else if _, statErr := os.Stat(path); statErr == nil {
		idx, err = bleve.Open(path)
	} else {
		idx, err = bleve.New(path, keywordMapping())
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindBackend, "open keyword index")
	}
	return &KeywordIndex{idx: idx}, nil
}

func keywordMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()

	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name

	blob := bleve.NewTextFieldMapping()
	blob.Index = false
	blob.Store = true
	blob.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("section", text)
	doc.AddFieldMappingsAt("repository", kw)
	doc.AddFieldMappingsAt("documentId", kw)
	doc.AddFieldMappingsAt("filePath", kw)
	doc.AddFieldMappingsAt("type", kw)
	doc.AddFieldMappingsAt("blob", blob)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Upsert indexes or reindexes chunks in one batch.
func (k *KeywordIndex) Upsert(ctx context.Context, chunks []*docs.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := k.idx.NewBatch()
	for _, c := range chunks {
		body, err := json.Marshal(c)
		if err != nil {
			return errors.Wrap(err, errors.KindFatal, "encode chunk for keyword index")
		}
		doc := keywordDoc{
			Content:    c.Content,
			Section:    c.Section,
			Repository: c.Repository,
			DocumentID: c.DocumentID,
			FilePath:   c.FilePath,
			Type:       string(c.Type),
			Blob:       string(body),
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return errors.Wrap(err, errors.KindBackend, "batch chunk for keyword index")
		}
	}
	if err := k.idx.Batch(batch); err != nil {
		return errors.Wrap(err, errors.KindBackend, "keyword index batch")
	}
	return nil
}

// Search runs a match query over content and section, returning hits best
// first with scores normalized to [0, 1] against the top hit.
func (k *KeywordIndex) Search(ctx context.Context, text string, limit int, filter *Filter) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	match := bleve.NewMatchQuery(text)
	var q query.Query = match
	if filter != nil && len(filter.Repositories) > 0 {
		repos := make([]query.Query, 0, len(filter.Repositories))
		for _, repo := range filter.Repositories {
			tq := bleve.NewTermQuery(repo)
			tq.SetField("repository")
			repos = append(repos, tq)
		}
		q = bleve.NewConjunctionQuery(match, bleve.NewDisjunctionQuery(repos...))
	}

	req := bleve.NewSearchRequestOptions(q, limit*4, 0, false)
	req.Fields = []string{"blob", "content"}

	res, err := k.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindBackend, "keyword search")
	}
	if len(res.Hits) == 0 {
		return []SearchResult{}, nil
	}

	top := res.Hits[0].Score
	results := make([]SearchResult, 0, limit)
	for _, hit := range res.Hits {
		blob, _ := hit.Fields["blob"].(string)
		var chunk docs.Chunk
		if err := json.Unmarshal([]byte(blob), &chunk); err != nil {
			continue
		}
		// The blob already carries the full chunk; prefer the indexed
		// content field in case the two ever drift.
		if content, ok := hit.Fields["content"].(string); ok {
			chunk.Content = content
		}
		if !filter.Matches(&chunk) {
			continue
		}
		score := 0.0
		if top > 0 {
			score = hit.Score / top
		}
		results = append(results, SearchResult{Chunk: &chunk, Score: score})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// DeleteByDocument removes all chunks of one document.
func (k *KeywordIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	return k.deleteByTerm(ctx, "documentId", documentID)
}

// DeleteByRepository removes all chunks of one repository.
func (k *KeywordIndex) DeleteByRepository(ctx context.Context, repository string) error {
	return k.deleteByTerm(ctx, "repository", repository)
}

func (k *KeywordIndex) deleteByTerm(ctx context.Context, field, value string) error {
	tq := bleve.NewTermQuery(value)
	tq.SetField(field)

	for {
		req := bleve.NewSearchRequestOptions(tq, 1024, 0, false)
		res, err := k.idx.SearchInContext(ctx, req)
		if err != nil {
			return errors.Wrap(err, errors.KindBackend, "keyword delete query")
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := k.idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := k.idx.Batch(batch); err != nil {
			return errors.Wrap(err, errors.KindBackend, "keyword delete batch")
		}
	}
}

// Count returns the number of indexed chunks.
func (k *KeywordIndex) Count() (uint64, error) {
	return k.idx.DocCount()
}

// Close releases the underlying index.
func (k *KeywordIndex) Close() error {
	return k.idx.Close()
}
