package docs

import (
	"strings"
	"time"

	"github.com/docscout/docscout/internal/errors"
)

// Processor turns source files into documents and chunks.
// Process is pure with respect to its inputs: identical input yields
// identical IDs, hashes, and ordering.
type Processor struct {
	maxChunkSize int
	overlapSize  int
}

// Option configures a Processor.
type Option func(*Processor)

// WithMaxChunkSize overrides the chunk size cap.
func WithMaxChunkSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxChunkSize = n
		}
	}
}

// WithOverlapSize overrides the chunk overlap.
func WithOverlapSize(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.overlapSize = n
		}
	}
}

// NewProcessor creates a Processor with default chunking parameters.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		maxChunkSize: DefaultMaxChunkSize,
		overlapSize:  DefaultOverlapSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process parses a file into a document and its chunks.
// Binary files and files over MaxFileSize are rejected.
func (p *Processor) Process(path string, content []byte, repository string) (*Document, []*Chunk, error) {
	if len(content) > MaxFileSize {
		return nil, nil, errors.Newf(errors.KindSecurity, "file %s exceeds size cap (%d bytes)", path, len(content))
	}
	if IsBinary(content) {
		return nil, nil, errors.Newf(errors.KindValidation, "file %s is binary", path)
	}

	docType, language := DetectType(path, content)
	raw := string(content)

	var meta map[string]string
	body := raw
	lineOffset := 0
	if docType == TypeMarkdown {
		meta, body = extractFrontMatter(raw)
		lineOffset = strings.Count(raw[:len(raw)-len(body)], "\n")
	}

	body = sanitizeContent(body)
	meta = sanitizeMetadata(meta)
	if meta == nil {
		meta = map[string]string{}
	}
	if language != "" {
		meta["language"] = language
	}

	contentHash := ContentHash(raw)
	doc := &Document{
		ID:          DocumentID(repository, path, contentHash),
		Repository:  repository,
		FilePath:    path,
		Type:        docType,
		Metadata:    meta,
		Content:     body,
		ContentHash: contentHash,
		ModifiedAt:  time.Now().UTC(),
	}

	var chunks []*Chunk
	switch docType {
	case TypeMarkdown:
		chunks = p.chunkStructured(doc, parseMarkdownSections(body), lineOffset, true)
	case TypeRST:
		chunks = p.chunkStructured(doc, parseRSTSections(body), 0, false)
	case TypeHTML:
		chunks = p.chunkStructured(doc, parseHTMLSections(body), 0, false)
	case TypeCode:
		chunks = p.chunkPlain(doc, body, ChunkCode)
	case TypeStructured:
		chunks = p.chunkPlain(doc, body, ChunkOther)
	default:
		chunks = p.chunkPlain(doc, body, ChunkParagraph)
	}

	chunks = dedupeChunks(chunks)

	doc.ChunkIDs = make([]string, len(chunks))
	for i, c := range chunks {
		doc.ChunkIDs[i] = c.ID
	}
	return doc, chunks, nil
}

// dedupeChunks drops repeated chunk IDs, keeping the first occurrence.
// Identical sections in one document derive identical IDs; downstream
// stores key chunks by ID, so a document must not emit the same ID twice.
func dedupeChunks(chunks []*Chunk) []*Chunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		c.ChildIDs = dedupeIDs(c.ChildIDs)
		out = append(out, c)
	}
	return out
}

func dedupeIDs(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
