// Package docs parses source files into documents and overlapping,
// boundary-respecting chunks with stable content-derived identity.
package docs

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Chunking defaults.
const (
	// DefaultMaxChunkSize is the target maximum chunk size in characters.
	DefaultMaxChunkSize = 2000
	// DefaultOverlapSize is the number of characters shared between adjacent
	// chunks split from the same section, snapped to a line boundary.
	DefaultOverlapSize = 200
	// MaxFileSize caps input files at 1 MiB.
	MaxFileSize = 1 << 20
)

// DocumentType classifies a parsed source file.
type DocumentType string

const (
	TypeMarkdown   DocumentType = "markdown"
	TypeRST        DocumentType = "rst"
	TypeHTML       DocumentType = "html"
	TypeCode       DocumentType = "code"
	TypeStructured DocumentType = "structured" // yaml, json, xml
	TypePlain      DocumentType = "plain"
)

// ChunkType classifies a chunk by its originating block.
type ChunkType string

const (
	ChunkHeading    ChunkType = "heading"
	ChunkParagraph  ChunkType = "paragraph"
	ChunkCode       ChunkType = "code"
	ChunkList       ChunkType = "list"
	ChunkTable      ChunkType = "table"
	ChunkBlockquote ChunkType = "blockquote"
	ChunkOther      ChunkType = "other"
)

// Document is a parsed source file at a given revision.
type Document struct {
	// ID is the first 16 hex chars of SHA-256(repository || filepath || contentHash).
	ID         string            `json:"id"`
	Repository string            `json:"repository"`
	FilePath   string            `json:"filepath"`
	Type       DocumentType      `json:"type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Content    string            `json:"-"`
	ChunkIDs   []string          `json:"chunkIds"`
	// ContentHash is the SHA-256 of the raw content.
	ContentHash string    `json:"contentHash"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// Chunk is the smallest indexed unit of a document.
type Chunk struct {
	// ID is the first 16 hex chars of SHA-256(documentID || content).
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Repository string    `json:"repository"`
	FilePath   string    `json:"filepath"`
	Type       ChunkType `json:"type"`
	Content    string    `json:"content"`

	StartLine int `json:"startLine,omitempty"`
	EndLine   int `json:"endLine,omitempty"`

	// ParentID and ChildIDs express hierarchical containment: a heading
	// summary chunk links down to its section chunks. The relation is a
	// tree; parents strictly contain children by file position.
	ParentID string   `json:"parentChunkId,omitempty"`
	ChildIDs []string `json:"childChunkIds,omitempty"`

	// Section is the innermost heading; HeadingContext lists the heading
	// path from the document root down to and including Section.
	Section        string   `json:"section,omitempty"`
	HeadingContext []string `json:"headingContext,omitempty"`

	// Metadata inherits the document metadata.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Hash is the SHA-256 of Content.
	Hash string `json:"hash"`

	// Embedding is populated lazily by the embedding provider.
	Embedding []float32 `json:"-"`
}

// IsSummary reports whether the chunk is a non-leaf heading summary.
func (c *Chunk) IsSummary() bool {
	return len(c.ChildIDs) > 0
}

// ContentHash returns the full SHA-256 hex digest of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DocumentID derives the deterministic document identity.
func DocumentID(repository, filepath, contentHash string) string {
	sum := sha256.Sum256([]byte(repository + filepath + contentHash))
	return hex.EncodeToString(sum[:])[:16]
}

// ChunkID derives the deterministic chunk identity. Same content at the same
// document yields the same ID across runs.
func ChunkID(documentID, content string) string {
	sum := sha256.Sum256([]byte(documentID + content))
	return hex.EncodeToString(sum[:])[:16]
}

// EstimateTokens approximates the token count of text (~4 chars per token).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
