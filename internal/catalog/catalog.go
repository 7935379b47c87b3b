// Package catalog persists documents and chunks in SQLite. It backs
// metadata search, stats, deletion cascades, and the degraded substring
// search used when embeddings are unavailable.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	repository    TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	doc_type      TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '{}',
	modified_at   TEXT NOT NULL,
	UNIQUE (repository, file_path)
);

CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	repository      TEXT NOT NULL,
	file_path       TEXT NOT NULL,
	chunk_type      TEXT NOT NULL,
	content         TEXT NOT NULL,
	start_line      INTEGER NOT NULL,
	end_line        INTEGER NOT NULL,
	parent_id       TEXT NOT NULL DEFAULT '',
	child_ids       TEXT NOT NULL DEFAULT '[]',
	section         TEXT NOT NULL DEFAULT '',
	heading_context TEXT NOT NULL DEFAULT '[]',
	metadata        TEXT NOT NULL DEFAULT '{}',
	hash            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_repository ON chunks(repository);
CREATE INDEX IF NOT EXISTS idx_documents_repository ON documents(repository);
`

// Catalog is the SQLite-backed document store.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the catalog database at path. ":memory:" gives an
// ephemeral catalog for tests.
func Open(path string) (*Catalog, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = path + "?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "open catalog database")
	}
	// modernc.org/sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent indexing.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.KindFatal, "apply catalog schema")
	}
	return &Catalog{db: db}, nil
}

// ReplaceDocument atomically replaces any prior version of the document at
// (repository, file path) and inserts the new document with its chunks.
// It returns the IDs of documents it displaced so callers can cascade
// deletions into the vector and keyword indexes.
func (c *Catalog) ReplaceDocument(ctx context.Context, doc *docs.Document, chunks []*docs.Chunk) ([]string, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "begin catalog transaction")
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM documents WHERE repository = ? AND file_path = ? AND id != ?`,
		doc.Repository, doc.FilePath, doc.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "query displaced documents")
	}
	var displaced []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, errors.KindFatal, "scan displaced document")
		}
		displaced = append(displaced, id)
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "close displaced rows")
	}

	for _, id := range displaced {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return nil, errors.Wrap(err, errors.KindFatal, "delete displaced document")
		}
	}
	// Replacing the same ID re-inserts its chunks.
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, doc.ID); err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "delete prior document")
	}

	meta, _ := json.Marshal(doc.Metadata)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, repository, file_path, doc_type, content_hash, metadata, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Repository, doc.FilePath, string(doc.Type), doc.ContentHash,
		string(meta), doc.ModifiedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "insert document")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, repository, file_path, chunk_type, content,
		 start_line, end_line, parent_id, child_ids, section, heading_context, metadata, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "prepare chunk insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, ch := range chunks {
		childIDs, _ := json.Marshal(ch.ChildIDs)
		headings, _ := json.Marshal(ch.HeadingContext)
		chunkMeta, _ := json.Marshal(ch.Metadata)
		_, err = stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Repository, ch.FilePath, string(ch.Type), ch.Content,
			ch.StartLine, ch.EndLine, ch.ParentID, string(childIDs), ch.Section,
			string(headings), string(chunkMeta), ch.Hash)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindFatal, "insert chunk")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "commit catalog transaction")
	}
	return displaced, nil
}

// Document fetches one document by ID.
func (c *Catalog) Document(ctx context.Context, id string) (*docs.Document, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, repository, file_path, doc_type, content_hash, metadata, modified_at
		 FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.KindNotFound, "document %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "scan document")
	}
	doc.ChunkIDs, err = c.chunkIDs(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DocumentByPath fetches the document at (repository, file path).
func (c *Catalog) DocumentByPath(ctx context.Context, repository, filePath string) (*docs.Document, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, repository, file_path, doc_type, content_hash, metadata, modified_at
		 FROM documents WHERE repository = ? AND file_path = ?`, repository, filePath)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.KindNotFound, "document %s/%s not found", repository, filePath)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "scan document")
	}
	doc.ChunkIDs, err = c.chunkIDs(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Catalog) chunkIDs(ctx context.Context, docID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE document_id = ? ORDER BY start_line, id`, docID)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "query chunk ids")
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.KindFatal, "scan chunk id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Chunk fetches one chunk by ID.
func (c *Catalog) Chunk(ctx context.Context, id string) (*docs.Chunk, error) {
	row := c.db.QueryRowContext(ctx, chunkSelect+` WHERE id = ?`, id)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.KindNotFound, "chunk %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "scan chunk")
	}
	return chunk, nil
}

// ChunksByDocument returns a document's chunks in document order.
func (c *Catalog) ChunksByDocument(ctx context.Context, docID string) ([]*docs.Chunk, error) {
	return c.queryChunks(ctx, chunkSelect+` WHERE document_id = ? ORDER BY start_line, id`, docID)
}

// ChunksByIDs returns the chunks for the given IDs; missing IDs are skipped.
func (c *Catalog) ChunksByIDs(ctx context.Context, ids []string) ([]*docs.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return c.queryChunks(ctx, chunkSelect+` WHERE id IN (`+placeholders+`)`, args...)
}

// DeleteDocument removes a document and, via foreign key cascade, its chunks.
func (c *Catalog) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, errors.KindFatal, "delete document")
	}
	return nil
}

// DeleteRepository removes all documents and chunks of one repository.
func (c *Catalog) DeleteRepository(ctx context.Context, repository string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE repository = ?`, repository)
	if err != nil {
		return errors.Wrap(err, errors.KindFatal, "delete repository documents")
	}
	return nil
}

// SearchSubstring is the degraded-mode search: case-insensitive substring
// match over chunk content, constant relevance.
func (c *Catalog) SearchSubstring(ctx context.Context, query string, repositories []string, limit int) ([]*docs.Chunk, error) {
	if limit <= 0 {
		limit = 20
	}
	sb := strings.Builder{}
	sb.WriteString(chunkSelect)
	sb.WriteString(` WHERE content LIKE ? ESCAPE '\'`)
	args := []any{"%" + escapeLike(query) + "%"}
	if len(repositories) > 0 {
		sb.WriteString(` AND repository IN (` + strings.Repeat("?,", len(repositories)-1) + `?)`)
		for _, r := range repositories {
			args = append(args, r)
		}
	}
	sb.WriteString(` ORDER BY repository, file_path, start_line LIMIT ?`)
	args = append(args, limit)
	return c.queryChunks(ctx, sb.String(), args...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// RepositoryStats summarizes one repository's indexed content.
type RepositoryStats struct {
	Repository string `json:"repository"`
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
}

// Stats returns per-repository document and chunk counts.
func (c *Catalog) Stats(ctx context.Context) ([]RepositoryStats, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT d.repository, COUNT(DISTINCT d.id), COUNT(ch.id)
		FROM documents d LEFT JOIN chunks ch ON ch.document_id = d.id
		GROUP BY d.repository ORDER BY d.repository`)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "query stats")
	}
	defer func() { _ = rows.Close() }()

	var out []RepositoryStats
	for rows.Next() {
		var s RepositoryStats
		if err := rows.Scan(&s.Repository, &s.Documents, &s.Chunks); err != nil {
			return nil, errors.Wrap(err, errors.KindFatal, "scan stats")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

const chunkSelect = `SELECT id, document_id, repository, file_path, chunk_type, content,
	start_line, end_line, parent_id, child_ids, section, heading_context, metadata, hash
	FROM chunks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*docs.Document, error) {
	var doc docs.Document
	var docType, meta, modified string
	if err := row.Scan(&doc.ID, &doc.Repository, &doc.FilePath, &docType,
		&doc.ContentHash, &meta, &modified); err != nil {
		return nil, err
	}
	doc.Type = docs.DocumentType(docType)
	_ = json.Unmarshal([]byte(meta), &doc.Metadata)
	doc.ModifiedAt, _ = time.Parse(time.RFC3339, modified)
	return &doc, nil
}

func scanChunk(row rowScanner) (*docs.Chunk, error) {
	var ch docs.Chunk
	var chunkType, childIDs, headings, meta string
	if err := row.Scan(&ch.ID, &ch.DocumentID, &ch.Repository, &ch.FilePath, &chunkType,
		&ch.Content, &ch.StartLine, &ch.EndLine, &ch.ParentID, &childIDs, &ch.Section,
		&headings, &meta, &ch.Hash); err != nil {
		return nil, err
	}
	ch.Type = docs.ChunkType(chunkType)
	_ = json.Unmarshal([]byte(childIDs), &ch.ChildIDs)
	_ = json.Unmarshal([]byte(headings), &ch.HeadingContext)
	_ = json.Unmarshal([]byte(meta), &ch.Metadata)
	return &ch, nil
}

func (c *Catalog) queryChunks(ctx context.Context, q string, args ...any) ([]*docs.Chunk, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "query chunks")
	}
	defer func() { _ = rows.Close() }()

	var out []*docs.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindFatal, "scan chunk")
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
