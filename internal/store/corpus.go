package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// LockFileName is the cross-process write lock under the data directory.
const LockFileName = ".quarry.lock"

// SQLiteCorpusStore implements CorpusStore backed by SQLite.
// A single write connection in WAL mode keeps mutations transactional;
// failed writes roll back so the visible state stays at the pre-call state.
type SQLiteCorpusStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	lock   *flock.Flock
	closed bool
}

// Verify interface implementation at compile time
var _ CorpusStore = (*SQLiteCorpusStore)(nil)

// OpenCorpus opens or creates a corpus store at path. An empty path creates
// an in-memory store for testing. File-backed stores take an exclusive
// cross-process lock next to the database; a held lock fails fast instead
// of letting two processes interleave writes.
func OpenCorpus(path string) (*SQLiteCorpusStore, error) {
	var (
		dsn      string
		fileLock *flock.Flock
	)

	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, qerrors.StorageWrite(fmt.Sprintf("create data directory %s", dir), err)
		}

		fileLock = flock.New(filepath.Join(dir, LockFileName))
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, qerrors.StorageWrite("acquire corpus lock", err)
		}
		if !locked {
			return nil, qerrors.New(qerrors.ErrCodeLockHeld,
				fmt.Sprintf("corpus at %s is locked by another process", dir), nil).
				WithSuggestion("stop the other quarry process or point --data-dir elsewhere")
		}

		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		releaseLock(fileLock)
		return nil, qerrors.StorageWrite("open corpus database", err)
	}

	// Single writer prevents SQLite lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			releaseLock(fileLock)
			return nil, qerrors.StorageWrite("set pragma", err)
		}
	}

	s := &SQLiteCorpusStore{db: db, path: path, lock: fileLock}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		releaseLock(fileLock)
		return nil, err
	}

	return s, nil
}

func releaseLock(l *flock.Flock) {
	if l == nil {
		return
	}
	if err := l.Unlock(); err != nil {
		slog.Warn("failed to release corpus lock", slog.String("error", err.Error()))
	}
}

// initSchema creates tables and records the schema version.
func (s *SQLiteCorpusStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '',
		published_at TEXT,
		created_at   TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		ordinal     INTEGER NOT NULL,
		text        TEXT NOT NULL,
		page        INTEGER NOT NULL DEFAULT 0,
		source      TEXT NOT NULL DEFAULT '',
		tokens      TEXT NOT NULL,
		embedding   BLOB,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return qerrors.StorageWrite("initialize corpus schema", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion); err != nil {
			return qerrors.StorageWrite("record schema version", err)
		}
	case err != nil:
		return qerrors.StorageRead("read schema version", err)
	case version != CurrentSchemaVersion:
		return qerrors.New(qerrors.ErrCodeCorruptStore,
			fmt.Sprintf("unsupported corpus schema version %d (current: %d)", version, CurrentSchemaVersion), nil).
			WithSuggestion("re-ingest the corpus into a fresh data directory")
	}

	return nil
}

// PutDocument records document metadata. Idempotent on ID.
func (s *SQLiteCorpusStore) PutDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.StoreClosed("put document")
	}

	var published any
	if doc.PublishedAt != nil {
		published = doc.PublishedAt.UTC().Format(time.RFC3339)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, source, published_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			published_at = excluded.published_at`,
		doc.ID, doc.Title, doc.Source, published, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return qerrors.StorageWrite(fmt.Sprintf("put document %s", doc.ID), err)
	}
	return nil
}

// Documents returns all document records ordered by ID.
func (s *SQLiteCorpusStore) Documents(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, qerrors.StoreClosed("list documents")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source, published_at, created_at
		FROM documents ORDER BY id`)
	if err != nil {
		return nil, qerrors.StorageRead("list documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var (
			doc       Document
			published sql.NullString
			created   string
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Source, &published, &created); err != nil {
			return nil, qerrors.StorageRead("scan document row", err)
		}
		if published.Valid {
			if t, err := time.Parse(time.RFC3339, published.String); err == nil {
				doc.PublishedAt = &t
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			doc.CreatedAt = t
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.StorageRead("iterate documents", err)
	}
	return docs, nil
}

// Add persists chunks inside a single transaction. Re-adding an existing
// chunk ID overwrites in place, which supports re-ingestion of an updated
// document without duplicate entries.
func (s *SQLiteCorpusStore) Add(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.StoreClosed("add chunks")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qerrors.StorageWrite("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, text, page, source, tokens, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			ordinal = excluded.ordinal,
			text = excluded.text,
			page = excluded.page,
			source = excluded.source,
			tokens = excluded.tokens,
			embedding = excluded.embedding`)
	if err != nil {
		return qerrors.StorageWrite("prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if c.Text == "" {
			return qerrors.InvalidArgument(fmt.Sprintf("chunk %s has empty text", c.ID))
		}

		tokensJSON, err := json.Marshal(c.Tokens)
		if err != nil {
			return qerrors.StorageWrite(fmt.Sprintf("encode tokens for chunk %s", c.ID), err)
		}

		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		_, err = stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Ordinal, c.Text, c.Page, c.Source,
			string(tokensJSON), encodeEmbedding(c.Embedding),
			createdAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return qerrors.StorageWrite(fmt.Sprintf("insert chunk %s", c.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return qerrors.StorageWrite("commit chunk batch", err)
	}
	return nil
}

// Get returns the chunk with the given ID, or nil if absent.
func (s *SQLiteCorpusStore) Get(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, qerrors.StoreClosed("get chunk")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, ordinal, text, page, source, tokens, embedding, created_at
		FROM chunks WHERE id = ?`, id)

	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, qerrors.StorageRead(fmt.Sprintf("get chunk %s", id), err)
	}
	return chunk, nil
}

// GetBatch returns the chunks for the given IDs. Missing IDs are omitted.
func (s *SQLiteCorpusStore) GetBatch(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, qerrors.StoreClosed("get chunks")
	}

	query := `SELECT id, document_id, ordinal, text, page, source, tokens, embedding, created_at
		FROM chunks WHERE id IN (?` + repeatPlaceholder(len(ids)-1) + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, qerrors.StorageRead("batch get chunks", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, qerrors.StorageRead("scan chunk row", err)
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.StorageRead("iterate chunks", err)
	}

	// Preserve the request order.
	out := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// All returns every chunk ordered by ID.
func (s *SQLiteCorpusStore) All(ctx context.Context) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, qerrors.StoreClosed("list chunks")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, ordinal, text, page, source, tokens, embedding, created_at
		FROM chunks ORDER BY id`)
	if err != nil {
		return nil, qerrors.StorageRead("list chunks", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, qerrors.StorageRead("scan chunk row", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.StorageRead("iterate chunks", err)
	}
	return chunks, nil
}

// ChunkIDs returns every stored chunk ID ordered by ID.
func (s *SQLiteCorpusStore) ChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, qerrors.StoreClosed("list chunk ids")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chunks ORDER BY id")
	if err != nil {
		return nil, qerrors.StorageRead("list chunk ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, qerrors.StorageRead("scan chunk id row", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.StorageRead("iterate chunk ids", err)
	}
	return ids, nil
}

// RemoveByDocument deletes a document and all of its chunks atomically.
func (s *SQLiteCorpusStore) RemoveByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.StoreClosed("remove document")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qerrors.StorageWrite("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return qerrors.StorageWrite(fmt.Sprintf("delete chunks of document %s", documentID), err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", documentID); err != nil {
		return qerrors.StorageWrite(fmt.Sprintf("delete document %s", documentID), err)
	}

	if err := tx.Commit(); err != nil {
		return qerrors.StorageWrite("commit document removal", err)
	}
	return nil
}

// ChunkCount returns the number of stored chunks.
func (s *SQLiteCorpusStore) ChunkCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, qerrors.StoreClosed("count chunks")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, qerrors.StorageRead("count chunks", err)
	}
	return n, nil
}

// DocumentCount returns the number of stored documents.
func (s *SQLiteCorpusStore) DocumentCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, qerrors.StoreClosed("count documents")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, qerrors.StorageRead("count documents", err)
	}
	return n, nil
}

// Close closes the database and releases the cross-process lock.
func (s *SQLiteCorpusStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.db.Close()
	releaseLock(s.lock)
	if err != nil {
		return qerrors.StorageWrite("close corpus database", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var (
		chunk      Chunk
		tokensJSON string
		embedding  []byte
		created    string
	)
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Text,
		&chunk.Page, &chunk.Source, &tokensJSON, &embedding, &created)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tokensJSON), &chunk.Tokens); err != nil {
		return nil, fmt.Errorf("decode tokens for chunk %s: %w", chunk.ID, err)
	}
	chunk.Embedding = decodeEmbedding(embedding)
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		chunk.CreatedAt = t
	}
	return &chunk, nil
}

// encodeEmbedding packs a float32 vector as little-endian bytes.
// The layout is part of the versioned on-disk format.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding unpacks little-endian bytes into a float32 vector.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// repeatPlaceholder returns ",?" repeated n times.
func repeatPlaceholder(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		b = append(b, ",?"...)
	}
	return string(b)
}
