package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/searchsync/internal/logging"
)

// SQLiteIndex is an IndexBackend on SQLite FTS5. Stored documents live in a
// plain table; their text is mirrored into an FTS5 table for BM25 ranking.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	logger *slog.Logger
}

var _ IndexBackend = (*SQLiteIndex)(nil)

// sqliteSchemaVersion 2 keys documents by id field as well as id. Older
// files are cleared on open like a corrupted index.
const sqliteSchemaVersion = 2

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS documents (
	indexed_type TEXT NOT NULL,
	doc_id       TEXT NOT NULL,
	key_field    TEXT NOT NULL,
	fields       TEXT NOT NULL,
	PRIMARY KEY (indexed_type, key_field, doc_id)
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	indexed_type UNINDEXED,
	key_field UNINDEXED,
	doc_id UNINDEXED,
	content,
	tokenize='unicode61'
);

INSERT OR IGNORE INTO schema_version (version) VALUES (2);
`

// validateSQLiteIntegrity checks an existing database file before opening it.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='documents_fts'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'documents_fts' missing")
	}

	var version int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("cannot read schema version: %w", err)
	}
	if version < sqliteSchemaVersion {
		return fmt.Errorf("schema version %d is older than %d", version, sqliteSchemaVersion)
	}
	return nil
}

// NewSQLiteIndex opens or creates the index database at path. An empty path
// keeps the index in memory.
func NewSQLiteIndex(path string, logger *slog.Logger) (*SQLiteIndex, error) {
	logger = logging.OrDefault(logger)

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			logger.Warn("sqlite index corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, err, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: a single writer, and the in-memory database stays
	// a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteIndex{db: db, path: path, logger: logger}, nil
}

// Begin implements IndexBackend.
func (s *SQLiteIndex) Begin(ctx context.Context) (IndexTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{ctx: ctx, tx: tx}, nil
}

// Search implements IndexBackend.
func (s *SQLiteIndex) Search(ctx context.Context, indexedType, text string, limit int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}

	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(text) == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT key_field, doc_id, 0.0 FROM documents WHERE indexed_type = ? ORDER BY key_field, doc_id LIMIT ?`,
			indexedType, limit)
	} else {
		match := ftsQuery(text)
		if match == "" {
			return []Hit{}, nil
		}
		// bm25() is negative, lower is better.
		rows, err = s.db.QueryContext(ctx, `
			SELECT key_field, doc_id, bm25(documents_fts) AS score
			FROM documents_fts
			WHERE documents_fts MATCH ? AND indexed_type = ?
			ORDER BY score
			LIMIT ?`, match, indexedType, limit)
	}
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []Hit{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var (
			field, id string
			score     float64
		)
		if err := rows.Scan(&field, &id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, Hit{IndexedType: indexedType, IDField: field, ID: id, Score: -score})
	}
	return hits, rows.Err()
}

// Count implements IndexBackend.
func (s *SQLiteIndex) Count(ctx context.Context, indexedType string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE indexed_type = ?`, indexedType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Warn("wal checkpoint failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

type sqliteTx struct {
	ctx  context.Context
	tx   *sql.Tx
	done bool
}

func (t *sqliteTx) Index(doc Document) error {
	if t.done {
		return ErrClosed
	}
	if err := validateDoc(doc); err != nil {
		return err
	}
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields of %s: %w", docKey(doc.IndexedType, doc.IDField, doc.ID), err)
	}

	// FTS5 tables have no REPLACE, so delete first.
	if err := t.remove(doc.IndexedType, doc.IDField, doc.ID); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO documents(indexed_type, doc_id, key_field, fields) VALUES (?, ?, ?, ?)`,
		doc.IndexedType, doc.ID, doc.IDField, string(fields)); err != nil {
		return fmt.Errorf("failed to store document %s: %w", docKey(doc.IndexedType, doc.IDField, doc.ID), err)
	}
	content := strings.Join(Tokenize(contentOf(doc.Fields)), " ")
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO documents_fts(indexed_type, key_field, doc_id, content) VALUES (?, ?, ?, ?)`,
		doc.IndexedType, doc.IDField, doc.ID, content); err != nil {
		return fmt.Errorf("failed to index document %s: %w", docKey(doc.IndexedType, doc.IDField, doc.ID), err)
	}
	return nil
}

func (t *sqliteTx) Update(doc Document) error {
	return t.Index(doc)
}

func (t *sqliteTx) remove(indexedType, field, id string) error {
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM documents WHERE indexed_type = ? AND key_field = ? AND doc_id = ?`,
		indexedType, field, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docKey(indexedType, field, id), err)
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM documents_fts WHERE indexed_type = ? AND key_field = ? AND doc_id = ?`,
		indexedType, field, id); err != nil {
		return fmt.Errorf("failed to delete from FTS %s: %w", docKey(indexedType, field, id), err)
	}
	return nil
}

func (t *sqliteTx) DeleteByField(indexedType, field, value string) error {
	if t.done {
		return ErrClosed
	}
	return t.remove(indexedType, field, value)
}

func (t *sqliteTx) PurgeAll(indexedType, idField string) error {
	if t.done {
		return ErrClosed
	}
	where, args := `indexed_type = ?`, []any{indexedType}
	if idField != "" {
		where, args = where+` AND key_field = ?`, append(args, idField)
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM documents WHERE `+where, args...); err != nil {
		return fmt.Errorf("failed to purge %s: %w", indexedType, err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM documents_fts WHERE `+where, args...); err != nil {
		return fmt.Errorf("failed to purge FTS %s: %w", indexedType, err)
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	if t.done {
		return ErrClosed
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
