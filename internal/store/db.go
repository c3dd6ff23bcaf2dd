package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, matching choice

	"github.com/corvidmem/corvid/internal/cerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	id BLOB PRIMARY KEY,
	content TEXT NOT NULL,
	record BLOB NOT NULL,
	content_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	importance REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	akey BLOB PRIMARY KEY,
	ts_nanos INTEGER NOT NULL,
	record BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_by_target (
	target_id BLOB NOT NULL,
	akey BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_by_target ON audit_by_target(target_id);

CREATE TABLE IF NOT EXISTS merge_history (
	merged_id BLOB PRIMARY KEY,
	record BLOB NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reversal_envelopes (
	reversal_hash TEXT PRIMARY KEY,
	merged_id BLOB NOT NULL,
	record BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS importance_history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint_id BLOB NOT NULL,
	ts INTEGER NOT NULL,
	old_val REAL NOT NULL,
	new_val REAL NOT NULL,
	delta REAL NOT NULL,
	operator TEXT,
	reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_importance_fp ON importance_history(fingerprint_id);

CREATE TABLE IF NOT EXISTS tool_call_index (
	tool_invocation_id TEXT NOT NULL,
	fingerprint_id BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_call ON tool_call_index(tool_invocation_id);

CREATE TABLE IF NOT EXISTS model_version_registry (
	embedder_index INTEGER NOT NULL,
	model_version_hash TEXT NOT NULL,
	model_identifier TEXT,
	quantization TEXT,
	first_seen_at INTEGER NOT NULL,
	PRIMARY KEY (embedder_index, model_version_hash)
);

CREATE TABLE IF NOT EXISTS consolidation_recommendations (
	id BLOB PRIMARY KEY,
	fingerprint_a BLOB NOT NULL,
	fingerprint_b BLOB NOT NULL,
	score REAL NOT NULL,
	state TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tombstones (
	fingerprint_id BLOB PRIMARY KEY,
	deleted_at INTEGER NOT NULL,
	operator TEXT,
	reason TEXT,
	recovery_deadline INTEGER NOT NULL
);
`

// openDB opens (creating if necessary) the SQLite database at path in WAL
// mode with a single writer connection, matching // SQLiteBM25Index DSN/pragma pattern.
func openDB(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	// Single writer: SQLite allows one writer at a time regardless; pinning
	// the pool to one connection avoids SQLITE_BUSY churn under the
	// engine's own concurrent callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	return db, nil
}
