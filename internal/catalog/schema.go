// Package catalog provides a SQLite-backed record catalog: a second
// storage.Provider backend with trajectories kept apart from metadata, an
// incremental importer, a file watcher and a history of curation runs.
package catalog

import (
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	method      TEXT NOT NULL DEFAULT '',
	spectrum    TEXT NOT NULL DEFAULT '[]',
	ky_dim      REAL,
	coeffs      TEXT NOT NULL DEFAULT '[]',
	source      TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_method ON records(method);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);

CREATE TABLE IF NOT EXISTS trajectories (
	id     TEXT PRIMARY KEY REFERENCES records(id) ON DELETE CASCADE,
	points INTEGER NOT NULL,
	data   BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	policy     TEXT NOT NULL,
	top_n      INTEGER NOT NULL,
	considered INTEGER NOT NULL,
	valid      INTEGER NOT NULL,
	rendered   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_selections (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	grp_key   TEXT NOT NULL,
	grp       TEXT NOT NULL,
	rank      INTEGER NOT NULL,
	record_id TEXT NOT NULL,
	score     REAL NOT NULL,
	status    TEXT NOT NULL,
	PRIMARY KEY (run_id, grp_key, rank)
);
`

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn *sql.DB

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &DB{
		conn:    conn,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
