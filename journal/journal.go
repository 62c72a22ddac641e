// Package journal persists delivery events to SQLite so operators can see
// which origin URLs keep missing at the edge and feed them back into
// warming. The caller must blank-import a driver:
//
//	import _ "modernc.org/sqlite"
//	j, err := journal.Open("bandwidth-saver.db")
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	page_id    TEXT NOT NULL,
	page_url   TEXT NOT NULL,
	image_id   TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL,
	edge_url   TEXT NOT NULL DEFAULT '',
	origin_url TEXT NOT NULL DEFAULT '',
	seq        INTEGER NOT NULL,
	ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(type, ts);
CREATE INDEX IF NOT EXISTS idx_events_origin ON events(origin_url) WHERE type = 'edge_failure';
`

// Journal is the event store handle.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path, applies the
// production-safe pragmas (WAL, busy_timeout, NORMAL synchronous, foreign
// keys) and the schema. Parent directories are created as needed.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}

	return &Journal{db: db}, nil
}

// DB exposes the underlying handle for direct access (admin, testing).
func (j *Journal) DB() *sql.DB {
	return j.db
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
