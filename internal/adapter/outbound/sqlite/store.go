// Package sqlite implements the outbound.Repository port against a SQLite
// database (spec.md §4.E, SPEC_FULL.md §11). It is the durable-storage
// counterpart to the teacher's internal/adapter/outbound/state.FileStateStore:
// the teacher persists a single JSON blob with manual flock+backup+rename
// atomicity; Guardian's schema is relational (services/snapshots, append-only
// history, atomic drift-disable) so the natural teacher-idiom translation is
// a database/sql store with the same constructor-takes-a-logger shape and
// the same doc-comment habit of spelling out the exact write sequence.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS services (
    id                       INTEGER PRIMARY KEY AUTOINCREMENT,
    name                     TEXT NOT NULL UNIQUE,
    upstream_url             TEXT NOT NULL,
    enabled                  INTEGER NOT NULL DEFAULT 1,
    check_frequency_minutes  INTEGER NOT NULL DEFAULT 5,
    created_at               TEXT NOT NULL,
    updated_at               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    service_id  INTEGER NOT NULL REFERENCES services(id) ON DELETE CASCADE,
    payload     TEXT NOT NULL,
    hash        TEXT NOT NULL,
    status      TEXT NOT NULL CHECK (status IN ('user_approved','system_approved','unapproved')),
    created_at  TEXT NOT NULL,
    seq         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_service_created ON snapshots(service_id, created_at, seq);
CREATE INDEX IF NOT EXISTS idx_snapshots_hash ON snapshots(hash);
`

// Store is a SQLite-backed outbound.Repository. The zero value is not
// usable; construct with Open.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at dsn and
// applies the schema. dsn may be a file path or ":memory:" (the latter
// used throughout the package's tests, per SPEC_FULL.md §12). Foreign
// keys are enabled per-connection since SQLite defaults them off.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// modernc.org/sqlite has no native connection pooling story across
	// multiple *os* connections to the same file; a single shared
	// connection avoids "database is locked" errors under concurrent
	// writers, matching the teacher's single-writer state file model.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need direct access;
// not part of the outbound.Repository port. The migrate command does not
// use it: Open already applies the schema.
func (s *Store) DB() *sql.DB {
	return s.db
}
