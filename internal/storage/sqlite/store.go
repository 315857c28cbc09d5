// Package sqlite implements the memlink storage interfaces on an embedded
// SQLite database (modernc.org/sqlite, no cgo). It is the default backend
// and the one the engine's tests run against.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nexorial/memlink/internal/storage"
)

// Store implements storage.Store using SQLite. Both the engine-owned app
// tables and the read-only reference tables live in one database file; the
// store only ever writes the reference tables through SeedReference.
type Store struct {
	db *sql.DB
}

// Compile-time interface assertion.
var _ storage.Store = (*Store)(nil)

// NewStore opens a SQLite database at the given DSN (":memory:" for tests),
// configures WAL mode, and creates the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// The modernc driver serializes access per connection; a single
	// connection avoids table-lock contention under concurrent requests.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for seeding and maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}
