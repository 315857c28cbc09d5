// Package postgres implements the memlink storage interfaces on
// PostgreSQL. Embeddings live in pgvector columns and fuzzy customer
// search runs on pg_trgm, so both extensions must be installable on the
// target database.
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nexorial/memlink/internal/storage"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// Compile-time interface assertion.
var _ storage.Store = (*Store)(nil)

// NewStore opens a connection pool against the DSN, enables the vector
// and pg_trgm extensions, and applies the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	for _, ext := range []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"CREATE EXTENSION IF NOT EXISTS pg_trgm",
	} {
		if _, err := db.Exec(ext); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: %s: %w", ext, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for seeding and maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
