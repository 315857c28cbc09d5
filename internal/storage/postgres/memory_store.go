package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/pkg/types"
)

const memorySelectColumns = `
	id, session_id, user_id, kind, text, embedding::text, importance,
	ttl_days, expires_at, provenance, consolidated, created_at, updated_at
`

// WriteMemory persists a memory record. A zero ID and CreatedAt are
// filled in; ExpiresAt is derived from TTLDays when unset.
func (s *Store) WriteMemory(ctx context.Context, m *types.Memory) error {
	if m == nil {
		return fmt.Errorf("%w: nil memory", storage.ErrInvalidInput)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if m.ID == "" {
		m.ID = "mem:" + uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.ExpiresAt == nil && m.TTLDays > 0 {
		m.ComputeExpiry()
	}

	provenance, err := json.Marshal(m.Provenance)
	if err != nil {
		return fmt.Errorf("postgres: marshal provenance: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, session_id, user_id, kind, text, embedding, importance,
			ttl_days, expires_at, provenance, consolidated, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.SessionID, m.UserID, m.Kind, m.Text, vectorParam(m.Embedding),
		m.Importance, m.TTLDays, nullableTime(m.ExpiresAt), provenance,
		m.Consolidated, m.CreatedAt, nullableTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert memory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memorySelectColumns+`
		FROM memories WHERE id = $1`, id)
	return scanMemory(row)
}

// Candidates returns live, unconsolidated memories in scope for scoring.
// Expired rows (expires_at at or before opts.Now) are excluded here so
// retrieval never sees them, independent of the purge sweep.
func (s *Store) Candidates(ctx context.Context, opts storage.CandidateOptions) ([]*types.Memory, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	opts.Normalize()

	query := `
		SELECT ` + memorySelectColumns + `
		FROM memories
		WHERE user_id = $1
		  AND NOT consolidated
		  AND (expires_at IS NULL OR expires_at > $2)`
	args := []any{opts.UserID, opts.Now}

	if opts.SessionID != "" {
		args = append(args, opts.SessionID)
		query += fmt.Sprintf(` AND session_id = $%d`, len(args))
	}
	if len(opts.Kinds) > 0 {
		placeholders := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			args = append(args, k)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += ` AND kind IN (` + strings.Join(placeholders, ",") + `)`
	}

	args = append(args, opts.Limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: memory candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectMemories(rows)
}

func (s *Store) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET embedding = $1, updated_at = $2 WHERE id = $3`,
		vectorParam(embedding), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update memory embedding: %w", err)
	}
	return requireUpdated(res)
}

// UpdateTTL rewrites the TTL and recomputes expires_at from the memory's
// original creation time, not from now.
func (s *Store) UpdateTTL(ctx context.Context, id string, ttlDays int) error {
	if ttlDays < 0 {
		return fmt.Errorf("%w: ttl days must not be negative", storage.ErrInvalidInput)
	}

	m, err := s.GetMemory(ctx, id)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if ttlDays > 0 {
		t := m.CreatedAt.Add(time.Duration(ttlDays) * 24 * time.Hour)
		expiresAt = &t
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET ttl_days = $1, expires_at = $2, updated_at = $3 WHERE id = $4`,
		ttlDays, nullableTime(expiresAt), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update memory ttl: %w", err)
	}
	return requireUpdated(res)
}

// PurgeExpired hard-deletes memories whose expiry is at or before cutoff
// and returns the number removed.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge expired memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: purge rows affected: %w", err)
	}
	return int(n), nil
}

func requireUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func collectMemories(rows *sql.Rows) ([]*types.Memory, error) {
	var memories []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	m := &types.Memory{}
	var (
		embedding  sql.NullString
		expiresAt  sql.NullTime
		updatedAt  sql.NullTime
		provenance sql.NullString
	)

	err := row.Scan(
		&m.ID, &m.SessionID, &m.UserID, &m.Kind, &m.Text, &embedding, &m.Importance,
		&m.TTLDays, &expiresAt, &provenance, &m.Consolidated, &m.CreatedAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan memory: %w", err)
	}

	if embedding.Valid {
		if m.Embedding, err = parseVector(embedding.String); err != nil {
			return nil, fmt.Errorf("postgres: decode memory embedding: %w", err)
		}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		m.UpdatedAt = &t
	}
	if provenance.Valid && provenance.String != "" && provenance.String != "null" {
		if err := json.Unmarshal([]byte(provenance.String), &m.Provenance); err != nil {
			return nil, fmt.Errorf("postgres: decode provenance: %w", err)
		}
	}
	return m, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

