package sqlite

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
	id, session_id, user_id, kind, text, embedding, importance,
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
		return fmt.Errorf("sqlite: marshal provenance: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, session_id, user_id, kind, text, embedding, importance,
			ttl_days, expires_at, provenance, consolidated, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.UserID, m.Kind, m.Text, encodeEmbedding(m.Embedding),
		m.Importance, m.TTLDays, nullableTime(m.ExpiresAt), string(provenance),
		m.Consolidated, m.CreatedAt, nullableTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert memory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memorySelectColumns+`
		FROM memories WHERE id = ?`, id)
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
		WHERE user_id = ?
		  AND consolidated = 0
		  AND (expires_at IS NULL OR expires_at > ?)`
	args := []any{opts.UserID, opts.Now}

	if opts.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, opts.SessionID)
	}
	if len(opts.Kinds) > 0 {
		placeholders := strings.Repeat("?,", len(opts.Kinds))
		query += ` AND kind IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, k := range opts.Kinds {
			args = append(args, k)
		}
	}

	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: memory candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectMemories(rows)
}

func (s *Store) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET embedding = ?, updated_at = ? WHERE id = ?`,
		encodeEmbedding(embedding), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: update memory embedding: %w", err)
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
		UPDATE memories SET ttl_days = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
		ttlDays, nullableTime(expiresAt), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: update memory ttl: %w", err)
	}
	return requireUpdated(res)
}

// PurgeExpired hard-deletes memories whose expiry is at or before cutoff
// and returns the number removed.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge expired memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge rows affected: %w", err)
	}
	return int(n), nil
}

func requireUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
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
		embedding  []byte
		expiresAt  sql.NullTime
		updatedAt  sql.NullTime
		provenance string
	)

	err := row.Scan(
		&m.ID, &m.SessionID, &m.UserID, &m.Kind, &m.Text, &embedding, &m.Importance,
		&m.TTLDays, &expiresAt, &provenance, &m.Consolidated, &m.CreatedAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan memory: %w", err)
	}

	if m.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, fmt.Errorf("sqlite: decode memory embedding: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		m.UpdatedAt = &t
	}
	if provenance != "" && provenance != "null" {
		if err := json.Unmarshal([]byte(provenance), &m.Provenance); err != nil {
			return nil, fmt.Errorf("sqlite: decode provenance: %w", err)
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
