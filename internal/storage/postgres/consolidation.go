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

// UnconsolidatedMemories returns the live memories in the given sessions
// that have not been folded into a summary yet, oldest first.
func (s *Store) UnconsolidatedMemories(ctx context.Context, userID string, sessionIDs []string) ([]*types.Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(sessionIDs))
	args := []any{userID}
	for i, id := range sessionIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	args = append(args, time.Now().UTC())

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memorySelectColumns+`
		FROM memories
		WHERE user_id = $1 AND session_id IN (`+strings.Join(placeholders, ",")+`)
		  AND NOT consolidated
		  AND (expires_at IS NULL OR expires_at > $`+fmt.Sprint(len(args))+`)
		ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: unconsolidated memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectMemories(rows)
}

func (s *Store) GetSummary(ctx context.Context, userID string, window int) (*types.MemorySummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_window, summary_text, embedding::text, memory_ids, importance, created_at
		FROM memory_summaries
		WHERE user_id = $1 AND session_window = $2`, userID, window)
	return scanSummary(row)
}

// SaveSummary persists the summary, marks its memories consolidated, and
// flips the session flags, all in one transaction. A second writer racing
// on the same (user, window) loses on the summary's unique index and gets
// ErrAlreadyConsolidated with nothing persisted.
func (s *Store) SaveSummary(ctx context.Context, summary *types.MemorySummary, sessionIDs []string) error {
	if summary == nil {
		return fmt.Errorf("%w: nil summary", storage.ErrInvalidInput)
	}
	if summary.UserID == "" || summary.SummaryText == "" {
		return fmt.Errorf("%w: summary requires user id and text", storage.ErrInvalidInput)
	}

	if summary.ID == "" {
		summary.ID = "sum:" + uuid.New().String()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	memoryIDs, err := json.Marshal(summary.ConsolidatedMemoryIDs)
	if err != nil {
		return fmt.Errorf("postgres: marshal memory ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin consolidation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_summaries (id, user_id, session_window, summary_text, embedding, memory_ids, importance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		summary.ID, summary.UserID, summary.SessionWindow, summary.SummaryText,
		vectorParam(summary.Embedding), memoryIDs, summary.Importance, summary.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyConsolidated
		}
		return fmt.Errorf("postgres: insert summary: %w", err)
	}

	now := time.Now().UTC()
	for _, id := range summary.ConsolidatedMemoryIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE memories SET consolidated = TRUE, updated_at = $1 WHERE id = $2`, now, id); err != nil {
			return fmt.Errorf("postgres: mark memory consolidated: %w", err)
		}
	}

	for _, id := range sessionIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions SET consolidated = TRUE WHERE id = $1 AND NOT consolidated`, id)
		if err != nil {
			return fmt.Errorf("postgres: mark session consolidated: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("postgres: session rows affected: %w", err)
		}
		if n == 0 {
			return storage.ErrAlreadyConsolidated
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit consolidation: %w", err)
	}
	return nil
}

func scanSummary(row rowScanner) (*types.MemorySummary, error) {
	sum := &types.MemorySummary{}
	var embedding sql.NullString
	var memoryIDs string

	err := row.Scan(&sum.ID, &sum.UserID, &sum.SessionWindow, &sum.SummaryText,
		&embedding, &memoryIDs, &sum.Importance, &sum.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan summary: %w", err)
	}

	if embedding.Valid {
		if sum.Embedding, err = parseVector(embedding.String); err != nil {
			return nil, fmt.Errorf("postgres: decode summary embedding: %w", err)
		}
	}
	if memoryIDs != "" && memoryIDs != "null" {
		if err := json.Unmarshal([]byte(memoryIDs), &sum.ConsolidatedMemoryIDs); err != nil {
			return nil, fmt.Errorf("postgres: decode memory ids: %w", err)
		}
	}
	return sum, nil
}
