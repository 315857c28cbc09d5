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

// UnconsolidatedMemories returns the live memories in the given sessions
// that have not been folded into a summary yet, oldest first.
func (s *Store) UnconsolidatedMemories(ctx context.Context, userID string, sessionIDs []string) ([]*types.Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(sessionIDs))
	args := []any{userID}
	for _, id := range sessionIDs {
		args = append(args, id)
	}
	args = append(args, time.Now().UTC())

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memorySelectColumns+`
		FROM memories
		WHERE user_id = ? AND session_id IN (`+placeholders[:len(placeholders)-1]+`)
		  AND consolidated = 0
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: unconsolidated memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectMemories(rows)
}

func (s *Store) GetSummary(ctx context.Context, userID string, window int) (*types.MemorySummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_window, summary_text, embedding, memory_ids, importance, created_at
		FROM memory_summaries
		WHERE user_id = ? AND session_window = ?`, userID, window)
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
		return fmt.Errorf("sqlite: marshal memory ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin consolidation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_summaries (id, user_id, session_window, summary_text, embedding, memory_ids, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.UserID, summary.SessionWindow, summary.SummaryText,
		encodeEmbedding(summary.Embedding), string(memoryIDs), summary.Importance, summary.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyConsolidated
		}
		return fmt.Errorf("sqlite: insert summary: %w", err)
	}

	now := time.Now().UTC()
	for _, id := range summary.ConsolidatedMemoryIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE memories SET consolidated = 1, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("sqlite: mark memory consolidated: %w", err)
		}
	}

	for _, id := range sessionIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions SET consolidated = 1 WHERE id = ? AND consolidated = 0`, id)
		if err != nil {
			return fmt.Errorf("sqlite: mark session consolidated: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: session rows affected: %w", err)
		}
		if n == 0 {
			return storage.ErrAlreadyConsolidated
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit consolidation: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func scanSummary(row rowScanner) (*types.MemorySummary, error) {
	sum := &types.MemorySummary{}
	var embedding []byte
	var memoryIDs string

	err := row.Scan(&sum.ID, &sum.UserID, &sum.SessionWindow, &sum.SummaryText,
		&embedding, &memoryIDs, &sum.Importance, &sum.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan summary: %w", err)
	}

	if sum.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, fmt.Errorf("sqlite: decode summary embedding: %w", err)
	}
	if memoryIDs != "" && memoryIDs != "null" {
		if err := json.Unmarshal([]byte(memoryIDs), &sum.ConsolidatedMemoryIDs); err != nil {
			return nil, fmt.Errorf("sqlite: decode memory ids: %w", err)
		}
	}
	return sum, nil
}
