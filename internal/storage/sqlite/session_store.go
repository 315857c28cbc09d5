package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/pkg/types"
)

func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error {
	if sess == nil {
		return fmt.Errorf("%w: nil session", storage.ErrInvalidInput)
	}
	if sess.UserID == "" {
		return fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}

	if sess.ID == "" {
		sess.ID = "sess:" + uuid.New().String()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = sess.StartedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, started_at, last_activity_at, turn_count, consolidated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.StartedAt, sess.LastActivityAt, sess.TurnCount, sess.Consolidated)
	if err != nil {
		return fmt.Errorf("sqlite: insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, started_at, last_activity_at, turn_count, consolidated
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// TouchSession advances activity time and the turn counter.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity_at = ?, turn_count = turn_count + 1
		WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("sqlite: touch session: %w", err)
	}
	return requireUpdated(res)
}

// SessionsForUser returns all sessions for a user, oldest first.
func (s *Store) SessionsForUser(ctx context.Context, userID string) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, started_at, last_activity_at, turn_count, consolidated
		FROM sessions WHERE user_id = ?
		ORDER BY started_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: sessions for user: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UsersWithSessions returns the distinct user ids that own at least one
// session. The consolidation sweep iterates over this set.
func (s *Store) UsersWithSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM sessions ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: users with sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan user id: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func scanSession(row rowScanner) (*types.Session, error) {
	sess := &types.Session{}
	err := row.Scan(&sess.ID, &sess.UserID, &sess.StartedAt,
		&sess.LastActivityAt, &sess.TurnCount, &sess.Consolidated)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan session: %w", err)
	}
	return sess, nil
}
