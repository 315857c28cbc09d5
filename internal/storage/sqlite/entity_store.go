package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/pkg/types"
)

const entitySelectColumns = `
	id, session_id, user_id, name, name_hash, canonical_name,
	type, source, external_ref, confidence, embedding, created_at
`

// StoreEntities inserts entities, deduplicating by
// (user_id, session_id, canonical_name). A duplicate resolves to the
// existing row's id, so re-storing an entity within a session is a no-op.
func (s *Store) StoreEntities(ctx context.Context, entities []*types.Entity) ([]string, error) {
	ids := make([]string, 0, len(entities))

	for _, e := range entities {
		if e == nil {
			return nil, fmt.Errorf("%w: nil entity", storage.ErrInvalidInput)
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}

		var existingID string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM entities WHERE user_id = ? AND session_id = ? AND canonical_name = ?`,
			e.UserID, e.SessionID, e.CanonicalName,
		).Scan(&existingID)
		if err == nil {
			ids = append(ids, existingID)
			e.ID = existingID
			continue
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("sqlite: entity dedup lookup: %w", err)
		}

		if e.ID == "" {
			e.ID = "ent:" + uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}

		var refJSON []byte
		if e.ExternalRef != nil {
			refJSON, err = json.Marshal(e.ExternalRef)
			if err != nil {
				return nil, fmt.Errorf("sqlite: marshal external_ref: %w", err)
			}
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO entities (
				id, session_id, user_id, name, name_hash, canonical_name,
				type, source, external_ref, confidence, embedding, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.SessionID, e.UserID, e.Name, e.NameHash, e.CanonicalName,
			e.Type, e.Source, nullableString(string(refJSON)), e.Confidence,
			encodeEmbedding(e.Embedding), e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: insert entity %q: %w", e.CanonicalName, err)
		}

		ids = append(ids, e.ID)
	}

	return ids, nil
}

// GetEntity retrieves an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitySelectColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// FindEntityByName finds the best entity for a user by name hash, falling
// back to the alias table when the direct lookup misses. Best means highest
// confidence, then most recent.
func (s *Store) FindEntityByName(ctx context.Context, userID, name string) (*types.Entity, error) {
	hash := types.HashName(name)

	row := s.db.QueryRowContext(ctx, `
		SELECT `+entitySelectColumns+`
		FROM entities
		WHERE user_id = ? AND name_hash = ?
		ORDER BY confidence DESC, created_at DESC
		LIMIT 1`, userID, hash)
	entity, err := scanEntity(row)
	if err == nil {
		return entity, nil
	}
	if err != storage.ErrNotFound {
		return nil, err
	}

	// Alias fallback: the alias weakly references the canonical entity.
	row = s.db.QueryRowContext(ctx, `
		SELECT `+entitySelectColumns+`
		FROM entities
		WHERE user_id = ? AND id IN (
			SELECT canonical_entity_id FROM entity_aliases WHERE alias_hash = ?
		)
		ORDER BY confidence DESC, created_at DESC
		LIMIT 1`, userID, hash)
	return scanEntity(row)
}

// FindByExternalRef finds the entity linked to a reference record.
func (s *Store) FindByExternalRef(ctx context.Context, table, id string) (*types.Entity, error) {
	ref, err := json.Marshal(&types.ExternalRef{Table: table, ID: id})
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal external_ref: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entitySelectColumns+`
		FROM entities
		WHERE external_ref = ?
		ORDER BY created_at DESC
		LIMIT 1`, string(ref))
	return scanEntity(row)
}

// RecentMentions counts entities with the canonical name created by the
// user since the given time.
func (s *Store) RecentMentions(ctx context.Context, userID, canonicalName string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entities
		WHERE user_id = ? AND canonical_name = ? AND created_at > ?`,
		userID, canonicalName, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: recent mentions: %w", err)
	}
	return n, nil
}

// LastReferenced returns when the user last created an entity with the
// canonical name, or the zero time if never.
func (s *Store) LastReferenced(ctx context.Context, userID, canonicalName string) (time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM entities
		WHERE user_id = ? AND canonical_name = ?`,
		userID, canonicalName,
	).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: last referenced: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

// CreateAlias records an alias for a canonical entity. A duplicate
// (alias_hash, canonical_entity_id) pair is silently ignored.
func (s *Store) CreateAlias(ctx context.Context, alias *types.EntityAlias) error {
	if alias == nil {
		return fmt.Errorf("%w: nil alias", storage.ErrInvalidInput)
	}
	if err := alias.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM entities WHERE id = ?`, alias.CanonicalEntityID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: alias references nonexistent entity %s",
			storage.ErrConsistency, alias.CanonicalEntityID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: alias entity check: %w", err)
	}

	if alias.ID == "" {
		alias.ID = "alias:" + uuid.New().String()
	}
	if alias.AliasHash == "" {
		alias.AliasHash = types.HashName(alias.AliasText)
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entity_aliases (
			id, canonical_entity_id, alias_text, alias_hash, source, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alias.ID, alias.CanonicalEntityID, alias.AliasText, alias.AliasHash,
		alias.Source, alias.Confidence, alias.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert alias: %w", err)
	}
	return nil
}

// ListAliases returns all aliases for an entity, highest confidence first.
func (s *Store) ListAliases(ctx context.Context, entityID string) ([]*types.EntityAlias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canonical_entity_id, alias_text, alias_hash, source, confidence, created_at
		FROM entity_aliases
		WHERE canonical_entity_id = ?
		ORDER BY confidence DESC, created_at DESC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var aliases []*types.EntityAlias
	for rows.Next() {
		a := &types.EntityAlias{}
		if err := rows.Scan(&a.ID, &a.CanonicalEntityID, &a.AliasText, &a.AliasHash,
			&a.Source, &a.Confidence, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	e := &types.Entity{}
	var refJSON sql.NullString
	var embedding []byte

	err := row.Scan(
		&e.ID, &e.SessionID, &e.UserID, &e.Name, &e.NameHash, &e.CanonicalName,
		&e.Type, &e.Source, &refJSON, &e.Confidence, &embedding, &e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan entity: %w", err)
	}

	if refJSON.Valid && refJSON.String != "" {
		e.ExternalRef = &types.ExternalRef{}
		if err := json.Unmarshal([]byte(refJSON.String), e.ExternalRef); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal external_ref: %w", err)
		}
	}

	if e.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, fmt.Errorf("sqlite: decode entity embedding: %w", err)
	}

	return e, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
