package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/pkg/types"
)

const relationshipSelectColumns = `
	id, subject_entity_id, predicate, object_entity_id, object_value,
	embedding::text, confidence, source, created_at
`

// StoreRelationships appends triples. Duplicates of an existing
// (subject, predicate, object) are skipped; only ids of rows actually
// inserted are returned. A triple referencing a nonexistent entity id is
// rejected with ErrConsistency.
func (s *Store) StoreRelationships(ctx context.Context, rels []*types.Relationship) ([]string, error) {
	var inserted []string

	for _, r := range rels {
		if r == nil {
			return nil, fmt.Errorf("%w: nil relationship", storage.ErrInvalidInput)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}

		if err := s.checkEntityExists(ctx, r.SubjectEntityID); err != nil {
			return nil, err
		}
		if r.ObjectEntityID != "" {
			if err := s.checkEntityExists(ctx, r.ObjectEntityID); err != nil {
				return nil, err
			}
		}

		if r.ID == "" {
			r.ID = "rel:" + uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO relationships (
				id, subject_entity_id, predicate, object_entity_id, object_value,
				embedding, confidence, source, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (subject_entity_id, predicate, object_entity_id, object_value) DO NOTHING`,
			r.ID, r.SubjectEntityID, r.Predicate, r.ObjectEntityID, r.ObjectValue,
			vectorParam(r.Embedding), r.Confidence, r.Source, r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: insert relationship: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("postgres: relationship rows affected: %w", err)
		}
		if n > 0 {
			inserted = append(inserted, r.ID)
		}
	}

	return inserted, nil
}

func (s *Store) checkEntityExists(ctx context.Context, entityID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = $1`, entityID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: relationship references nonexistent entity %s",
			storage.ErrConsistency, entityID)
	}
	if err != nil {
		return fmt.Errorf("postgres: entity existence check: %w", err)
	}
	return nil
}

// BestRelationship returns the preferred single answer for
// (subject, predicate): highest confidence, most recent first.
func (s *Store) BestRelationship(ctx context.Context, subjectEntityID, predicate string) (*types.Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+relationshipSelectColumns+`
		FROM relationships
		WHERE subject_entity_id = $1 AND predicate = $2
		ORDER BY confidence DESC, created_at DESC
		LIMIT 1`, subjectEntityID, predicate)
	return scanRelationship(row)
}

// RelationshipsForEntities returns all triples for the given subject ids.
func (s *Store) RelationshipsForEntities(ctx context.Context, entityIDs []string) ([]*types.Relationship, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(entityIDs))
	args := make([]any, len(entityIDs))
	for i, id := range entityIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipSelectColumns+`
		FROM relationships
		WHERE subject_entity_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY confidence DESC, created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: relationships for entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRelationships(rows)
}

// RelationshipsWithEmbeddings returns triples carrying an embedding.
func (s *Store) RelationshipsWithEmbeddings(ctx context.Context) ([]*types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipSelectColumns+`
		FROM relationships
		WHERE embedding IS NOT NULL
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: relationships with embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRelationships(rows)
}

func collectRelationships(rows *sql.Rows) ([]*types.Relationship, error) {
	var rels []*types.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func scanRelationship(row rowScanner) (*types.Relationship, error) {
	r := &types.Relationship{}
	var embedding sql.NullString

	err := row.Scan(
		&r.ID, &r.SubjectEntityID, &r.Predicate, &r.ObjectEntityID, &r.ObjectValue,
		&embedding, &r.Confidence, &r.Source, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan relationship: %w", err)
	}

	if embedding.Valid {
		if r.Embedding, err = parseVector(embedding.String); err != nil {
			return nil, fmt.Errorf("postgres: decode relationship embedding: %w", err)
		}
	}
	return r, nil
}
