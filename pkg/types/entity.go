package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ExternalRef links an entity to a record in the read-only reference store.
// It is populated only when the entity was matched against a business record
// above the similarity floor (source = "db").
type ExternalRef struct {
	Table string `json:"table"` // e.g. "domain.sales_orders"
	ID    string `json:"id"`    // primary key of the referenced record
}

// Entity represents a resolved reference to a business record, person, or
// domain concept mentioned in conversational text. Entities are scoped to
// (user_id, session_id) and are logically immutable once written: a
// correction is recorded as an alias, never by rewriting the entity row.
type Entity struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	// Name is the surface form as it appeared in text. CanonicalName is the
	// case/whitespace-folded identity key used for deduplication; NameHash
	// is its PII-safe sha256 digest.
	Name          string `json:"name"`
	NameHash      string `json:"name_hash"`
	CanonicalName string `json:"canonical_name"`

	Type        string       `json:"type"`
	Source      string       `json:"source"`
	ExternalRef *ExternalRef `json:"external_ref,omitempty"`
	Confidence  float64      `json:"confidence"`

	// Embedding is optional: resolution never fails because an embedding
	// could not be computed.
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the entity's type, source, and confidence range.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !IsValidEntityType(e.Type) {
		return &ValidationError{Field: "type", Reason: "unknown entity type " + e.Type}
	}
	if !IsValidEntitySource(e.Source) {
		return &ValidationError{Field: "source", Reason: "unknown entity source " + e.Source}
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: "must be in [0,1]"}
	}
	if e.ExternalRef != nil && e.Source != EntitySourceDB {
		return &ValidationError{Field: "external_ref", Reason: "only db-sourced entities may carry an external ref"}
	}
	return nil
}

// EntityAlias maps an alternative surface form to a canonical entity.
// Many aliases may reference one entity; the (alias_hash, canonical_entity_id)
// pair is unique. The alias weakly references the entity by id only.
type EntityAlias struct {
	ID                string    `json:"id"`
	CanonicalEntityID string    `json:"canonical_entity_id"`
	AliasText         string    `json:"alias_text"`
	AliasHash         string    `json:"alias_hash"`
	Source            string    `json:"source"`
	Confidence        float64   `json:"confidence"`
	CreatedAt         time.Time `json:"created_at"`
}

// Validate checks the alias source and confidence range.
func (a *EntityAlias) Validate() error {
	if a.AliasText == "" {
		return &ValidationError{Field: "alias_text", Reason: "must not be empty"}
	}
	if a.CanonicalEntityID == "" {
		return &ValidationError{Field: "canonical_entity_id", Reason: "must not be empty"}
	}
	if !IsValidAliasSource(a.Source) {
		return &ValidationError{Field: "source", Reason: "unknown alias source " + a.Source}
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: "must be in [0,1]"}
	}
	return nil
}

// Canonicalize returns the normalized identity form of a name: lowercased
// with runs of whitespace folded to single spaces. Two mentions with the
// same canonical form refer to the same entity within a session.
func Canonicalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// HashName returns the PII-safe sha256 hex digest of the canonical form of
// name. Used for entity and alias identity comparison without storing the
// raw text in indexes.
func HashName(name string) string {
	sum := sha256.Sum256([]byte(Canonicalize(name)))
	return hex.EncodeToString(sum[:])
}
