package types

import "time"

// Relationship is a subject-predicate-object triple connecting two entities,
// or an entity to a literal value. Exactly one of ObjectEntityID and
// ObjectValue is set. Relationships are append-only: a correction is a new
// triple with higher confidence, never an update in place.
type Relationship struct {
	ID              string `json:"id"`
	SubjectEntityID string `json:"subject_entity_id"`
	Predicate       string `json:"predicate"`

	// ObjectEntityID is set when the object resolved to a known entity;
	// ObjectValue carries the literal clause otherwise.
	ObjectEntityID string `json:"object_entity_id,omitempty"`
	ObjectValue    string `json:"object_value,omitempty"`

	// Embedding of the rendered triple text, for semantic relationship
	// search. Optional.
	Embedding []float32 `json:"embedding,omitempty"`

	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the triple invariants: a subject, a predicate, exactly one
// object form, a known source, and confidence in range.
func (r *Relationship) Validate() error {
	if r.SubjectEntityID == "" {
		return &ValidationError{Field: "subject_entity_id", Reason: "must not be empty"}
	}
	if r.Predicate == "" {
		return &ValidationError{Field: "predicate", Reason: "must not be empty"}
	}
	if (r.ObjectEntityID == "") == (r.ObjectValue == "") {
		return &ValidationError{Field: "object", Reason: "exactly one of object_entity_id and object_value must be set"}
	}
	if !IsValidRelationshipSource(r.Source) {
		return &ValidationError{Field: "source", Reason: "unknown relationship source " + r.Source}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: "must be in [0,1]"}
	}
	return nil
}

// Object returns the object entity id when the triple connects two entities,
// or the literal value otherwise. Used for (subject, predicate, object)
// deduplication.
func (r *Relationship) Object() string {
	if r.ObjectEntityID != "" {
		return r.ObjectEntityID
	}
	return r.ObjectValue
}
