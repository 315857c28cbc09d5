package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that a required single-record lookup matched
	// nothing. Search-style operations return empty results instead.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConsistency indicates a write that references a nonexistent record,
	// e.g. a relationship whose subject entity id does not exist. Such
	// writes are rejected, never silently dropped.
	ErrConsistency = errors.New("consistency violation")

	// ErrAlreadyConsolidated indicates that a summary already exists for
	// the requested (user, session window).
	ErrAlreadyConsolidated = errors.New("window already consolidated")
)

// CandidateOptions scopes the memory candidate set for retrieval. Expired
// and consolidated memories are always excluded.
type CandidateOptions struct {
	// UserID is required; memories are never shared across users.
	UserID string

	// SessionID optionally narrows candidates to one session.
	SessionID string

	// Kinds optionally filters by memory kind.
	Kinds []string

	// Now is the reference time for expiry checks. Zero means time.Now().
	Now time.Time

	// Limit caps the candidate set size. Zero means the store default (500).
	Limit int
}

// Normalize applies defaults to the options.
func (o *CandidateOptions) Normalize() {
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
	if o.Limit <= 0 {
		o.Limit = 500
	}
	if o.Limit > 2000 {
		o.Limit = 2000
	}
}

// CustomerMatch is a fuzzy customer search hit with its similarity score.
type CustomerMatch struct {
	CustomerID string
	Name       string
	Similarity float64
}

// SchemaLink is one foreign-key edge in the reference dataset, resolved to
// the external identifiers of both records. The relationship builder turns
// these into triples when both ends have linked entities.
type SchemaLink struct {
	SubjectTable string // e.g. types.TableSalesOrders
	SubjectID    string
	SubjectLabel string // human-readable, e.g. "SO-1001"
	ObjectTable  string
	ObjectID     string
	ObjectLabel  string
}
