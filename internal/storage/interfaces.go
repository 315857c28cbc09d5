// Package storage provides composable storage interfaces for the memlink
// engine. The interfaces are small and focused so backends (embedded SQLite,
// PostgreSQL with pgvector) can implement them independently and be composed
// as needed.
package storage

import (
	"context"
	"time"

	"github.com/nexorial/memlink/pkg/types"
)

// EntityStore persists extracted entities and their aliases.
type EntityStore interface {
	// StoreEntities inserts entities and returns their ids, in input order.
	// Re-storing an entity with an identical canonical name within the same
	// (user, session) is a no-op that returns the existing id.
	StoreEntities(ctx context.Context, entities []*types.Entity) ([]string, error)

	// GetEntity retrieves an entity by id. Returns ErrNotFound if missing.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// FindEntityByName finds the best existing entity for a user by name
	// hash, consulting aliases. Ordered by confidence then recency.
	// Returns ErrNotFound when nothing matches.
	FindEntityByName(ctx context.Context, userID, name string) (*types.Entity, error)

	// FindByExternalRef finds an entity linked to the given reference
	// record. Returns ErrNotFound when the record has no linked entity.
	FindByExternalRef(ctx context.Context, table, id string) (*types.Entity, error)

	// RecentMentions counts entities with the given canonical name created
	// by the user since the given time. Used for the recency confidence
	// boost.
	RecentMentions(ctx context.Context, userID, canonicalName string, since time.Time) (int, error)

	// LastReferenced returns the most recent creation time of an entity
	// with the given canonical name for the user, or the zero time when
	// the name has never been referenced. Used for fuzzy tie-breaking.
	LastReferenced(ctx context.Context, userID, canonicalName string) (time.Time, error)

	// CreateAlias records an alias for a canonical entity. Duplicate
	// (alias_hash, canonical_entity_id) pairs are ignored. Returns
	// ErrConsistency when the entity does not exist.
	CreateAlias(ctx context.Context, alias *types.EntityAlias) error

	// ListAliases returns all aliases for an entity, highest confidence
	// first.
	ListAliases(ctx context.Context, entityID string) ([]*types.EntityAlias, error)
}

// RelationshipStore persists the append-only triple graph.
type RelationshipStore interface {
	// StoreRelationships appends triples and returns the ids of the rows
	// actually inserted. Triples duplicating an existing
	// (subject, predicate, object) are skipped. Returns ErrConsistency when
	// a triple references a nonexistent entity id.
	StoreRelationships(ctx context.Context, rels []*types.Relationship) ([]string, error)

	// BestRelationship returns the highest-confidence, most recent triple
	// for (subject, predicate). History is preserved; this selects the
	// single preferred answer. Returns ErrNotFound when none exists.
	BestRelationship(ctx context.Context, subjectEntityID, predicate string) (*types.Relationship, error)

	// RelationshipsForEntities returns all triples whose subject is one of
	// the given entity ids, ordered by confidence then recency.
	RelationshipsForEntities(ctx context.Context, entityIDs []string) ([]*types.Relationship, error)

	// RelationshipsWithEmbeddings returns triples that carry an embedding,
	// for semantic relationship search.
	RelationshipsWithEmbeddings(ctx context.Context) ([]*types.Relationship, error)
}

// MemoryStore persists memory records and serves retrieval candidates.
type MemoryStore interface {
	// WriteMemory inserts a memory. The caller is responsible for
	// validation, importance clamping, and expiry computation.
	WriteMemory(ctx context.Context, memory *types.Memory) error

	// GetMemory retrieves a memory by id. Returns ErrNotFound if missing.
	GetMemory(ctx context.Context, id string) (*types.Memory, error)

	// Candidates returns unexpired, unconsolidated memories scoped by the
	// options, most recent first. The blended ranking happens in the
	// engine, not here.
	Candidates(ctx context.Context, opts CandidateOptions) ([]*types.Memory, error)

	// UpdateEmbedding attaches an embedding to an existing memory, for
	// best-effort asynchronous embedding. Returns ErrNotFound if missing.
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error

	// UpdateTTL changes a memory's ttl_days and recomputes expires_at.
	// Returns ErrNotFound if missing.
	UpdateTTL(ctx context.Context, id string, ttlDays int) error

	// PurgeExpired physically deletes memories whose expiry passed before
	// the cutoff. Optional reclamation; correctness never depends on it.
	// Returns the number of rows removed.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionStore persists session bookkeeping.
type SessionStore interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession retrieves a session by id. Returns ErrNotFound if missing.
	GetSession(ctx context.Context, id string) (*types.Session, error)

	// TouchSession bumps last_activity_at and increments turn_count.
	// Returns ErrNotFound if missing.
	TouchSession(ctx context.Context, id string, at time.Time) error

	// SessionsForUser returns the user's sessions ordered by started_at
	// ascending. Window assignment depends on this ordering being stable.
	SessionsForUser(ctx context.Context, userID string) ([]*types.Session, error)

	// UsersWithSessions returns the distinct user ids owning at least one
	// session, for the out-of-band consolidation sweep.
	UsersWithSessions(ctx context.Context) ([]string, error)
}

// ConsolidationStore provides the all-or-nothing consolidation write path.
type ConsolidationStore interface {
	// UnconsolidatedMemories returns the not-yet-consolidated, unexpired
	// memories belonging to the given sessions, oldest first.
	UnconsolidatedMemories(ctx context.Context, userID string, sessionIDs []string) ([]*types.Memory, error)

	// GetSummary returns the summary for (user, window), or ErrNotFound.
	GetSummary(ctx context.Context, userID string, window int) (*types.MemorySummary, error)

	// SaveSummary atomically inserts the summary, flags its source memories
	// consolidated, and flips the session flags. Returns
	// ErrAlreadyConsolidated (and persists nothing) when a summary for the
	// window already exists or another writer claimed the sessions first.
	SaveSummary(ctx context.Context, summary *types.MemorySummary, sessionIDs []string) error
}

// ReferenceStore is the read-only view over the business dataset. The
// memory engine queries and links to these records but never writes them.
type ReferenceStore interface {
	// Exact-key lookups for deterministic identifier resolution.
	LookupSalesOrder(ctx context.Context, number string) (*types.SalesOrder, error)
	LookupInvoice(ctx context.Context, number string) (*types.Invoice, error)
	LookupWorkOrder(ctx context.Context, number string) (*types.WorkOrder, error)
	GetCustomer(ctx context.Context, id string) (*types.Customer, error)

	// Customers returns all customer records, for in-process fuzzy matching.
	Customers(ctx context.Context) ([]*types.Customer, error)

	// SearchCustomers performs trigram-style fuzzy search over customer
	// names, returning matches at or above the floor, best first.
	SearchCustomers(ctx context.Context, query string, floor float64, limit int) ([]CustomerMatch, error)

	// Foreign-key traversals for schema triple derivation.
	SalesOrderCustomerLinks(ctx context.Context) ([]SchemaLink, error)
	InvoiceOrderLinks(ctx context.Context) ([]SchemaLink, error)
	WorkOrderOrderLinks(ctx context.Context) ([]SchemaLink, error)
	PaymentInvoiceLinks(ctx context.Context) ([]SchemaLink, error)

	// Read-model queries for LLM context assembly.
	OrdersForCustomer(ctx context.Context, customerID string) ([]*types.SalesOrder, error)
	OpenInvoicesForCustomer(ctx context.Context, customerID string) ([]*types.Invoice, error)
	TasksForCustomer(ctx context.Context, customerID string, status string) ([]*types.Task, error)
	WorkOrdersForOrder(ctx context.Context, salesOrderID string) ([]*types.WorkOrder, error)
	InvoicesForOrder(ctx context.Context, salesOrderID string) ([]*types.Invoice, error)
	PaymentsForInvoice(ctx context.Context, invoiceID string) ([]*types.Payment, error)
	OverdueInvoices(ctx context.Context, asOf time.Time) ([]*types.Invoice, error)
}

// Store composes every interface the engine needs from one backend.
type Store interface {
	EntityStore
	RelationshipStore
	MemoryStore
	SessionStore
	ConsolidationStore
	ReferenceStore

	// Close releases any resources held by the store.
	Close() error
}
