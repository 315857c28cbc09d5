// Package types defines the core data structures for the memlink memory
// engine: entities extracted from conversation, the typed relationship
// graph connecting them, memory records with importance/TTL metadata, and
// the read-only business records they link to.
package types

// Entity type constants. Entities are either references to business
// records (customer, sales_order, invoice, work_order), people, or
// curated domain concepts (business_term).
const (
	EntityTypeCustomer     = "customer"
	EntityTypeSalesOrder   = "sales_order"
	EntityTypeInvoice      = "invoice"
	EntityTypeWorkOrder    = "work_order"
	EntityTypeBusinessTerm = "business_term"
	EntityTypePerson       = "person"
)

// ValidEntityTypes is a slice of all valid entity types for validation.
var ValidEntityTypes = []string{
	EntityTypeCustomer,
	EntityTypeSalesOrder,
	EntityTypeInvoice,
	EntityTypeWorkOrder,
	EntityTypeBusinessTerm,
	EntityTypePerson,
}

// Entity source constants describe how an entity was produced.
const (
	// EntitySourceMessage marks entities extracted from conversational text
	// that did not resolve to a business record.
	EntitySourceMessage = "message"

	// EntitySourceDB marks entities linked to a record in the reference store.
	EntitySourceDB = "db"

	// EntitySourceAlias marks entities created through alias resolution.
	EntitySourceAlias = "alias"
)

// ValidEntitySources is a slice of all valid entity sources for validation.
var ValidEntitySources = []string{EntitySourceMessage, EntitySourceDB, EntitySourceAlias}

// Alias source constants describe why an alias row exists.
const (
	AliasSourceUserCorrection = "user_correction"
	AliasSourceFuzzyMatch     = "fuzzy_match"
	AliasSourceMultilingual   = "multilingual"
)

// ValidAliasSources is a slice of all valid alias sources for validation.
var ValidAliasSources = []string{AliasSourceUserCorrection, AliasSourceFuzzyMatch, AliasSourceMultilingual}

// Relationship source constants. Schema-derived triples carry the highest
// confidence; conversational and inferred triples are strictly lower.
const (
	RelationshipSourceSchema       = "schema"
	RelationshipSourceConversation = "conversation"
	RelationshipSourceInference    = "inference"
)

// ValidRelationshipSources is a slice of all valid relationship sources.
var ValidRelationshipSources = []string{
	RelationshipSourceSchema,
	RelationshipSourceConversation,
	RelationshipSourceInference,
}

// Predicate constants. The predicate vocabulary is open but curated:
// schema derivation only ever emits the first three, conversational
// extraction the rest.
const (
	PredicateIssuedTo      = "issued_to"
	PredicateBelongsTo     = "belongs_to"
	PredicatePays          = "pays"
	PredicatePrefers       = "prefers"
	PredicateRequires      = "requires"
	PredicateHasPolicy     = "has_policy"
	PredicateHasCommitment = "has_commitment"
)

// ValidPredicates is a slice of all curated predicates.
var ValidPredicates = []string{
	PredicateIssuedTo,
	PredicateBelongsTo,
	PredicatePays,
	PredicatePrefers,
	PredicateRequires,
	PredicateHasPolicy,
	PredicateHasCommitment,
}

// Memory kind constants classify the nature of a stored memory.
const (
	MemoryKindEpisodic   = "episodic"
	MemoryKindSemantic   = "semantic"
	MemoryKindProfile    = "profile"
	MemoryKindPolicy     = "policy"
	MemoryKindCommitment = "commitment"
	MemoryKindTodo       = "todo"
)

// ValidMemoryKinds is a slice of all valid memory kinds for validation.
var ValidMemoryKinds = []string{
	MemoryKindEpisodic,
	MemoryKindSemantic,
	MemoryKindProfile,
	MemoryKindPolicy,
	MemoryKindCommitment,
	MemoryKindTodo,
}

// IsValidEntityType checks if the given entity type is valid.
func IsValidEntityType(entityType string) bool {
	return contains(ValidEntityTypes, entityType)
}

// IsValidEntitySource checks if the given entity source is valid.
func IsValidEntitySource(source string) bool {
	return contains(ValidEntitySources, source)
}

// IsValidAliasSource checks if the given alias source is valid.
func IsValidAliasSource(source string) bool {
	return contains(ValidAliasSources, source)
}

// IsValidRelationshipSource checks if the given relationship source is valid.
func IsValidRelationshipSource(source string) bool {
	return contains(ValidRelationshipSources, source)
}

// IsValidPredicate checks if the given predicate is in the curated set.
func IsValidPredicate(predicate string) bool {
	return contains(ValidPredicates, predicate)
}

// IsValidMemoryKind checks if the given memory kind is valid.
func IsValidMemoryKind(kind string) bool {
	return contains(ValidMemoryKinds, kind)
}

func contains(valid []string, v string) bool {
	for _, s := range valid {
		if s == v {
			return true
		}
	}
	return false
}
