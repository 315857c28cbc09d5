package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/nexorial/memlink/internal/llm"
	"github.com/nexorial/memlink/internal/similarity"
	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/internal/vocab"
	"github.com/nexorial/memlink/pkg/types"
)

// conversationalConfidence ranks conversational triples below schema-derived
// ones (always 1.0).
const conversationalConfidence = 0.8

// RelationshipBuilder derives typed triples two ways: from the reference
// dataset's foreign keys (schema triples) and from trigger phrases in
// conversation text.
type RelationshipBuilder struct {
	entities      storage.EntityStore
	relationships storage.RelationshipStore
	reference     storage.ReferenceStore
	embedder      llm.EmbeddingGenerator
	vocabulary    *vocab.Vocabulary
	now           func() time.Time
}

// NewRelationshipBuilder creates a builder. The embedder may be nil;
// triples are then stored without embeddings.
func NewRelationshipBuilder(entities storage.EntityStore, relationships storage.RelationshipStore,
	reference storage.ReferenceStore, embedder llm.EmbeddingGenerator, vocabulary *vocab.Vocabulary) *RelationshipBuilder {
	if vocabulary == nil {
		vocabulary = vocab.Default()
	}
	return &RelationshipBuilder{
		entities:      entities,
		relationships: relationships,
		reference:     reference,
		embedder:      embedder,
		vocabulary:    vocabulary,
		now:           time.Now,
	}
}

// BuildSchemaRelationships walks the reference dataset's foreign keys and
// emits a triple for every link whose endpoints both have linked entities:
// sales order issued_to customer, invoice and work order belongs_to sales
// order, payment pays invoice. Existing triples are skipped by the store,
// so repeated runs are idempotent. Returns ids of newly inserted triples.
func (b *RelationshipBuilder) BuildSchemaRelationships(ctx context.Context) ([]string, error) {
	type source struct {
		links     func(context.Context) ([]storage.SchemaLink, error)
		predicate string
	}
	sources := []source{
		{b.reference.SalesOrderCustomerLinks, types.PredicateIssuedTo},
		{b.reference.InvoiceOrderLinks, types.PredicateBelongsTo},
		{b.reference.WorkOrderOrderLinks, types.PredicateBelongsTo},
		{b.reference.PaymentInvoiceLinks, types.PredicatePays},
	}

	var triples []*types.Relationship
	for _, src := range sources {
		links, err := src.links(ctx)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			subject, err := b.entities.FindByExternalRef(ctx, link.SubjectTable, link.SubjectID)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			object, err := b.entities.FindByExternalRef(ctx, link.ObjectTable, link.ObjectID)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}

			triples = append(triples, &types.Relationship{
				SubjectEntityID: subject.ID,
				Predicate:       src.predicate,
				ObjectEntityID:  object.ID,
				Confidence:      1.0,
				Source:          types.RelationshipSourceSchema,
				CreatedAt:       b.now().UTC(),
				Embedding:       b.embedTriple(ctx, link.SubjectLabel, src.predicate, link.ObjectLabel),
			})
		}
	}

	return b.relationships.StoreRelationships(ctx, triples)
}

// ExtractConversational scans text for trigger phrases and attributes each
// to the customer entity mentioned nearest the trigger. The entities must
// already be persisted (carry ids). An object clause that names a known
// entity links to it; anything else stays a literal value. Returns the
// derived triples without storing them.
func (b *RelationshipBuilder) ExtractConversational(ctx context.Context, text string, entities []*types.Entity) []*types.Relationship {
	var customers []*types.Entity
	for _, e := range entities {
		if e.Type == types.EntityTypeCustomer && e.ID != "" {
			customers = append(customers, e)
		}
	}
	if len(customers) == 0 {
		return nil
	}

	var triples []*types.Relationship
	for predicate, patterns := range b.vocabulary.Triggers {
		for _, re := range patterns {
			for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
				if len(loc) < 4 || loc[2] < 0 {
					continue
				}
				objectValue := strings.TrimSpace(text[loc[2]:loc[3]])
				if objectValue == "" {
					continue
				}
				subject := nearestCustomer(customers, text, loc[0])

				triple := &types.Relationship{
					SubjectEntityID: subject.ID,
					Predicate:       predicate,
					Confidence:      conversationalConfidence,
					Source:          types.RelationshipSourceConversation,
					CreatedAt:       b.now().UTC(),
					Embedding:       b.embedTriple(ctx, subject.Name, predicate, objectValue),
				}
				if object := b.resolveObject(ctx, subject, entities, objectValue); object != nil {
					triple.ObjectEntityID = object.ID
				} else {
					triple.ObjectValue = objectValue
				}
				triples = append(triples, triple)
			}
		}
	}

	// Trigger map iteration is unordered; fix the output order.
	sort.SliceStable(triples, func(i, j int) bool {
		if triples[i].Predicate != triples[j].Predicate {
			return triples[i].Predicate < triples[j].Predicate
		}
		return triples[i].Object() < triples[j].Object()
	})
	return triples
}

// resolveObject links an object clause to a known entity: the current
// turn's entities first, then the user's stored entities by name. The
// subject itself never serves as its own object. A nil return leaves
// the clause a literal.
func (b *RelationshipBuilder) resolveObject(ctx context.Context, subject *types.Entity, entities []*types.Entity, clause string) *types.Entity {
	canonical := types.Canonicalize(clause)
	for _, e := range entities {
		if e.ID != "" && e.ID != subject.ID && e.CanonicalName == canonical {
			return e
		}
	}

	found, err := b.entities.FindEntityByName(ctx, subject.UserID, clause)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		log.Printf("engine: object lookup for %q failed: %v", clause, err)
		return nil
	}
	if found.ID == subject.ID {
		return nil
	}
	return found
}

// ScoredRelationship pairs a triple with its semantic match score.
type ScoredRelationship struct {
	Relationship *types.Relationship
	Score        float64
}

// SearchRelationships ranks embedded triples by cosine similarity to the
// query. Requires an embedder.
func (b *RelationshipBuilder) SearchRelationships(ctx context.Context, query string, limit int) ([]ScoredRelationship, error) {
	if b.embedder == nil {
		return nil, fmt.Errorf("engine: relationship search requires an embedder")
	}
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rels, err := b.relationships.RelationshipsWithEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredRelationship, 0, len(rels))
	for _, r := range rels {
		scored = append(scored, ScoredRelationship{
			Relationship: r,
			Score:        similarity.Cosine(queryVec, r.Embedding),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// nearestCustomer picks the customer whose name occurrence sits closest
// to the trigger position. Falls back to the first customer when no name
// occurs literally in the text.
func nearestCustomer(customers []*types.Entity, text string, position int) *types.Entity {
	if len(customers) == 1 {
		return customers[0]
	}

	textLower := strings.ToLower(text)
	best := customers[0]
	minDistance := -1
	for _, c := range customers {
		nameLower := strings.ToLower(c.Name)
		offset := 0
		for {
			idx := strings.Index(textLower[offset:], nameLower)
			if idx < 0 {
				break
			}
			at := offset + idx
			distance := position - at
			if distance < 0 {
				distance = -distance
			}
			if minDistance < 0 || distance < minDistance {
				minDistance = distance
				best = c
			}
			offset = at + len(nameLower)
		}
	}
	return best
}

func (b *RelationshipBuilder) embedTriple(ctx context.Context, subject, predicate, object string) []float32 {
	if b.embedder == nil {
		return nil
	}
	vec, err := b.embedder.Embed(ctx, subject+" "+predicate+" "+object)
	if err != nil {
		log.Printf("engine: triple embedding failed: %v", err)
		return nil
	}
	return vec
}
