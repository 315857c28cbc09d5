package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexorial/memlink/internal/storage/sqlite"
	"github.com/nexorial/memlink/pkg/types"
)

// storeLinkedEntities persists db-linked entities for the seeded records,
// as a turn through the resolver would.
func storeLinkedEntities(t *testing.T, store *sqlite.Store) map[string]*types.Entity {
	t.Helper()

	specs := []struct {
		name  string
		typ   string
		table string
		refID string
	}{
		{"Gai Media", types.EntityTypeCustomer, types.TableCustomers, "cust-1"},
		{"Globex Industries", types.EntityTypeCustomer, types.TableCustomers, "cust-2"},
		{"SO-1001", types.EntityTypeSalesOrder, types.TableSalesOrders, "so-1"},
		{"WO-2001", types.EntityTypeWorkOrder, types.TableWorkOrders, "wo-1"},
		{"INV-3001", types.EntityTypeInvoice, types.TableInvoices, "inv-1"},
	}

	byName := make(map[string]*types.Entity, len(specs))
	var entities []*types.Entity
	for _, s := range specs {
		e := &types.Entity{
			SessionID:     "sess-1",
			UserID:        "user-1",
			Name:          s.name,
			NameHash:      types.HashName(s.name),
			CanonicalName: types.Canonicalize(s.name),
			Type:          s.typ,
			Source:        types.EntitySourceDB,
			ExternalRef:   &types.ExternalRef{Table: s.table, ID: s.refID},
			Confidence:    1.0,
		}
		entities = append(entities, e)
		byName[s.name] = e
	}

	_, err := store.StoreEntities(context.Background(), entities)
	require.NoError(t, err)
	return byName
}

func TestBuildSchemaRelationships(t *testing.T) {
	store := newEngineStore(t)
	byName := storeLinkedEntities(t, store)
	builder := NewRelationshipBuilder(store, store, store, nil, nil)
	ctx := context.Background()

	ids, err := builder.BuildSchemaRelationships(ctx)
	require.NoError(t, err)
	// so-1 issued_to cust-1, inv-1 belongs_to so-1, wo-1 belongs_to so-1;
	// pay-1 has no linked payment entity and is skipped.
	assert.Len(t, ids, 3)

	rels, err := store.RelationshipsForEntities(ctx, []string{byName["SO-1001"].ID})
	require.NoError(t, err)

	var issued *types.Relationship
	for _, r := range rels {
		if r.Predicate == types.PredicateIssuedTo {
			issued = r
		}
	}
	require.NotNil(t, issued, "expected an issued_to triple for SO-1001")
	assert.Equal(t, byName["Gai Media"].ID, issued.ObjectEntityID)
	assert.Equal(t, 1.0, issued.Confidence)
	assert.Equal(t, types.RelationshipSourceSchema, issued.Source)
}

func TestBuildSchemaRelationshipsIsIdempotent(t *testing.T) {
	store := newEngineStore(t)
	storeLinkedEntities(t, store)
	builder := NewRelationshipBuilder(store, store, store, nil, nil)
	ctx := context.Background()

	first, err := builder.BuildSchemaRelationships(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := builder.BuildSchemaRelationships(ctx)
	require.NoError(t, err)
	assert.Empty(t, second, "rerun must not insert duplicate triples")
}

func TestExtractConversationalTriples(t *testing.T) {
	store := newEngineStore(t)
	byName := storeLinkedEntities(t, store)
	builder := NewRelationshipBuilder(store, store, store, nil, nil)

	text := "Gai Media prefers morning deliveries\nGlobex Industries requires signed POs"
	customers := []*types.Entity{byName["Gai Media"], byName["Globex Industries"]}

	triples := builder.ExtractConversational(context.Background(), text, customers)
	require.Len(t, triples, 2)

	// Output is ordered by predicate, so has_commitment < prefers < requires.
	prefers, requires := triples[0], triples[1]
	assert.Equal(t, types.PredicatePrefers, prefers.Predicate)
	assert.Equal(t, "morning deliveries", prefers.ObjectValue)
	assert.Equal(t, byName["Gai Media"].ID, prefers.SubjectEntityID)
	assert.Equal(t, 0.8, prefers.Confidence)
	assert.Equal(t, types.RelationshipSourceConversation, prefers.Source)

	assert.Equal(t, types.PredicateRequires, requires.Predicate)
	assert.Equal(t, "signed POs", requires.ObjectValue)
	assert.Equal(t, byName["Globex Industries"].ID, requires.SubjectEntityID)
}

func TestExtractConversationalResolvesObjectEntity(t *testing.T) {
	store := newEngineStore(t)
	byName := storeLinkedEntities(t, store)
	builder := NewRelationshipBuilder(store, store, store, nil, nil)
	ctx := context.Background()

	// Object named among the turn's entities links by id, not value.
	triples := builder.ExtractConversational(ctx,
		"Gai Media requires INV-3001",
		[]*types.Entity{byName["Gai Media"], byName["INV-3001"]})
	require.Len(t, triples, 1)
	assert.Equal(t, types.PredicateRequires, triples[0].Predicate)
	assert.Equal(t, byName["Gai Media"].ID, triples[0].SubjectEntityID)
	assert.Equal(t, byName["INV-3001"].ID, triples[0].ObjectEntityID)
	assert.Empty(t, triples[0].ObjectValue)

	// A previously stored entity resolves even when absent from the turn.
	triples = builder.ExtractConversational(ctx,
		"Gai Media requires WO-2001",
		[]*types.Entity{byName["Gai Media"]})
	require.Len(t, triples, 1)
	assert.Equal(t, byName["WO-2001"].ID, triples[0].ObjectEntityID)
	assert.Empty(t, triples[0].ObjectValue)
}

func TestExtractConversationalNeedsACustomer(t *testing.T) {
	store := newEngineStore(t)
	builder := NewRelationshipBuilder(store, store, store, nil, nil)

	triples := builder.ExtractConversational(context.Background(),
		"someone prefers morning deliveries", nil)
	assert.Empty(t, triples)
}

func TestExtractConversationalSingleCustomerFallback(t *testing.T) {
	store := newEngineStore(t)
	byName := storeLinkedEntities(t, store)
	builder := NewRelationshipBuilder(store, store, store, nil, nil)

	// The name never appears literally; the lone customer still gets the
	// triple.
	triples := builder.ExtractConversational(context.Background(),
		"they always want weekend delivery slots",
		[]*types.Entity{byName["Gai Media"]})
	require.NotEmpty(t, triples)
	for _, tr := range triples {
		assert.Equal(t, byName["Gai Media"].ID, tr.SubjectEntityID)
	}
}

func TestSearchRelationships(t *testing.T) {
	store := newEngineStore(t)
	byName := storeLinkedEntities(t, store)
	embedder := &stubEmbedder{}
	builder := NewRelationshipBuilder(store, store, store, embedder, nil)
	ctx := context.Background()

	texts := []string{
		"Gai Media prefers morning deliveries",
		"Globex Industries requires signed POs",
	}
	subjects := []*types.Entity{byName["Gai Media"], byName["Globex Industries"]}
	predicates := []string{types.PredicatePrefers, types.PredicateRequires}
	values := []string{"morning deliveries", "signed POs"}

	for i := range texts {
		vec, err := embedder.Embed(ctx, texts[i])
		require.NoError(t, err)
		_, err = store.StoreRelationships(ctx, []*types.Relationship{{
			SubjectEntityID: subjects[i].ID,
			Predicate:       predicates[i],
			ObjectValue:     values[i],
			Confidence:      0.8,
			Source:          types.RelationshipSourceConversation,
			Embedding:       vec,
		}})
		require.NoError(t, err)
	}

	results, err := builder.SearchRelationships(ctx, "Gai Media prefers morning deliveries", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "morning deliveries", results[0].Relationship.ObjectValue)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Less(t, results[1].Score, results[0].Score)
}

func TestSearchRelationshipsRequiresEmbedder(t *testing.T) {
	store := newEngineStore(t)
	builder := NewRelationshipBuilder(store, store, store, nil, nil)

	_, err := builder.SearchRelationships(context.Background(), "anything", 5)
	assert.Error(t, err)
}
