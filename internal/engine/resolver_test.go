package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexorial/memlink/pkg/types"
)

func newTestResolver(t *testing.T) (*Resolver, *sqliteStores) {
	t.Helper()
	store := newEngineStore(t)
	return NewResolver(store, store, nil, nil, ResolverConfig{}), &sqliteStores{store}
}

// sqliteStores gives tests direct store access next to the resolver.
type sqliteStores struct {
	store interface {
		StoreEntities(ctx context.Context, entities []*types.Entity) ([]string, error)
		ListAliases(ctx context.Context, entityID string) ([]*types.EntityAlias, error)
	}
}

func TestResolveDeterministicIdentifier(t *testing.T) {
	resolver, _ := newTestResolver(t)

	entities, err := resolver.Resolve(context.Background(), "user-1", "sess-1",
		"What's the status of SO-1001?")
	require.NoError(t, err)

	var so *types.Entity
	for _, e := range entities {
		if e.Type == types.EntityTypeSalesOrder {
			so = e
		}
	}
	require.NotNil(t, so, "expected a sales order entity")
	assert.Equal(t, "SO-1001", so.Name)
	assert.Equal(t, 1.0, so.Confidence)
	assert.Equal(t, types.EntitySourceDB, so.Source)
	require.NotNil(t, so.ExternalRef)
	assert.Equal(t, types.TableSalesOrders, so.ExternalRef.Table)
	assert.Equal(t, "so-1", so.ExternalRef.ID)
}

func TestResolveUnknownIdentifierStaysUnlinked(t *testing.T) {
	resolver, _ := newTestResolver(t)

	entities, err := resolver.Resolve(context.Background(), "user-1", "sess-1",
		"any update on SO-9999?")
	require.NoError(t, err)

	var so *types.Entity
	for _, e := range entities {
		if e.Type == types.EntityTypeSalesOrder {
			so = e
		}
	}
	require.NotNil(t, so, "unmatched identifier should still surface")
	assert.Equal(t, "SO-9999", so.Name)
	assert.Equal(t, 1.0, so.Confidence)
	assert.Equal(t, types.EntitySourceMessage, so.Source)
	assert.Nil(t, so.ExternalRef)
}

func TestResolveLowercaseIdentifier(t *testing.T) {
	resolver, _ := newTestResolver(t)

	entities, err := resolver.Resolve(context.Background(), "user-1", "sess-1",
		"is inv-3001 paid yet?")
	require.NoError(t, err)

	require.NotEmpty(t, entities)
	assert.Equal(t, "INV-3001", entities[0].Name)
	assert.Equal(t, types.EntityTypeInvoice, entities[0].Type)
}

func TestResolveExactCustomerName(t *testing.T) {
	resolver, _ := newTestResolver(t)

	entities, err := resolver.Resolve(context.Background(), "user-1", "sess-1",
		"Gai Media called about their invoices")
	require.NoError(t, err)

	var customer *types.Entity
	for _, e := range entities {
		if e.Type == types.EntityTypeCustomer {
			customer = e
		}
	}
	require.NotNil(t, customer)
	assert.Equal(t, "Gai Media", customer.Name)
	assert.Equal(t, 0.95, customer.Confidence)
	require.NotNil(t, customer.ExternalRef)
	assert.Equal(t, "cust-1", customer.ExternalRef.ID)
}

func TestResolveMisspelledCustomerName(t *testing.T) {
	resolver, _ := newTestResolver(t)

	entities, err := resolver.Resolve(context.Background(), "user-1", "sess-1",
		"Gai Meda wants an update")
	require.NoError(t, err)

	var customer *types.Entity
	for _, e := range entities {
		if e.Type == types.EntityTypeCustomer {
			customer = e
		}
	}
	require.NotNil(t, customer, "misspelling should still resolve")
	assert.Equal(t, "Gai Media", customer.Name)
	assert.Greater(t, customer.Confidence, 0.3)
	assert.Less(t, customer.Confidence, 1.0)
}

func TestResolveRecencyBoost(t *testing.T) {
	resolver, stores := newTestResolver(t)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "user-1", "sess-1", "Gai Media called")
	require.NoError(t, err)
	_, err = stores.store.StoreEntities(ctx, first)
	require.NoError(t, err)

	second, err := resolver.Resolve(ctx, "user-1", "sess-1", "Gai Media called again")
	require.NoError(t, err)

	var customer *types.Entity
	for _, e := range second {
		if e.Type == types.EntityTypeCustomer {
			customer = e
		}
	}
	require.NotNil(t, customer)
	// Base 0.95 plus one recent mention stays capped at 0.95.
	assert.Equal(t, 0.95, customer.Confidence)
}

func TestResolveBusinessTerms(t *testing.T) {
	resolver, _ := newTestResolver(t)

	entities, err := resolver.Resolve(context.Background(), "user-1", "sess-1",
		"set up a delivery and confirm the payment schedule")
	require.NoError(t, err)

	terms := make(map[string]float64)
	for _, e := range entities {
		if e.Type == types.EntityTypeBusinessTerm {
			terms[e.Name] = e.Confidence
		}
	}
	assert.Equal(t, 0.55, terms["delivery"])
	assert.Equal(t, 0.55, terms["payment"])
	for _, e := range entities {
		if e.Type == types.EntityTypeBusinessTerm {
			assert.Equal(t, types.EntitySourceMessage, e.Source)
		}
	}
}

func TestResolveDeduplicatesAndOrders(t *testing.T) {
	resolver, _ := newTestResolver(t)

	entities, err := resolver.Resolve(context.Background(), "user-1", "sess-1",
		"Gai Media ordered SO-1001, Gai Media confirmed the order")
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, e := range entities {
		seen[e.CanonicalName+"|"+e.Type]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, "duplicate entity %s", key)
	}

	// Ordered by confidence descending.
	for i := 1; i < len(entities); i++ {
		assert.GreaterOrEqual(t, entities[i-1].Confidence, entities[i].Confidence)
	}
	assert.Equal(t, "SO-1001", entities[0].Name)
}

func TestResolveIsDeterministic(t *testing.T) {
	resolver, _ := newTestResolver(t)
	ctx := context.Background()
	text := "Gai Media asked about SO-1001 and INV-3001 delivery"

	first, err := resolver.Resolve(ctx, "user-1", "sess-1", text)
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, "user-1", "sess-1", text)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.Equal(t, first[i].Type, second[i].Type)
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
	}
}

func TestRecordCorrection(t *testing.T) {
	resolver, stores := newTestResolver(t)
	ctx := context.Background()

	entities, err := resolver.Resolve(ctx, "user-1", "sess-1", "Gai Media called")
	require.NoError(t, err)
	ids, err := stores.store.StoreEntities(ctx, entities)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	require.NoError(t, resolver.RecordCorrection(ctx, "user-1", "Guy Media", "Gai Media"))

	var entityID string
	for i, e := range entities {
		if e.Type == types.EntityTypeCustomer {
			entityID = ids[i]
		}
	}
	aliases, err := stores.store.ListAliases(ctx, entityID)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, "Guy Media", aliases[0].AliasText)
	assert.Equal(t, types.AliasSourceUserCorrection, aliases[0].Source)
	assert.Equal(t, 1.0, aliases[0].Confidence)
}

func TestResolveEmbeddingFailureIsNonFatal(t *testing.T) {
	store := newEngineStore(t)
	embedder := &stubEmbedder{fail: true}
	resolver := NewResolver(store, store, embedder, nil, ResolverConfig{})

	entities, err := resolver.Resolve(context.Background(), "user-1", "sess-1",
		"Gai Media asked about SO-1001")
	require.NoError(t, err)
	require.NotEmpty(t, entities)
	for _, e := range entities {
		assert.Empty(t, e.Embedding)
	}
}
