package engine

import (
	"context"
	"hash/fnv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexorial/memlink/internal/storage/sqlite"
	"github.com/nexorial/memlink/pkg/types"
)

// stubEmbedder returns deterministic vectors derived from the text, so
// identical texts always score cosine 1.0 against each other.
type stubEmbedder struct {
	calls int
	fail  bool
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.fail {
		return nil, context.DeadlineExceeded
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum32()
		vec := make([]float32, 8)
		for j := range vec {
			seed = seed*1664525 + 1013904223
			vec[j] = float32(seed%1000)/1000 - 0.5
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (s *stubEmbedder) GetModel() string { return "stub" }

// stubGenerator returns a canned completion.
type stubGenerator struct {
	response string
	fail     bool
	prompts  []string
}

func (s *stubGenerator) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.fail {
		return "", context.DeadlineExceeded
	}
	return s.response, nil
}

func (s *stubGenerator) GetModel() string { return "stub" }

func newEngineStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SeedReference(context.Background(), sqlite.ReferenceDataset{
		Customers: []*types.Customer{
			{ID: "cust-1", Name: "Gai Media", Industry: "publishing", CreatedAt: now},
			{ID: "cust-2", Name: "Globex Industries", CreatedAt: now},
		},
		SalesOrders: []*types.SalesOrder{
			{ID: "so-1", CustomerID: "cust-1", Number: "SO-1001", Title: "Spring campaign", Status: types.OrderStatusApproved, CreatedAt: now},
		},
		WorkOrders: []*types.WorkOrder{
			{ID: "wo-1", SalesOrderID: "so-1", Number: "WO-2001", Status: types.WorkOrderStatusQueued},
		},
		Invoices: []*types.Invoice{
			{ID: "inv-1", SalesOrderID: "so-1", Number: "INV-3001", Amount: 1200, DueDate: now.Add(14 * 24 * time.Hour), Status: types.InvoiceStatusOpen, IssuedAt: now},
		},
		Payments: []*types.Payment{
			{ID: "pay-1", InvoiceID: "inv-1", Amount: 600, Method: "wire", PaidAt: now.Add(24 * time.Hour)},
		},
	}))
	return store
}

func newTestEngine(t *testing.T) (*Engine, *sqlite.Store) {
	t.Helper()
	store := newEngineStore(t)
	return New(store, &stubEmbedder{}, &stubGenerator{response: "summary"}, Config{}), store
}

func TestProcessTurnEndToEnd(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	result, err := eng.ProcessTurn(ctx, TurnInput{
		UserID:    "user-1",
		SessionID: "sess-1",
		Text:      "Gai Media prefers morning delivery slots for SO-1001",
	})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, e := range result.Entities {
		names[e.Name] = true
	}
	assert.True(t, names["Gai Media"], "customer mention should resolve")
	assert.True(t, names["SO-1001"], "order identifier should resolve")
	assert.True(t, names["delivery"], "business term should resolve")
	assert.Len(t, result.EntityIDs, len(result.Entities))

	require.Len(t, result.Relationships, 1)
	assert.Equal(t, types.PredicatePrefers, result.Relationships[0].Predicate)
	assert.Equal(t, "morning delivery slots for SO-1001", result.Relationships[0].ObjectValue)

	memory, err := store.GetMemory(ctx, result.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryKindEpisodic, memory.Kind)
	assert.Equal(t, 0.5, memory.Importance)
	assert.Equal(t, 30, memory.TTLDays)
	assert.Equal(t, "turn", memory.Provenance["origin"])
	assert.NotEmpty(t, memory.Provenance["entity_ids"])

	session, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, 1, session.TurnCount)
}

func TestProcessTurnCreatesSessionOnce(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := eng.ProcessTurn(ctx, TurnInput{
			UserID:    "user-1",
			SessionID: "sess-1",
			Text:      "checking in on the order",
		})
		require.NoError(t, err)
	}

	sessions, err := store.SessionsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].TurnCount)
}

func TestProcessTurnValidatesInput(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.ProcessTurn(context.Background(), TurnInput{UserID: "user-1"})
	assert.Error(t, err)
}

func TestBuildContextSections(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.ProcessTurn(ctx, TurnInput{
		UserID:    "user-1",
		SessionID: "sess-1",
		Text:      "Gai Media prefers morning deliveries",
	})
	require.NoError(t, err)

	built, err := eng.BuildContext(ctx, "what does Gai Media prefer?", ContextOptions{UserID: "user-1"})
	require.NoError(t, err)

	assert.Contains(t, built, "Relevant memories:")
	assert.Contains(t, built, "Gai Media prefers morning deliveries")
	assert.Contains(t, built, "Known facts:")
	assert.Contains(t, built, "(Gai Media, prefers, morning deliveries)")
	assert.Contains(t, built, "=== Customer: Gai Media ===")
	assert.Contains(t, built, "• (Customer, industry, publishing)")
}

func TestBuildContextInvoiceRollup(t *testing.T) {
	eng, _ := newTestEngine(t)

	built, err := eng.BuildContext(context.Background(), "what's outstanding on INV-3001?",
		ContextOptions{UserID: "user-1"})
	require.NoError(t, err)

	assert.Contains(t, built, "=== Invoice: INV-3001 ===")
	assert.Contains(t, built, "• (INV-3001, amount, $1200.00)")
	assert.Contains(t, built, "• (INV-3001, total_paid, $600.00)")
	assert.Contains(t, built, "• (INV-3001, balance, $600.00)")
}

func TestBuildContextRequiresUser(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.BuildContext(context.Background(), "anything", ContextOptions{})
	assert.Error(t, err)
}
