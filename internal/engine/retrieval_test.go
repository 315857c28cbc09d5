package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexorial/memlink/pkg/types"
)

func writeTestMemory(t *testing.T, r *Retriever, text string, importance float64, createdAt time.Time) *types.Memory {
	t.Helper()
	m := &types.Memory{
		SessionID:  "sess-1",
		UserID:     "user-1",
		Kind:       types.MemoryKindEpisodic,
		Text:       text,
		Importance: importance,
		CreatedAt:  createdAt,
	}
	require.NoError(t, r.WriteMemory(context.Background(), m))
	return m
}

func TestRetrieveRanksExactSemanticMatchFirst(t *testing.T) {
	store := newEngineStore(t)
	retriever := NewRetriever(store, &stubEmbedder{}, Weights{})
	now := time.Now().UTC()

	writeTestMemory(t, retriever, "Gai Media prefers morning deliveries", 0.5, now)
	writeTestMemory(t, retriever, "Globex Industries pays by wire transfer", 0.5, now)

	results, err := retriever.Retrieve(context.Background(),
		"Gai Media prefers morning deliveries",
		RetrieveOptions{UserID: "user-1", Now: now})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Gai Media prefers morning deliveries", results[0].Memory.Text)
	assert.InDelta(t, 1.0, results[0].Components.Vector, 1e-6)
	assert.InDelta(t, 1.0, results[0].Components.Lexical, 1e-6)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestRetrieveWithoutEmbedderRenormalizesWeights(t *testing.T) {
	store := newEngineStore(t)
	retriever := NewRetriever(store, nil, Weights{})
	now := time.Now().UTC()

	writeTestMemory(t, retriever, "alpha beta", 0.5, now)

	results, err := retriever.Retrieve(context.Background(), "alpha beta",
		RetrieveOptions{UserID: "user-1", Now: now})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Vector weight 0.5 redistributed over lexical/recency/importance
	// (0.4/0.4/0.2): 0.4*1 + 0.4*1 + 0.2*0.5 = 0.9.
	assert.Zero(t, results[0].Components.Vector)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
}

func TestRetrieveEmbedderFailureFallsBackToLexical(t *testing.T) {
	store := newEngineStore(t)
	embedder := &stubEmbedder{}
	retriever := NewRetriever(store, embedder, Weights{})
	now := time.Now().UTC()

	writeTestMemory(t, retriever, "shipment delayed at the depot", 0.5, now)
	embedder.fail = true

	results, err := retriever.Retrieve(context.Background(), "shipment delayed",
		RetrieveOptions{UserID: "user-1", Now: now})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Components.Vector)
	assert.Positive(t, results[0].Score)
}

func TestRetrieveHonorsExpiry(t *testing.T) {
	store := newEngineStore(t)
	retriever := NewRetriever(store, nil, Weights{})
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Defaults to a 30 day TTL.
	writeTestMemory(t, retriever, "transient note about the spring campaign", 0.5, created)

	at29d, err := retriever.Retrieve(context.Background(), "spring campaign",
		RetrieveOptions{UserID: "user-1", Now: created.Add(29 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, at29d, 1)

	at31d, err := retriever.Retrieve(context.Background(), "spring campaign",
		RetrieveOptions{UserID: "user-1", Now: created.Add(31 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, at31d, "expired memories must not surface")
}

func TestRetrieveRecencyBreaksLexicalTies(t *testing.T) {
	store := newEngineStore(t)
	retriever := NewRetriever(store, nil, Weights{})
	now := time.Now().UTC()

	writeTestMemory(t, retriever, "invoice dispute opened", 0.5, now.Add(-20*24*time.Hour))
	writeTestMemory(t, retriever, "invoice dispute escalated", 0.5, now.Add(-time.Hour))

	results, err := retriever.Retrieve(context.Background(), "invoice dispute",
		RetrieveOptions{UserID: "user-1", Now: now})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "invoice dispute escalated", results[0].Memory.Text)
}

func TestRetrieveTopKAndDeterminism(t *testing.T) {
	store := newEngineStore(t)
	retriever := NewRetriever(store, nil, Weights{})
	now := time.Now().UTC()

	for i, text := range []string{"note one", "note two", "note three", "note four"} {
		writeTestMemory(t, retriever, text, 0.5, now.Add(-time.Duration(i)*time.Minute))
	}

	opts := RetrieveOptions{UserID: "user-1", TopK: 2, Now: now}
	first, err := retriever.Retrieve(context.Background(), "note", opts)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := retriever.Retrieve(context.Background(), "note", opts)
	require.NoError(t, err)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].Memory.ID, second[i].Memory.ID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestRetrieveRequiresUser(t *testing.T) {
	store := newEngineStore(t)
	retriever := NewRetriever(store, nil, Weights{})

	_, err := retriever.Retrieve(context.Background(), "anything", RetrieveOptions{})
	assert.Error(t, err)
}

func TestWriteMemoryDefaults(t *testing.T) {
	store := newEngineStore(t)
	retriever := NewRetriever(store, &stubEmbedder{}, Weights{})

	m := &types.Memory{
		SessionID:  "sess-1",
		UserID:     "user-1",
		Kind:       types.MemoryKindSemantic,
		Text:       "Gai Media is on net-30 terms",
		Importance: 1.5,
	}
	require.NoError(t, retriever.WriteMemory(context.Background(), m))

	assert.Equal(t, 1.0, m.Importance, "importance is clamped to [0,1]")
	assert.Equal(t, 30, m.TTLDays)
	require.NotNil(t, m.ExpiresAt)
	assert.Equal(t, m.CreatedAt.Add(30*24*time.Hour), *m.ExpiresAt)
	assert.NotEmpty(t, m.Embedding)

	stored, err := store.GetMemory(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Text, stored.Text)
}
