package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/internal/storage/sqlite"
	"github.com/nexorial/memlink/pkg/types"
)

// seedSessions creates n sessions for user-1, one memory each, starting
// an hour apart so the window order is fixed.
func seedSessions(t *testing.T, store *sqlite.Store, n int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < n; i++ {
		sessionID := fmt.Sprintf("sess-%d", i+1)
		started := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.CreateSession(ctx, &types.Session{
			ID:        sessionID,
			UserID:    "user-1",
			StartedAt: started,
		}))
		require.NoError(t, store.WriteMemory(ctx, &types.Memory{
			SessionID:  sessionID,
			UserID:     "user-1",
			Kind:       types.MemoryKindEpisodic,
			Text:       fmt.Sprintf("memory from session %d", i+1),
			Importance: 0.3 + 0.1*float64(i),
			CreatedAt:  started,
		}))
	}
}

func TestConsolidateWritesWindowSummary(t *testing.T) {
	store := newEngineStore(t)
	seedSessions(t, store, 3)
	generator := &stubGenerator{response: "The user discussed three sessions of work."}
	consolidator := NewConsolidator(store, generator, &stubEmbedder{}, 3)
	ctx := context.Background()

	written, err := consolidator.Consolidate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	summary, err := store.GetSummary(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "The user discussed three sessions of work.", summary.SummaryText)
	assert.Len(t, summary.ConsolidatedMemoryIDs, 3)
	assert.InDelta(t, 0.5, summary.Importance, 1e-9, "summary takes the max memory importance")
	assert.NotEmpty(t, summary.Embedding)

	// Source memories are flagged, not deleted, and drop out of retrieval.
	candidates, err := store.Candidates(ctx, storage.CandidateOptions{
		UserID: "user-1",
		Now:    time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)

	sessions, err := store.SessionsForUser(ctx, "user-1")
	require.NoError(t, err)
	for _, s := range sessions {
		assert.True(t, s.Consolidated)
	}
}

func TestConsolidateIsIdempotent(t *testing.T) {
	store := newEngineStore(t)
	seedSessions(t, store, 3)
	consolidator := NewConsolidator(store, &stubGenerator{response: "summary"}, nil, 3)
	ctx := context.Background()

	written, err := consolidator.Consolidate(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, written)

	again, err := consolidator.Consolidate(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestConsolidateSkipsIncompleteTrailingWindow(t *testing.T) {
	store := newEngineStore(t)
	seedSessions(t, store, 4)
	consolidator := NewConsolidator(store, &stubGenerator{response: "summary"}, nil, 3)
	ctx := context.Background()

	written, err := consolidator.Consolidate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	// The fourth session waits for two more before its window closes.
	sessions, err := store.SessionsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 4)
	assert.False(t, sessions[3].Consolidated)

	_, err = store.GetSummary(ctx, "user-1", 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConsolidateGeneratorFailureFallsBack(t *testing.T) {
	store := newEngineStore(t)
	seedSessions(t, store, 3)
	generator := &stubGenerator{fail: true}
	consolidator := NewConsolidator(store, generator, nil, 3)
	ctx := context.Background()

	written, err := consolidator.Consolidate(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, written)

	summary, err := store.GetSummary(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t,
		"memory from session 1 memory from session 2 memory from session 3",
		summary.SummaryText)
}

func TestConsolidatePromptCarriesMemories(t *testing.T) {
	store := newEngineStore(t)
	seedSessions(t, store, 3)
	generator := &stubGenerator{response: "summary"}
	consolidator := NewConsolidator(store, generator, nil, 3)

	_, err := consolidator.Consolidate(context.Background(), "user-1")
	require.NoError(t, err)

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "memory from session 1")
	assert.Contains(t, generator.prompts[0], "memory from session 3")
}
