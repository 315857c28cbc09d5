package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nexorial/memlink/internal/llm"
	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/pkg/types"
)

const (
	// defaultWindowSize is how many sessions form one consolidation window.
	defaultWindowSize = 3

	// fallbackSummaryLimit bounds the concatenated fallback summary.
	fallbackSummaryLimit = 2000
)

// Consolidator folds completed session windows into durable summaries.
// Sessions are ordered by start time per user and grouped into fixed-size
// windows; once a window's last session ends, its memories are summarized
// and flagged. The store's unique summary index makes concurrent runs
// safe: one writer wins, the rest observe ErrAlreadyConsolidated.
type Consolidator struct {
	store      storage.Store
	generator  llm.TextGenerator
	embedder   llm.EmbeddingGenerator
	windowSize int
}

// NewConsolidator creates a consolidator. Both the generator and the
// embedder may be nil: summaries then fall back to concatenation and are
// stored without embeddings.
func NewConsolidator(store storage.Store, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, windowSize int) *Consolidator {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &Consolidator{store: store, generator: generator, embedder: embedder, windowSize: windowSize}
}

// Consolidate processes every complete, unconsolidated session window for
// the user and returns the number of summaries written. Incomplete
// trailing windows are left for a later run. Windows already consolidated
// (here or by a concurrent run) are skipped.
func (c *Consolidator) Consolidate(ctx context.Context, userID string) (int, error) {
	sessions, err := c.store.SessionsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start+c.windowSize <= len(sessions); start += c.windowSize {
		window := sessions[start : start+c.windowSize]
		windowNumber := start/c.windowSize + 1

		allConsolidated := true
		for _, s := range window {
			if !s.Consolidated {
				allConsolidated = false
				break
			}
		}
		if allConsolidated {
			continue
		}

		if err := c.consolidateWindow(ctx, userID, windowNumber, window); err != nil {
			if err == storage.ErrAlreadyConsolidated {
				log.Printf("engine: window %d for user %s already consolidated, skipping", windowNumber, userID)
				continue
			}
			return written, err
		}
		written++
	}
	return written, nil
}

// consolidateWindow generates the summary before opening the transaction,
// so no lock is held across LLM calls.
func (c *Consolidator) consolidateWindow(ctx context.Context, userID string, windowNumber int, window []*types.Session) error {
	sessionIDs := make([]string, len(window))
	for i, s := range window {
		sessionIDs[i] = s.ID
	}

	memories, err := c.store.UnconsolidatedMemories(ctx, userID, sessionIDs)
	if err != nil {
		return err
	}

	summaryText := c.summarize(ctx, memories)
	memoryIDs := make([]string, len(memories))
	importance := 0.0
	for i, m := range memories {
		memoryIDs[i] = m.ID
		if m.Importance > importance {
			importance = m.Importance
		}
	}

	summary := &types.MemorySummary{
		UserID:                userID,
		SessionWindow:         windowNumber,
		SummaryText:           summaryText,
		ConsolidatedMemoryIDs: memoryIDs,
		Importance:            importance,
		CreatedAt:             time.Now().UTC(),
	}
	if c.embedder != nil {
		if vec, err := c.embedder.Embed(ctx, summaryText); err != nil {
			log.Printf("engine: summary embedding failed, storing without vector: %v", err)
		} else {
			summary.Embedding = vec
		}
	}

	return c.store.SaveSummary(ctx, summary, sessionIDs)
}

// summarize asks the text generator for a summary, falling back to plain
// concatenation when the generator is absent or fails.
func (c *Consolidator) summarize(ctx context.Context, memories []*types.Memory) string {
	if len(memories) == 0 {
		return "No memories recorded in this window."
	}

	if c.generator != nil {
		text, err := c.generator.Complete(ctx, consolidationPrompt(memories))
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		if err != nil {
			log.Printf("engine: summary generation failed, using fallback: %v", err)
		}
	}
	return fallbackSummary(memories)
}

func consolidationPrompt(memories []*types.Memory) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversational memories into a concise paragraph. ")
	b.WriteString("Preserve customer names, order numbers, preferences, policies and commitments.\n\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%s] %s\n", m.Kind, m.Text)
	}
	return b.String()
}

// fallbackSummary concatenates memory texts and truncates at a word
// boundary.
func fallbackSummary(memories []*types.Memory) string {
	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Text
	}
	joined := strings.Join(texts, " ")
	if len(joined) <= fallbackSummaryLimit {
		return joined
	}
	cut := joined[:fallbackSummaryLimit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
