package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/nexorial/memlink/internal/llm"
	"github.com/nexorial/memlink/internal/similarity"
	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/pkg/types"
)

const (
	// defaultTTLDays governs memory expiry when the caller sets none.
	defaultTTLDays = 30

	// recencyHalfLife is the decay half-life for the recency score.
	recencyHalfLife = 30 * 24 * time.Hour

	// defaultTopK is the retrieval result size when unset.
	defaultTopK = 10
)

// Weights blends the four retrieval signals. They are normalized to sum
// to 1 before scoring; when a memory or the query has no embedding, the
// vector weight is redistributed proportionally over the rest.
type Weights struct {
	Vector     float64
	Lexical    float64
	Recency    float64
	Importance float64
}

// DefaultWeights returns the standard blend.
func DefaultWeights() Weights {
	return Weights{Vector: 0.5, Lexical: 0.2, Recency: 0.2, Importance: 0.1}
}

func (w Weights) normalized() Weights {
	sum := w.Vector + w.Lexical + w.Recency + w.Importance
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Vector:     w.Vector / sum,
		Lexical:    w.Lexical / sum,
		Recency:    w.Recency / sum,
		Importance: w.Importance / sum,
	}
}

// withoutVector redistributes the vector weight over the other signals.
func (w Weights) withoutVector() Weights {
	return Weights{Lexical: w.Lexical, Recency: w.Recency, Importance: w.Importance}.normalized()
}

// ScoreComponents breaks a memory's relevance into its signals.
type ScoreComponents struct {
	Vector     float64
	Lexical    float64
	Recency    float64
	Importance float64
}

// ScoredMemory is a retrieval result.
type ScoredMemory struct {
	Memory     *types.Memory
	Score      float64
	Components ScoreComponents
}

// RetrieveOptions scopes and sizes a retrieval call.
type RetrieveOptions struct {
	UserID    string
	SessionID string   // optional: restrict to a session
	Kinds     []string // optional: restrict to memory kinds
	TopK      int      // default 10
	Now       time.Time
}

// Retriever ranks live memories against a query with a blend of vector,
// lexical, recency and importance signals.
type Retriever struct {
	memories storage.MemoryStore
	embedder llm.EmbeddingGenerator
	weights  Weights
}

// NewRetriever creates a retriever. The embedder may be nil; scoring then
// runs on the lexical, recency and importance signals only.
func NewRetriever(memories storage.MemoryStore, embedder llm.EmbeddingGenerator, weights Weights) *Retriever {
	zero := Weights{}
	if weights == zero {
		weights = DefaultWeights()
	}
	return &Retriever{memories: memories, embedder: embedder, weights: weights.normalized()}
}

// Retrieve scores the candidate memories and returns the top results,
// ordered by score descending with importance then creation time breaking
// ties. The ordering is deterministic for fixed inputs.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]ScoredMemory, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	candidates, err := r.memories.Candidates(ctx, storage.CandidateOptions{
		UserID:    opts.UserID,
		SessionID: opts.SessionID,
		Kinds:     opts.Kinds,
		Now:       opts.Now,
	})
	if err != nil {
		return nil, err
	}

	var queryVec []float32
	if r.embedder != nil {
		queryVec, err = r.embedder.Embed(ctx, query)
		if err != nil {
			log.Printf("engine: query embedding failed, falling back to lexical scoring: %v", err)
			queryVec = nil
		}
	}

	scored := make([]ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		scored = append(scored, r.score(m, query, queryVec, opts.Now))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Memory.Importance != scored[j].Memory.Importance {
			return scored[i].Memory.Importance > scored[j].Memory.Importance
		}
		return scored[i].Memory.CreatedAt.After(scored[j].Memory.CreatedAt)
	})

	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}
	return scored, nil
}

func (r *Retriever) score(m *types.Memory, query string, queryVec []float32, now time.Time) ScoredMemory {
	components := ScoreComponents{
		Lexical:    similarity.Lexical(query, m.Text),
		Recency:    similarity.Recency(m.CreatedAt, now, recencyHalfLife),
		Importance: m.Importance,
	}

	weights := r.weights
	if queryVec == nil || len(m.Embedding) == 0 {
		weights = r.weights.withoutVector()
	} else {
		components.Vector = similarity.Cosine(queryVec, m.Embedding)
		if components.Vector < 0 {
			components.Vector = 0
		}
	}

	score := components.Vector*weights.Vector +
		components.Lexical*weights.Lexical +
		components.Recency*weights.Recency +
		components.Importance*weights.Importance

	return ScoredMemory{Memory: m, Score: score, Components: components}
}

// WriteMemory validates and persists a memory: the importance is clamped
// to [0,1], a missing TTL defaults to 30 days, and the text is embedded
// best effort before the write.
func (r *Retriever) WriteMemory(ctx context.Context, m *types.Memory) error {
	if m == nil {
		return fmt.Errorf("%w: nil memory", storage.ErrInvalidInput)
	}

	m.ClampImportance()
	if m.TTLDays == 0 {
		m.TTLDays = defaultTTLDays
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.ComputeExpiry()

	if r.embedder != nil && len(m.Embedding) == 0 {
		vec, err := r.embedder.Embed(ctx, m.Text)
		if err != nil {
			log.Printf("engine: memory embedding failed, storing without vector: %v", err)
		} else {
			m.Embedding = vec
		}
	}

	return r.memories.WriteMemory(ctx, m)
}
