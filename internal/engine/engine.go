package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nexorial/memlink/internal/domain"
	"github.com/nexorial/memlink/internal/llm"
	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/internal/vocab"
	"github.com/nexorial/memlink/pkg/types"
)

// Config wires an Engine.
type Config struct {
	FuzzyFloor float64
	Weights    Weights
	WindowSize int
	Vocabulary *vocab.Vocabulary
}

// Engine is the façade over the resolver, relationship builder, retriever
// and consolidator. ProcessTurn ingests one conversational turn end to
// end; BuildContext assembles the retrieval-side prompt context.
type Engine struct {
	store         storage.Store
	resolver      *Resolver
	relationships *RelationshipBuilder
	retriever     *Retriever
	consolidator  *Consolidator
	reader        *domain.Reader
}

// New creates an engine over a storage backend. Both LLM clients may be
// nil; every embedding- or generation-dependent path degrades gracefully.
func New(store storage.Store, embedder llm.EmbeddingGenerator, generator llm.TextGenerator, cfg Config) *Engine {
	vocabulary := cfg.Vocabulary
	if vocabulary == nil {
		vocabulary = vocab.Default()
	}
	return &Engine{
		store:         store,
		resolver:      NewResolver(store, store, embedder, vocabulary, ResolverConfig{FuzzyFloor: cfg.FuzzyFloor}),
		relationships: NewRelationshipBuilder(store, store, store, embedder, vocabulary),
		retriever:     NewRetriever(store, embedder, cfg.Weights),
		consolidator:  NewConsolidator(store, generator, embedder, cfg.WindowSize),
		reader:        domain.NewReader(store),
	}
}

// Resolver exposes the entity resolver, for alias corrections.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Relationships exposes the relationship builder, for schema sync and
// semantic triple search.
func (e *Engine) Relationships() *RelationshipBuilder { return e.relationships }

// Retriever exposes the memory retriever.
func (e *Engine) Retriever() *Retriever { return e.retriever }

// Consolidator exposes the session consolidator.
func (e *Engine) Consolidator() *Consolidator { return e.consolidator }

// TurnInput is one conversational turn to ingest.
type TurnInput struct {
	UserID    string
	SessionID string
	Text      string

	// Kind classifies the turn's memory; defaults to episodic.
	Kind string

	// Importance in [0,1]; defaults to 0.5.
	Importance float64

	// TTLDays for the turn's memory; defaults to 30.
	TTLDays int
}

// TurnResult reports what a turn produced.
type TurnResult struct {
	Entities      []*types.Entity
	EntityIDs     []string
	Relationships []*types.Relationship
	MemoryID      string
}

// ProcessTurn ingests a turn: resolves and stores entities, derives and
// stores conversational triples, writes the turn memory, and touches the
// session. Entity and relationship failures abort; the memory write is
// the last step so a partial turn never leaves a memory without its
// entities.
func (e *Engine) ProcessTurn(ctx context.Context, turn TurnInput) (*TurnResult, error) {
	if turn.UserID == "" || turn.SessionID == "" || turn.Text == "" {
		return nil, fmt.Errorf("%w: user id, session id and text are required", storage.ErrInvalidInput)
	}
	if turn.Kind == "" {
		turn.Kind = types.MemoryKindEpisodic
	}
	if turn.Importance == 0 {
		turn.Importance = 0.5
	}

	if err := e.ensureSession(ctx, turn.UserID, turn.SessionID); err != nil {
		return nil, err
	}

	entities, err := e.resolver.Resolve(ctx, turn.UserID, turn.SessionID, turn.Text)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve entities: %w", err)
	}
	entityIDs, err := e.store.StoreEntities(ctx, entities)
	if err != nil {
		return nil, fmt.Errorf("engine: store entities: %w", err)
	}

	triples := e.relationships.ExtractConversational(ctx, turn.Text, entities)
	if _, err := e.store.StoreRelationships(ctx, triples); err != nil {
		return nil, fmt.Errorf("engine: store relationships: %w", err)
	}

	memory := &types.Memory{
		SessionID:  turn.SessionID,
		UserID:     turn.UserID,
		Kind:       turn.Kind,
		Text:       turn.Text,
		Importance: turn.Importance,
		TTLDays:    turn.TTLDays,
		Provenance: types.Provenance{
			"schema_version": "1",
			"origin":         "turn",
			"extractor":      "engine.ProcessTurn",
			"entity_ids":     strings.Join(entityIDs, ","),
		},
	}
	if err := e.retriever.WriteMemory(ctx, memory); err != nil {
		return nil, fmt.Errorf("engine: write memory: %w", err)
	}

	if err := e.store.TouchSession(ctx, turn.SessionID, time.Now().UTC()); err != nil {
		log.Printf("engine: failed to touch session %s: %v", turn.SessionID, err)
	}

	return &TurnResult{
		Entities:      entities,
		EntityIDs:     entityIDs,
		Relationships: triples,
		MemoryID:      memory.ID,
	}, nil
}

func (e *Engine) ensureSession(ctx context.Context, userID, sessionID string) error {
	_, err := e.store.GetSession(ctx, sessionID)
	if err == nil {
		return nil
	}
	if err != storage.ErrNotFound {
		return err
	}
	return e.store.CreateSession(ctx, &types.Session{ID: sessionID, UserID: userID})
}

// ContextOptions scopes BuildContext.
type ContextOptions struct {
	UserID string
	TopK   int
}

// BuildContext assembles the prompt context for a query: relevant
// memories, the triples of entities the query mentions, and domain
// rollups for directly referenced records. Each section degrades
// independently; a failing subsystem logs and is omitted.
func (e *Engine) BuildContext(ctx context.Context, query string, opts ContextOptions) (string, error) {
	if opts.UserID == "" {
		return "", fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}

	var sections []string

	memories, err := e.retriever.Retrieve(ctx, query, RetrieveOptions{UserID: opts.UserID, TopK: opts.TopK})
	if err != nil {
		log.Printf("engine: memory retrieval failed, omitting memories: %v", err)
	} else if len(memories) > 0 {
		var b strings.Builder
		b.WriteString("Relevant memories:\n")
		for _, sm := range memories {
			fmt.Fprintf(&b, "• %s\n", sm.Memory.Text)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	entities, err := e.resolver.Resolve(ctx, opts.UserID, "context", query)
	if err != nil {
		log.Printf("engine: context entity resolution failed: %v", err)
		entities = nil
	}

	if section := e.knownFactsSection(ctx, opts.UserID, entities); section != "" {
		sections = append(sections, section)
	}
	sections = append(sections, e.domainSections(ctx, entities)...)

	return strings.Join(sections, "\n\n"), nil
}

// knownFactsSection renders stored triples for the entities the query
// mentions.
func (e *Engine) knownFactsSection(ctx context.Context, userID string, entities []*types.Entity) string {
	var ids []string
	names := make(map[string]string)
	for _, entity := range entities {
		stored, err := e.store.FindEntityByName(ctx, userID, entity.Name)
		if err != nil {
			continue
		}
		ids = append(ids, stored.ID)
		names[stored.ID] = stored.Name
	}
	if len(ids) == 0 {
		return ""
	}

	rels, err := e.store.RelationshipsForEntities(ctx, ids)
	if err != nil {
		log.Printf("engine: relationship lookup failed, omitting facts: %v", err)
		return ""
	}
	if len(rels) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Known facts:\n")
	for _, r := range rels {
		object := r.ObjectValue
		if r.ObjectEntityID != "" {
			if obj, err := e.store.GetEntity(ctx, r.ObjectEntityID); err == nil {
				object = obj.Name
			} else {
				object = r.ObjectEntityID
			}
		}
		fmt.Fprintf(&b, "• (%s, %s, %s)\n", names[r.SubjectEntityID], r.Predicate, object)
	}
	return strings.TrimRight(b.String(), "\n")
}

// domainSections renders read-model rollups for records the query
// references directly.
func (e *Engine) domainSections(ctx context.Context, entities []*types.Entity) []string {
	var sections []string
	for _, entity := range entities {
		switch entity.Type {
		case types.EntityTypeCustomer:
			if entity.ExternalRef == nil {
				continue
			}
			data, err := e.reader.CustomerRollup(ctx, entity.ExternalRef.ID)
			if err != nil {
				log.Printf("engine: customer rollup for %s failed: %v", entity.Name, err)
				continue
			}
			sections = append(sections, domain.FormatCustomerContext(data))
		case types.EntityTypeSalesOrder:
			data, err := e.reader.SalesOrderRollup(ctx, entity.Name)
			if err != nil {
				log.Printf("engine: sales order rollup for %s failed: %v", entity.Name, err)
				continue
			}
			sections = append(sections, domain.FormatSalesOrderContext(data))
		case types.EntityTypeInvoice:
			data, err := e.reader.InvoiceRollup(ctx, entity.Name)
			if err != nil {
				log.Printf("engine: invoice rollup for %s failed: %v", entity.Name, err)
				continue
			}
			sections = append(sections, domain.FormatInvoiceContext(data))
		}
	}
	return sections
}
