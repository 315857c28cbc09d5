// Package engine implements entity resolution, relationship derivation,
// blended memory retrieval and session consolidation on top of the
// storage interfaces.
package engine

import (
	"context"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/nexorial/memlink/internal/llm"
	"github.com/nexorial/memlink/internal/similarity"
	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/internal/vocab"
	"github.com/nexorial/memlink/pkg/types"
)

const (
	// deterministicConfidence is assigned to exact identifier matches.
	deterministicConfidence = 1.0

	// fuzzyConfidenceCap bounds fuzzy customer matches below deterministic
	// ones, recency boost included.
	fuzzyConfidenceCap = 0.95

	// businessTermConfidence is the fixed confidence of vocabulary hits.
	businessTermConfidence = 0.55

	// recencyBoostPerMention and recencyBoostCap shape the confidence
	// boost for names the user mentioned within the last hour.
	recencyBoostPerMention = 0.1
	recencyBoostCap        = 0.3
	recencyBoostWindow     = time.Hour

	// aliasRecordThreshold is the minimum JaroWinkler score between a text
	// span and a customer name for the span to be recorded as an alias.
	aliasRecordThreshold = 0.88
)

// Identifier patterns for deterministic extraction.
var (
	salesOrderPattern = regexp.MustCompile(`(?i)\b(SO-\d{4})\b`)
	invoicePattern    = regexp.MustCompile(`(?i)\b(INV-\d{4})\b`)
	workOrderPattern  = regexp.MustCompile(`(?i)\b(WO-\d{4})\b`)
)

// ResolverConfig tunes entity resolution.
type ResolverConfig struct {
	// FuzzyFloor is the minimum trigram similarity for a fuzzy customer
	// match. Default 0.3.
	FuzzyFloor float64
}

// Resolver extracts entity mentions from free text and resolves them
// against the reference dataset and the per-user entity table. Matches
// are produced by three strategies in precedence order: deterministic
// identifier lookup, fuzzy customer-name matching, and vocabulary terms.
type Resolver struct {
	entities   storage.EntityStore
	reference  storage.ReferenceStore
	embedder   llm.EmbeddingGenerator
	vocabulary *vocab.Vocabulary
	fuzzyFloor float64
	now        func() time.Time
}

// NewResolver creates a resolver. The embedder may be nil; entities are
// then stored without embeddings.
func NewResolver(entities storage.EntityStore, reference storage.ReferenceStore,
	embedder llm.EmbeddingGenerator, vocabulary *vocab.Vocabulary, cfg ResolverConfig) *Resolver {
	if vocabulary == nil {
		vocabulary = vocab.Default()
	}
	if cfg.FuzzyFloor <= 0 {
		cfg.FuzzyFloor = 0.3
	}
	return &Resolver{
		entities:   entities,
		reference:  reference,
		embedder:   embedder,
		vocabulary: vocabulary,
		fuzzyFloor: cfg.FuzzyFloor,
		now:        time.Now,
	}
}

// Resolve extracts and resolves all entity mentions in text. The result
// is deduplicated by (canonical_name, type) with the highest-precedence
// strategy winning, and ordered by confidence descending, name ascending.
// Entities are not persisted; callers store them via StoreEntities.
func (r *Resolver) Resolve(ctx context.Context, userID, sessionID, text string) ([]*types.Entity, error) {
	var candidates []*types.Entity

	deterministic, err := r.resolveIdentifiers(ctx, userID, sessionID, text)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, deterministic...)

	fuzzy, err := r.resolveCustomers(ctx, userID, sessionID, text)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, fuzzy...)

	candidates = append(candidates, r.resolveTerms(userID, sessionID, text)...)

	// Earlier strategies win on collision.
	seen := make(map[string]bool, len(candidates))
	resolved := candidates[:0]
	for _, e := range candidates {
		key := e.CanonicalName + "|" + e.Type
		if seen[key] {
			continue
		}
		seen[key] = true
		resolved = append(resolved, e)
	}

	lastSeen := r.lastReferenced(ctx, userID, resolved)
	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].Confidence != resolved[j].Confidence {
			return resolved[i].Confidence > resolved[j].Confidence
		}
		ti, tj := lastSeen[resolved[i].CanonicalName], lastSeen[resolved[j].CanonicalName]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return resolved[i].Name < resolved[j].Name
	})

	r.attachEmbeddings(ctx, resolved)
	return resolved, nil
}

// resolveIdentifiers matches SO/INV/WO numbers against the reference
// store. An identifier that does not resolve to a record is still
// emitted, with a message source and no external ref, so the caller
// sees every deterministic mention.
func (r *Resolver) resolveIdentifiers(ctx context.Context, userID, sessionID, text string) ([]*types.Entity, error) {
	var out []*types.Entity

	type lookup struct {
		pattern    *regexp.Regexp
		entityType string
		table      string
		resolve    func(context.Context, string) (string, error)
	}
	lookups := []lookup{
		{salesOrderPattern, types.EntityTypeSalesOrder, types.TableSalesOrders,
			func(ctx context.Context, number string) (string, error) {
				so, err := r.reference.LookupSalesOrder(ctx, number)
				if err != nil {
					return "", err
				}
				return so.ID, nil
			}},
		{invoicePattern, types.EntityTypeInvoice, types.TableInvoices,
			func(ctx context.Context, number string) (string, error) {
				inv, err := r.reference.LookupInvoice(ctx, number)
				if err != nil {
					return "", err
				}
				return inv.ID, nil
			}},
		{workOrderPattern, types.EntityTypeWorkOrder, types.TableWorkOrders,
			func(ctx context.Context, number string) (string, error) {
				wo, err := r.reference.LookupWorkOrder(ctx, number)
				if err != nil {
					return "", err
				}
				return wo.ID, nil
			}},
	}

	for _, l := range lookups {
		for _, match := range l.pattern.FindAllString(text, -1) {
			number := strings.ToUpper(match)
			e := &types.Entity{
				SessionID:     sessionID,
				UserID:        userID,
				Name:          number,
				NameHash:      types.HashName(number),
				CanonicalName: types.Canonicalize(number),
				Type:          l.entityType,
				Source:        types.EntitySourceMessage,
				Confidence:    deterministicConfidence,
				CreatedAt:     r.now().UTC(),
			}

			recordID, err := l.resolve(ctx, number)
			switch {
			case err == storage.ErrNotFound:
				log.Printf("engine: identifier %s not found in %s", number, l.table)
			case err != nil:
				return nil, err
			default:
				e.Source = types.EntitySourceDB
				e.ExternalRef = &types.ExternalRef{Table: l.table, ID: recordID}
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// resolveCustomers fuzzy-matches known customer names against the text.
// An exact substring hit scores the cap; otherwise the best trigram span
// in the text must clear the floor. Confidence
// gets a recency boost for names the user mentioned within the last hour.
func (r *Resolver) resolveCustomers(ctx context.Context, userID, sessionID, text string) ([]*types.Entity, error) {
	customers, err := r.reference.Customers(ctx)
	if err != nil {
		return nil, err
	}

	textLower := strings.ToLower(text)
	var out []*types.Entity

	for _, c := range customers {
		nameLower := strings.ToLower(c.Name)

		var base float64
		var span string
		substring := strings.Contains(textLower, nameLower)
		if substring {
			base = fuzzyConfidenceCap
		} else {
			var sim float64
			span, sim = bestTrigramSpan(c.Name, text)
			if sim <= r.fuzzyFloor {
				continue
			}
			if sim > fuzzyConfidenceCap {
				sim = fuzzyConfidenceCap
			}
			base = sim
		}

		confidence, err := r.boostConfidence(ctx, userID, base, types.Canonicalize(c.Name))
		if err != nil {
			return nil, err
		}

		entity := &types.Entity{
			SessionID:     sessionID,
			UserID:        userID,
			Name:          c.Name,
			NameHash:      types.HashName(c.Name),
			CanonicalName: types.Canonicalize(c.Name),
			Type:          types.EntityTypeCustomer,
			Source:        types.EntitySourceDB,
			ExternalRef:   &types.ExternalRef{Table: types.TableCustomers, ID: c.ID},
			Confidence:    confidence,
			CreatedAt:     r.now().UTC(),
		}
		out = append(out, entity)

		// A non-substring hit means the user wrote a variant of the name.
		// Record the matched span as an alias so the next lookup is exact.
		if !substring {
			r.recordFuzzyAlias(ctx, userID, entity, span)
		}
	}
	return out, nil
}

// resolveTerms matches the curated business vocabulary as substrings.
func (r *Resolver) resolveTerms(userID, sessionID, text string) []*types.Entity {
	textLower := strings.ToLower(text)
	var out []*types.Entity

	for _, term := range r.vocabulary.Terms {
		if !strings.Contains(textLower, strings.ToLower(term)) {
			continue
		}
		out = append(out, &types.Entity{
			SessionID:     sessionID,
			UserID:        userID,
			Name:          term,
			NameHash:      types.HashName(term),
			CanonicalName: types.Canonicalize(term),
			Type:          types.EntityTypeBusinessTerm,
			Source:        types.EntitySourceMessage,
			Confidence:    businessTermConfidence,
			CreatedAt:     r.now().UTC(),
		})
	}
	return out
}

// lastReferenced collects each candidate's most recent prior reference,
// for breaking confidence ties toward recently discussed entities. Zero
// times for never-referenced names are fine; lookup errors only log.
func (r *Resolver) lastReferenced(ctx context.Context, userID string, entities []*types.Entity) map[string]time.Time {
	seen := make(map[string]time.Time, len(entities))
	for _, e := range entities {
		if _, ok := seen[e.CanonicalName]; ok {
			continue
		}
		at, err := r.entities.LastReferenced(ctx, userID, e.CanonicalName)
		if err != nil {
			log.Printf("engine: last-referenced lookup for %q: %v", e.CanonicalName, err)
			continue
		}
		seen[e.CanonicalName] = at
	}
	return seen
}

// boostConfidence adds the per-mention recency boost, capped so fuzzy
// matches never reach deterministic confidence.
func (r *Resolver) boostConfidence(ctx context.Context, userID string, base float64, canonicalName string) (float64, error) {
	mentions, err := r.entities.RecentMentions(ctx, userID, canonicalName, r.now().UTC().Add(-recencyBoostWindow))
	if err != nil {
		return 0, err
	}
	boost := float64(mentions) * recencyBoostPerMention
	if boost > recencyBoostCap {
		boost = recencyBoostCap
	}
	confidence := base + boost
	if confidence > fuzzyConfidenceCap {
		confidence = fuzzyConfidenceCap
	}
	return confidence, nil
}

// recordFuzzyAlias stores the matched text span as a fuzzy alias when it
// is phonetically close enough (JaroWinkler) to the canonical name. The
// canonical entity may not be persisted yet, so failures only log.
func (r *Resolver) recordFuzzyAlias(ctx context.Context, userID string, entity *types.Entity, span string) {
	if span == "" || types.Canonicalize(span) == entity.CanonicalName {
		return
	}
	score := matchr.JaroWinkler(strings.ToLower(span), strings.ToLower(entity.Name), false)
	if score < aliasRecordThreshold {
		return
	}

	canonical, err := r.entities.FindEntityByName(ctx, userID, entity.Name)
	if err != nil {
		return
	}
	alias := &types.EntityAlias{
		CanonicalEntityID: canonical.ID,
		AliasText:         span,
		AliasHash:         types.HashName(span),
		Source:            types.AliasSourceFuzzyMatch,
		Confidence:        score,
		CreatedAt:         r.now().UTC(),
	}
	if err := r.entities.CreateAlias(ctx, alias); err != nil {
		log.Printf("engine: failed to record alias %q for %q: %v", span, entity.Name, err)
	}
}

// RecordCorrection stores a user-supplied alias ("Guy Media is actually
// Gai Media") with full confidence.
func (r *Resolver) RecordCorrection(ctx context.Context, userID, aliasText, canonicalName string) error {
	canonical, err := r.entities.FindEntityByName(ctx, userID, canonicalName)
	if err != nil {
		return err
	}
	return r.entities.CreateAlias(ctx, &types.EntityAlias{
		CanonicalEntityID: canonical.ID,
		AliasText:         aliasText,
		AliasHash:         types.HashName(aliasText),
		Source:            types.AliasSourceUserCorrection,
		Confidence:        1.0,
		CreatedAt:         r.now().UTC(),
	})
}

// bestTrigramSpan slides a window of the same word count as name over
// text and returns the span with the highest trigram similarity. Matching
// spans instead of the whole text keeps short messages from diluting the
// score.
func bestTrigramSpan(name, text string) (string, float64) {
	nameWords := strings.Fields(name)
	textWords := strings.Fields(text)
	n := len(nameWords)
	if n == 0 || len(textWords) < n {
		return "", 0
	}

	var bestSpan string
	var bestScore float64
	for i := 0; i+n <= len(textWords); i++ {
		span := stripPunct(strings.Join(textWords[i:i+n], " "))
		score := similarity.Trigram(span, name)
		if score > bestScore {
			bestScore = score
			bestSpan = span
		}
	}
	return bestSpan, bestScore
}

func stripPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return strings.ContainsRune(`.,;:!?'"()`, r)
	})
}

// attachEmbeddings fills entity embeddings in one batch, best effort.
func (r *Resolver) attachEmbeddings(ctx context.Context, entities []*types.Entity) {
	if r.embedder == nil || len(entities) == 0 {
		return
	}

	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = e.Type + " " + e.Name
	}
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Printf("engine: entity embedding failed, storing without vectors: %v", err)
		return
	}
	for i, e := range entities {
		e.Embedding = vecs[i]
	}
}
