package llm

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an EmbeddingGenerator with an in-process LRU
// cache keyed on the whitespace-normalized, lowercased text. Repeated
// mentions of the same entity or phrase skip the API entirely.
type CachedEmbedder struct {
	inner EmbeddingGenerator
	cache *lru.Cache[string, []float32]

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// NewCachedEmbedder wraps inner with an LRU of the given capacity.
// A capacity of zero or less defaults to 1000 entries.
func NewCachedEmbedder(inner EmbeddingGenerator, capacity int) (*CachedEmbedder, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func cacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.count(true)
		return vec, nil
	}
	c.count(false)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves cached entries locally and sends only the misses to
// the inner generator in a single call. Output order matches input.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(cacheKey(text)); ok {
			c.count(true)
			vecs[i] = vec
			continue
		}
		c.count(false)
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		fetched, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range fetched {
			i := missIdx[j]
			vecs[i] = vec
			c.cache.Add(cacheKey(texts[i]), vec)
		}
	}
	return vecs, nil
}

func (c *CachedEmbedder) GetModel() string {
	return c.inner.GetModel()
}

// Stats returns cumulative cache hit and miss counts.
func (c *CachedEmbedder) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *CachedEmbedder) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

var _ EmbeddingGenerator = (*CachedEmbedder)(nil)
