package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder produces deterministic vectors and records call counts.
type fakeEmbedder struct {
	embedCalls int
	batchCalls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.embedCalls++
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1}
	}
	return vecs, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake" }

func TestCachedEmbedderHit(t *testing.T) {
	inner := &fakeEmbedder{}
	cached, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "Acme Corp")
	require.NoError(t, err)

	// Whitespace and case variants hit the same entry.
	second, err := cached.Embed(ctx, "  ACME   corp ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls)

	hits, misses := cached.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := &fakeEmbedder{}
	cached, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "known text")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"new one", "known text", "new two"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.NotEmpty(t, v, "vector %d", i)
	}

	// Only the two misses go to the inner generator, in one call.
	assert.Equal(t, 1, inner.batchCalls)
}

func TestCachedEmbedderEviction(t *testing.T) {
	inner := &fakeEmbedder{}
	cached, err := NewCachedEmbedder(inner, 2)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := cached.Embed(ctx, fmt.Sprintf("text %d", i))
		require.NoError(t, err)
	}

	// "text 0" was evicted by capacity, so it misses again.
	_, err = cached.Embed(ctx, "text 0")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.embedCalls)

	// "text 2" is still resident.
	_, err = cached.Embed(ctx, "text 2")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.embedCalls)
}
