package similarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		v := []float32{0.5, 0.3, 0.8}
		assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	})

	t.Run("opposite vectors", func(t *testing.T) {
		assert.InDelta(t, -1.0, Cosine([]float32{1, 2}, []float32{-1, -2}), 1e-9)
	})

	t.Run("mismatched lengths score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	})

	t.Run("zero vector scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 2}))
	})

	t.Run("empty vectors score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine(nil, nil))
	})
}

func TestTrigram(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		assert.InDelta(t, 1.0, Trigram("Acme Corp", "acme corp"), 1e-9)
	})

	t.Run("close misspelling scores high", func(t *testing.T) {
		sim := Trigram("Acme Corporation", "Acme Corporation Inc")
		assert.Greater(t, sim, 0.5)
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		sim := Trigram("Acme Corp", "Globex Industries")
		assert.Less(t, sim, 0.3)
	})

	t.Run("punctuation is ignored", func(t *testing.T) {
		assert.InDelta(t, 1.0, Trigram("Acme, Corp.", "acme corp"), 1e-9)
	})

	t.Run("empty input scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Trigram("", "acme"))
		assert.Equal(t, 0.0, Trigram("acme", ""))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, Trigram("northwind", "northwest"), Trigram("northwest", "northwind"))
	})
}

func TestLexical(t *testing.T) {
	t.Run("all tokens present", func(t *testing.T) {
		assert.InDelta(t, 1.0, Lexical("open invoices", "show all OPEN invoices for Acme"), 1e-9)
	})

	t.Run("partial overlap", func(t *testing.T) {
		assert.InDelta(t, 0.5, Lexical("open invoices", "invoices were paid"), 1e-9)
	})

	t.Run("no overlap", func(t *testing.T) {
		assert.Equal(t, 0.0, Lexical("payment terms", "work order status"))
	})

	t.Run("empty query scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Lexical("", "anything"))
	})
}

func TestRecency(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	halfLife := 30 * 24 * time.Hour

	t.Run("fresh memory scores one", func(t *testing.T) {
		assert.InDelta(t, 1.0, Recency(now, now, halfLife), 1e-9)
	})

	t.Run("one half-life scores half", func(t *testing.T) {
		created := now.Add(-halfLife)
		assert.InDelta(t, 0.5, Recency(created, now, halfLife), 1e-9)
	})

	t.Run("two half-lives score quarter", func(t *testing.T) {
		created := now.Add(-2 * halfLife)
		assert.InDelta(t, 0.25, Recency(created, now, halfLife), 1e-9)
	})

	t.Run("future timestamps clamp to one", func(t *testing.T) {
		created := now.Add(time.Hour)
		assert.Equal(t, 1.0, Recency(created, now, halfLife))
	})

	t.Run("zero half-life disables decay", func(t *testing.T) {
		created := now.Add(-365 * 24 * time.Hour)
		assert.Equal(t, 1.0, Recency(created, now, 0))
	})
}
