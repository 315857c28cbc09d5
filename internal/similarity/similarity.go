// Package similarity provides the pure scoring primitives shared by the
// retrieval engine and the sqlite reference search: cosine distance over
// embeddings, trigram set similarity over strings, token overlap for
// lexical scoring, and exponential recency decay.
package similarity

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Mismatched lengths and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Trigram returns trigram set similarity in [0, 1], following the
// pg_trgm convention: strings are lowercased, non-alphanumeric runs
// become single spaces, and each word is padded with two leading and one
// trailing space before trigrams are taken. The score is the Jaccard
// ratio of the two trigram sets.
func Trigram(a, b string) float64 {
	ta := trigramSet(a)
	tb := trigramSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigramSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range normalizeWords(s) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}

func normalizeWords(s string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// Lexical returns the fraction of query tokens present in the text,
// in [0, 1]. Matching is case-insensitive on whole tokens.
func Lexical(query, text string) float64 {
	queryTokens := normalizeWords(query)
	if len(queryTokens) == 0 {
		return 0
	}

	textTokens := make(map[string]struct{})
	for _, t := range normalizeWords(text) {
		textTokens[t] = struct{}{}
	}

	hits := 0
	for _, t := range queryTokens {
		if _, ok := textTokens[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

// Recency returns an exponential decay score in (0, 1]: 1.0 at created
// time, 0.5 after one half-life. Future timestamps clamp to 1.
func Recency(created, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	age := now.Sub(created)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, age.Hours()/halfLife.Hours())
}
