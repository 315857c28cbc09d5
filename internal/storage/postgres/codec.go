package postgres

import (
	"fmt"
	"strconv"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
)

// Embeddings are written through pgvector-go and read back as text
// ("[0.1,0.2,...]"), so nullable vector columns scan cleanly through
// database/sql.

// vectorParam returns the insert parameter for an embedding, NULL when
// absent.
func vectorParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector literal %q", s)
	}
	body := strings.Trim(s, "[]")
	if body == "" {
		return nil, nil
	}

	parts := strings.Split(body, ",")
	embedding := make([]float32, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %w", part, err)
		}
		embedding[i] = float32(v)
	}
	return embedding, nil
}
