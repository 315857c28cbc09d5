package types

import "time"

// Provenance is a tagged key-value map describing where a memory came from.
// Known keys, versioned per kind:
//
//	"schema_version": provenance schema version, currently "1"
//	"origin":         "turn", "consolidation", or "import"
//	"extractor":      name of the component that produced the memory
//	"entity_ids":     comma-separated entity ids mentioned in the turn
//
// Consumers must tolerate unknown keys.
type Provenance map[string]string

// Memory is a stored, retrievable unit of conversational knowledge, scoped
// to (user_id, session_id). A memory whose ExpiresAt has passed is excluded
// from retrieval but not deleted (tombstone semantics, reclaimed lazily).
type Memory struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	Kind string `json:"kind"`
	Text string `json:"text"`

	// Embedding is best-effort: a memory without one is still retrievable
	// via the lexical/recency fallback path.
	Embedding []float32 `json:"embedding,omitempty"`

	Importance float64 `json:"importance"`

	// TTLDays of zero leaves ExpiresAt unset, so a memory written
	// straight to a store never expires. The engine's write path
	// substitutes its configured default for a zero TTL before
	// persisting. A positive TTLDays puts ExpiresAt at CreatedAt +
	// TTLDays, recomputed whenever TTLDays changes.
	TTLDays   int        `json:"ttl_days,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Provenance   Provenance `json:"provenance,omitempty"`
	Consolidated bool       `json:"consolidated"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Validate checks the memory kind, text, and importance range.
func (m *Memory) Validate() error {
	if m.Text == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if !IsValidMemoryKind(m.Kind) {
		return &ValidationError{Field: "kind", Reason: "unknown memory kind " + m.Kind}
	}
	if m.Importance < 0 || m.Importance > 1 {
		return &ValidationError{Field: "importance", Reason: "must be in [0,1]"}
	}
	if m.TTLDays < 0 {
		return &ValidationError{Field: "ttl_days", Reason: "must not be negative"}
	}
	return nil
}

// ClampImportance forces Importance into [0,1].
func (m *Memory) ClampImportance() {
	if m.Importance < 0 {
		m.Importance = 0
	}
	if m.Importance > 1 {
		m.Importance = 1
	}
}

// ComputeExpiry recomputes ExpiresAt from CreatedAt and TTLDays. A zero
// TTLDays clears the expiry.
func (m *Memory) ComputeExpiry() {
	if m.TTLDays <= 0 {
		m.ExpiresAt = nil
		return
	}
	exp := m.CreatedAt.Add(time.Duration(m.TTLDays) * 24 * time.Hour)
	m.ExpiresAt = &exp
}

// Expired reports whether the memory is tombstoned as of now.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// MemorySummary is the durable result of consolidating one session window's
// memories. The source memories are flagged consolidated, not deleted, to
// preserve auditability.
type MemorySummary struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	SessionWindow int    `json:"session_window"`

	SummaryText string    `json:"summary_text"`
	Embedding   []float32 `json:"embedding,omitempty"`

	ConsolidatedMemoryIDs []string `json:"consolidated_memory_ids"`
	Importance            float64  `json:"importance"`

	CreatedAt time.Time `json:"created_at"`
}

// Session tracks one conversational session. LastActivityAt and TurnCount
// are updated on every turn; Consolidated flips to true exactly once, when
// the consolidator produces a summary for the session's window.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	TurnCount      int       `json:"turn_count"`
	Consolidated   bool      `json:"consolidated"`
}
