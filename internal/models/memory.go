package models

import "time"

// Bounds applied when a memory record is built. Summaries and excerpts are
// truncated, never rejected.
const (
	MemorySummaryMaxLen = 500
	MemoryExcerptMaxLen = 1000
)

// MemoryRecord is one stored exchange, retrievable by semantic similarity.
// Records are append-only; only LastAccessedAt is ever updated.
type MemoryRecord struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	Summary         string    `json:"summary"`
	CommandExcerpt  string    `json:"command_excerpt"`
	ResponseExcerpt string    `json:"response_excerpt"`
	ToolNames       []string  `json:"tool_names,omitempty"`
	TurnCount       int       `json:"turn_count"`
	Importance      float64   `json:"importance"`
	Score           float32   `json:"score,omitempty"` // similarity score on retrieval
	CreatedAt       time.Time `json:"created_at"`
	LastAccessedAt  time.Time `json:"last_accessed_at"`
}
