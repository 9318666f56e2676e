package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"mejohncorg/internal/models"
)

const (
	memoryTopK           = 5
	memoryScoreThreshold = 0.7
)

// MemoryService stores and retrieves past agent exchanges by semantic
// similarity. Memory is best-effort everywhere: an unavailable embedder or
// vector store degrades a command, it never fails one.
type MemoryService struct {
	embedder   Embedder
	store      VectorStore
	collection string
}

func NewMemoryService(embedder Embedder, store VectorStore, collection string) *MemoryService {
	return &MemoryService{
		embedder:   embedder,
		store:      store,
		collection: collection,
	}
}

// Init makes sure the backing collection exists.
func (s *MemoryService) Init(ctx context.Context, vectorSize uint64) error {
	return s.store.EnsureCollection(ctx, s.collection, vectorSize)
}

// Store persists one completed exchange. Returns false when the embedding
// backend is unavailable; the exchange is simply not remembered.
func (s *MemoryService) Store(ctx context.Context, agentID, command, response string, toolNames []string, turnCount int) (bool, error) {
	summary := truncate(command+" -> "+response, models.MemorySummaryMaxLen)

	vector, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return false, err
	}
	if len(vector) == 0 {
		slog.Warn("Embedding unavailable, skipping memory store", "agent_id", agentID)
		return false, nil
	}

	now := time.Now().UTC()
	point := VectorPoint{
		ID:     uuid.New().String(),
		Vector: vector,
		Payload: map[string]any{
			"agent_id":         agentID,
			"summary":          summary,
			"command_excerpt":  truncate(command, models.MemoryExcerptMaxLen),
			"response_excerpt": truncate(response, models.MemoryExcerptMaxLen),
			"tool_names":       toolNames,
			"turn_count":       turnCount,
			"importance":       importanceFor(toolNames, turnCount),
			"created_at":       now.Format(time.RFC3339),
			"last_accessed_at": now.Format(time.RFC3339),
		},
	}

	if err := s.store.Upsert(ctx, s.collection, []VectorPoint{point}); err != nil {
		return false, fmt.Errorf("failed to store memory: %w", err)
	}
	return true, nil
}

// Retrieve returns up to five similar past exchanges for the command, best
// score first. Any backend trouble yields an empty slice. Retrieval touches
// each hit's last_accessed_at in the background.
func (s *MemoryService) Retrieve(ctx context.Context, agentID, command string) []models.MemoryRecord {
	vector, err := s.embedder.Embed(ctx, command)
	if err != nil || len(vector) == 0 {
		return nil
	}

	results, err := s.store.Search(ctx, s.collection, vector, memoryTopK, memoryScoreThreshold,
		map[string]string{"agent_id": agentID})
	if err != nil {
		slog.Warn("Memory search failed", "agent_id", agentID, "error", err)
		return nil
	}

	records := make([]models.MemoryRecord, 0, len(results))
	for _, r := range results {
		records = append(records, recordFromPayload(r))
	}

	if len(records) > 0 {
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		go s.touch(ids)
	}

	return records
}

// touch updates last_accessed_at for retrieved records. Fire-and-forget:
// a failed touch is logged and dropped.
func (s *MemoryService) touch(ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range ids {
		if err := s.store.SetPayload(ctx, s.collection, id, map[string]any{"last_accessed_at": now}); err != nil {
			slog.Warn("Failed to touch memory", "memory_id", id, "error", err)
		}
	}
}

// FormatForPrompt renders retrieved records for the system prompt, in input
// order. Empty input renders nothing at all.
func (s *MemoryService) FormatForPrompt(records []models.MemoryRecord) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant past interactions:\n")
	for i, r := range records {
		b.WriteString(fmt.Sprintf("%d. [%s] %s", i+1, r.CreatedAt.Format("2006-01-02"), r.Summary))
		if len(r.ToolNames) > 0 {
			b.WriteString(" (tools: " + strings.Join(r.ToolNames, ", ") + ")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func recordFromPayload(r VectorSearchResult) models.MemoryRecord {
	rec := models.MemoryRecord{ID: r.ID, Score: r.Score}
	if v, ok := r.Payload["agent_id"].(string); ok {
		rec.AgentID = v
	}
	if v, ok := r.Payload["summary"].(string); ok {
		rec.Summary = v
	}
	if v, ok := r.Payload["command_excerpt"].(string); ok {
		rec.CommandExcerpt = v
	}
	if v, ok := r.Payload["response_excerpt"].(string); ok {
		rec.ResponseExcerpt = v
	}
	if v, ok := r.Payload["tool_names"].([]string); ok {
		rec.ToolNames = v
	}
	if v, ok := r.Payload["turn_count"].(int64); ok {
		rec.TurnCount = int(v)
	}
	if v, ok := r.Payload["importance"].(float64); ok {
		rec.Importance = v
	}
	if v, ok := r.Payload["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			rec.CreatedAt = t
		}
	}
	if v, ok := r.Payload["last_accessed_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			rec.LastAccessedAt = t
		}
	}
	return rec
}

// importanceFor scores an exchange for future decay decisions. Tool-using,
// longer exchanges rank higher.
func importanceFor(toolNames []string, turnCount int) float64 {
	importance := 0.5
	if len(toolNames) > 0 {
		importance += 0.2
	}
	if turnCount > 2 {
		importance += 0.1
	}
	if importance > 1.0 {
		importance = 1.0
	}
	return importance
}

// truncate cuts s to at most maxLen bytes, backing up to a rune boundary so
// the excerpt stays valid UTF-8.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
