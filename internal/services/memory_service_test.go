package services

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"mejohncorg/internal/models"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeVectorStore struct {
	upserted      []VectorPoint
	searchResults []VectorSearchResult
	searchFilter  map[string]string
	touched       chan string
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, name string, vectorSize uint64) error {
	return nil
}

func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32, filter map[string]string) ([]VectorSearchResult, error) {
	f.searchFilter = filter
	return f.searchResults, nil
}

func (f *fakeVectorStore) SetPayload(ctx context.Context, collection, pointID string, payload map[string]any) error {
	if f.touched != nil {
		f.touched <- pointID
	}
	return nil
}

func TestMemoryStore(t *testing.T) {
	store := &fakeVectorStore{}
	svc := NewMemoryService(&fakeEmbedder{vector: []float32{0.1, 0.2}}, store, "memories")

	stored, err := svc.Store(context.Background(), "agent-1", "what time is it", "It is noon.", []string{"get_current_time"}, 2)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !stored {
		t.Fatal("Store reported not stored")
	}
	if len(store.upserted) != 1 {
		t.Fatalf("upserted %d points, want 1", len(store.upserted))
	}

	payload := store.upserted[0].Payload
	if payload["agent_id"] != "agent-1" {
		t.Errorf("agent_id = %v", payload["agent_id"])
	}
	summary, _ := payload["summary"].(string)
	if !strings.Contains(summary, "what time is it -> It is noon.") {
		t.Errorf("summary = %q", summary)
	}
}

func TestMemoryStoreTruncatesSummary(t *testing.T) {
	store := &fakeVectorStore{}
	svc := NewMemoryService(&fakeEmbedder{vector: []float32{0.1}}, store, "memories")

	long := strings.Repeat("x", models.MemorySummaryMaxLen*2)
	if _, err := svc.Store(context.Background(), "agent-1", long, long, nil, 1); err != nil {
		t.Fatalf("Store: %v", err)
	}

	summary, _ := store.upserted[0].Payload["summary"].(string)
	if len(summary) != models.MemorySummaryMaxLen {
		t.Errorf("summary length = %d, want %d", len(summary), models.MemorySummaryMaxLen)
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"short string untouched", "hello", 10, "hello"},
		{"ascii cut exact", "hello", 3, "hel"},
		{"multi-byte cut backs up to boundary", strings.Repeat("é", 5), 5, "éé"},
		{"cut on boundary keeps whole rune", strings.Repeat("é", 5), 6, "ééé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestMemoryStoreSkipsWhenEmbedderUnavailable(t *testing.T) {
	store := &fakeVectorStore{}
	svc := NewMemoryService(&fakeEmbedder{vector: nil}, store, "memories")

	stored, err := svc.Store(context.Background(), "agent-1", "cmd", "resp", nil, 1)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored {
		t.Error("Store reported stored with no embedding")
	}
	if len(store.upserted) != 0 {
		t.Errorf("upserted %d points, want 0", len(store.upserted))
	}
}

func TestMemoryRetrieveFiltersByAgentAndTouches(t *testing.T) {
	touched := make(chan string, 2)
	store := &fakeVectorStore{
		touched: touched,
		searchResults: []VectorSearchResult{
			{ID: "m1", Score: 0.92, Payload: map[string]any{"summary": "first", "created_at": "2026-08-01T10:00:00Z"}},
			{ID: "m2", Score: 0.81, Payload: map[string]any{"summary": "second", "created_at": "2026-08-02T10:00:00Z"}},
		},
	}
	svc := NewMemoryService(&fakeEmbedder{vector: []float32{0.1}}, store, "memories")

	records := svc.Retrieve(context.Background(), "agent-1", "anything")
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if store.searchFilter["agent_id"] != "agent-1" {
		t.Errorf("search filter = %v, want agent_id=agent-1", store.searchFilter)
	}
	if records[0].ID != "m1" || records[1].ID != "m2" {
		t.Errorf("record order = %s, %s", records[0].ID, records[1].ID)
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-touched:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for touch")
		}
	}
	if !got["m1"] || !got["m2"] {
		t.Errorf("touched = %v, want m1 and m2", got)
	}
}

func TestMemoryRetrieveEmptyOnEmbedderFailure(t *testing.T) {
	store := &fakeVectorStore{searchResults: []VectorSearchResult{{ID: "m1"}}}
	svc := NewMemoryService(&fakeEmbedder{vector: nil}, store, "memories")

	if records := svc.Retrieve(context.Background(), "agent-1", "anything"); records != nil {
		t.Errorf("got %d records, want none", len(records))
	}
}

func TestFormatForPrompt(t *testing.T) {
	svc := NewMemoryService(nil, nil, "memories")

	if got := svc.FormatForPrompt(nil); got != "" {
		t.Errorf("empty records rendered %q", got)
	}

	records := []models.MemoryRecord{
		{Summary: "looked up weather", CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), ToolNames: []string{"web_request"}},
		{Summary: "sent a reminder", CreatedAt: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)},
	}
	got := svc.FormatForPrompt(records)
	want := "Relevant past interactions:\n" +
		"1. [2026-08-01] looked up weather (tools: web_request)\n" +
		"2. [2026-08-02] sent a reminder\n"
	if got != want {
		t.Errorf("FormatForPrompt =\n%q\nwant\n%q", got, want)
	}
}

func TestImportanceFor(t *testing.T) {
	tests := []struct {
		name      string
		toolNames []string
		turnCount int
		want      float64
	}{
		{"plain exchange", nil, 1, 0.5},
		{"tool use", []string{"web_request"}, 1, 0.7},
		{"long exchange", nil, 3, 0.6},
		{"tools and turns", []string{"web_request"}, 4, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := importanceFor(tt.toolNames, tt.turnCount); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("importanceFor = %v, want %v", got, tt.want)
			}
		})
	}
}
