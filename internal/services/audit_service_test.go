package services

import (
	"testing"

	"mejohncorg/internal/models"
)

func TestAuditEmitNeverBlocks(t *testing.T) {
	// No writer goroutine, so the buffer fills and stays full.
	s := &AuditService{
		events: make(chan models.AuditEvent, 2),
		done:   make(chan struct{}),
	}

	for i := 0; i < 5; i++ {
		s.Emit("agent", "agent-1", models.AuditCommandCompleted, "command", "corr-1", nil, "corr-1")
	}

	if got := s.QueueDepth(); got != 2 {
		t.Errorf("QueueDepth = %v, want 2", got)
	}
	if got := s.DroppedCount(); got != 3 {
		t.Errorf("DroppedCount = %d, want 3", got)
	}
}

func TestAuditEmitRecordsFields(t *testing.T) {
	s := &AuditService{
		events: make(chan models.AuditEvent, 1),
		done:   make(chan struct{}),
	}

	s.Emit("agent", "agent-1", models.AuditToolDenied, "tool", "send_email",
		map[string]any{"reason": "capability"}, "corr-9")

	event := <-s.events
	if event.ActorType != "agent" || event.ActorID != "agent-1" {
		t.Errorf("actor = %s/%s", event.ActorType, event.ActorID)
	}
	if event.Action != models.AuditToolDenied {
		t.Errorf("action = %s", event.Action)
	}
	if event.ResourceType != "tool" || event.ResourceID != "send_email" {
		t.Errorf("resource = %s/%s", event.ResourceType, event.ResourceID)
	}
	if event.CorrelationID != "corr-9" {
		t.Errorf("correlation id = %s", event.CorrelationID)
	}
	if event.Details["reason"] != "capability" {
		t.Errorf("details = %v", event.Details)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestAuditServiceDrainsWithoutMongo(t *testing.T) {
	s := NewAuditService(nil)

	for i := 0; i < 100; i++ {
		s.Emit("system", "", models.AuditCommandCompleted, "command", "c", nil, "corr")
	}
	s.Close()

	if got := s.DroppedCount(); got != 0 {
		t.Errorf("DroppedCount = %d, want 0", got)
	}
	if got := s.QueueDepth(); got != 0 {
		t.Errorf("QueueDepth after close = %v, want 0", got)
	}
}

func TestAuditCloseIdempotent(t *testing.T) {
	s := NewAuditService(nil)
	s.Close()
	s.Close()
}
