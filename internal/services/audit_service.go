package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mejohncorg/internal/database"
	"mejohncorg/internal/models"
)

const auditBufferSize = 1024

// AuditSink records append-only audit events. Emit is always safe to call on
// the request path: it never blocks, never returns an error, never panics.
type AuditSink interface {
	Emit(actorType, actorID, action, resourceType, resourceID string, details map[string]any, correlationID string)
}

// AuditService writes audit events to MongoDB from a background goroutine.
// When the buffer is full the event is dropped and counted; losing an audit
// record is preferable to stalling a command.
type AuditService struct {
	mongoDB *database.MongoDB
	events  chan models.AuditEvent
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func NewAuditService(mongoDB *database.MongoDB) *AuditService {
	s := &AuditService{
		mongoDB: mongoDB,
		events:  make(chan models.AuditEvent, auditBufferSize),
		done:    make(chan struct{}),
	}
	go s.writer()
	return s
}

// Emit queues one audit event. Non-blocking by construction.
func (s *AuditService) Emit(actorType, actorID, action, resourceType, resourceID string, details map[string]any, correlationID string) {
	event := models.AuditEvent{
		ActorType:     actorType,
		ActorID:       actorID,
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Details:       details,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}

	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
		if m := GetMetrics(); m != nil {
			m.AuditDropped.Inc()
		}
	}
}

// QueueDepth reports how many events wait for the writer.
func (s *AuditService) QueueDepth() float64 {
	return float64(len(s.events))
}

// DroppedCount reports how many events were lost to a full buffer.
func (s *AuditService) DroppedCount() int64 {
	return s.dropped.Load()
}

// Close drains the queue and stops the writer.
func (s *AuditService) Close() {
	s.closeOnce.Do(func() {
		close(s.events)
		<-s.done
	})
}

func (s *AuditService) writer() {
	defer close(s.done)
	for event := range s.events {
		if s.mongoDB == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := s.mongoDB.Database().Collection(database.CollectionAuditEvents).InsertOne(ctx, event)
		cancel()
		if err != nil {
			slog.Error("Failed to write audit event", "action", event.Action,
				"correlation_id", event.CorrelationID, "error", err)
		}
	}
}

// NopAuditSink discards everything. Backs tests and Mongo-less development.
type NopAuditSink struct{}

func (NopAuditSink) Emit(actorType, actorID, action, resourceType, resourceID string, details map[string]any, correlationID string) {
}
