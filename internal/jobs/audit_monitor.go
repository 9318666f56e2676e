package jobs

import (
	"log/slog"

	"mejohncorg/internal/services"
)

// AuditMonitor logs audit sink health so a wedged Mongo shows up in logs
// before the buffer starts dropping events.
type AuditMonitor struct {
	audit       *services.AuditService
	lastDropped int64
}

func NewAuditMonitor(audit *services.AuditService) *AuditMonitor {
	return &AuditMonitor{audit: audit}
}

// Run logs queue depth and any drops since the previous run.
func (m *AuditMonitor) Run() {
	depth := m.audit.QueueDepth()
	dropped := m.audit.DroppedCount()
	newDrops := dropped - m.lastDropped
	m.lastDropped = dropped

	if newDrops > 0 {
		slog.Warn("Audit sink dropping events", "queue_depth", depth, "dropped_since_last_check", newDrops, "dropped_total", dropped)
		return
	}
	slog.Debug("Audit sink healthy", "queue_depth", depth)
}
