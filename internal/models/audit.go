package models

import "time"

// Audit action names, dot-namespaced. Kept as constants so call sites and
// queries agree on spelling.
const (
	AuditAuthSuccess       = "auth.success"
	AuditAuthFailed        = "auth.failed"
	AuditAuthRateLimited   = "auth.rate_limited"
	AuditCredentialAccess  = "credential.access"
	AuditToolDenied        = "tool.denied"
	AuditToolExecuted      = "tool.executed"
	AuditDestructiveDenied = "tool.destructive_denied"
	AuditSafetyBlocked     = "safety.blocked"
	AuditSafetyViolation   = "safety.violation"
	AuditCommandCompleted  = "command.completed"
)

// AuditEvent is one append-only entry in the audit trail. CorrelationID links
// events emitted by different components for a single inbound request.
type AuditEvent struct {
	ActorType     string         `bson:"actorType" json:"actor_type"`
	ActorID       string         `bson:"actorId" json:"actor_id"`
	Action        string         `bson:"action" json:"action"`
	ResourceType  string         `bson:"resourceType" json:"resource_type"`
	ResourceID    string         `bson:"resourceId" json:"resource_id"`
	Details       map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	CorrelationID string         `bson:"correlationId" json:"correlation_id"`
	Timestamp     time.Time      `bson:"timestamp" json:"timestamp"`
}
