package models

import (
	"encoding/json"
	"time"
)

// AgentType determines how an agent is allowed to act.
type AgentType string

const (
	AgentTypeAutonomous AgentType = "autonomous" // runs commands on its own schedule
	AgentTypeSupervised AgentType = "supervised" // runs commands on behalf of a user
	AgentTypeTool       AgentType = "tool"       // invoked by other agents; never destructive
)

// AgentStatus constants
const (
	AgentStatusActive    = "active"
	AgentStatusSuspended = "suspended"
)

// Agent represents an automated caller of the execution API.
type Agent struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Type             AgentType         `json:"type"`
	Status           string            `json:"status"` // active, suspended
	Capabilities     []string          `json:"capabilities"`
	RateLimitRPM     int64             `json:"rate_limit_rpm"`
	CredentialPrefix string            `json:"credential_prefix"`
	CredentialHash   string            `json:"-"` // bcrypt hash, never serialized
	AllowDestructive bool              `json:"allow_destructive"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsSuspended reports whether the agent is blocked from authenticating.
func (a *Agent) IsSuspended() bool {
	return a.Status == AgentStatusSuspended
}

// HasCapability reports whether the agent holds the named capability.
func (a *Agent) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// CapabilitiesJSON serializes the capability set for storage.
func (a *Agent) CapabilitiesJSON() string {
	b, err := json.Marshal(a.Capabilities)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// MetadataJSON serializes the metadata map for storage.
func (a *Agent) MetadataJSON() string {
	if len(a.Metadata) == 0 {
		return "{}"
	}
	b, err := json.Marshal(a.Metadata)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// CreateAgentRequest is the admin request body for registering an agent.
type CreateAgentRequest struct {
	Name             string            `json:"name"`
	Type             AgentType         `json:"type"`
	Capabilities     []string          `json:"capabilities"`
	RateLimitRPM     int64             `json:"rate_limit_rpm,omitempty"`
	AllowDestructive bool              `json:"allow_destructive,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// CreateAgentResponse returns the plaintext credential exactly once.
type CreateAgentResponse struct {
	Agent      *Agent `json:"agent"`
	Credential string `json:"credential"` // full credential - only returned once!
}

// ValidAgentType reports whether t is a known agent type.
func ValidAgentType(t AgentType) bool {
	switch t {
	case AgentTypeAutonomous, AgentTypeSupervised, AgentTypeTool:
		return true
	}
	return false
}
