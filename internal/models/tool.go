package models

import "time"

// ToolDefinition describes a tool an agent may be shown.
// CapabilityName gates visibility; the action behind the tool is authorized
// separately through the action policy when the tool is invoked.
type ToolDefinition struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	InputSchema    map[string]any `json:"input_schema"`
	CapabilityName string         `json:"capability_name"`
	ActionName     string         `json:"action_name"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty"`
}

// ToolSchema is the provider-facing shape of a tool definition
// (OpenAI function-calling format).
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToOpenAITool renders the schema in the chat-completions tools format.
func (t ToolSchema) ToOpenAITool() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.InputSchema,
		},
	}
}

// ToolResult is what a tool-execution delegate returns. Failures are
// expressed via IsError, never as a panic or error across the boundary.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}
