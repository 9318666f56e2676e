package models

// ChatMessage is one entry in a conversation transcript sent to the model
// backend. Role is one of system, user, assistant, tool.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// TokenUsage tracks model token consumption for one command.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// ModelResponse is the parsed result of one model backend call.
type ModelResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// ToolCallRecord records one dispatched tool call for auditing and counters.
type ToolCallRecord struct {
	Name     string `json:"name"`
	Action   string `json:"action,omitempty"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration int64  `json:"duration_ms"`
}
