package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"mejohncorg/internal/models"
)

// Tool is one executable built-in. Execute returns the tool's textual output
// or an error; the Executor converts both into a ToolResult so failures never
// cross the dispatch boundary as Go errors.
type Tool interface {
	Definition() models.ToolDefinition
	Execute(ctx context.Context, agentID string, args map[string]any) (string, error)
}

// CredentialSource resolves a decrypted integration credential for an agent.
// Tools that call external systems depend on this, never on raw secrets.
type CredentialSource interface {
	Get(ctx context.Context, integrationID, agentID string) (string, error)
}

// NoCredentials backs deployments without a credential store. Every lookup
// fails, so credentialed tools report themselves unavailable.
type NoCredentials struct{}

func (NoCredentials) Get(ctx context.Context, integrationID, agentID string) (string, error) {
	return "", fmt.Errorf("credential store not configured")
}

// Executor dispatches tool calls by name against the registered built-ins.
type Executor struct {
	tools map[string]Tool
}

func NewExecutor(tools ...Tool) *Executor {
	e := &Executor{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		e.tools[t.Definition().Name] = t
	}
	return e
}

// Definitions returns every registered built-in definition, for seeding.
func (e *Executor) Definitions() []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(e.tools))
	for _, t := range e.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Execute runs one tool call. Argument parse failures, unknown tools, and
// tool errors all come back as error results; a panicking tool is contained
// the same way.
func (e *Executor) Execute(ctx context.Context, agentID, name, rawArgs string) (result *models.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", name, "panic", r)
			result = &models.ToolResult{Content: fmt.Sprintf("tool %s failed", name), IsError: true}
		}
	}()

	tool, ok := e.tools[name]
	if !ok {
		return &models.ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}
	}

	args := make(map[string]any)
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return &models.ToolResult{Content: fmt.Sprintf("invalid arguments for %s: %v", name, err), IsError: true}
		}
	}

	output, err := tool.Execute(ctx, agentID, args)
	if err != nil {
		return &models.ToolResult{Content: err.Error(), IsError: true}
	}
	return &models.ToolResult{Content: output, IsError: false}
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %s must be a non-empty string", key)
	}
	return s, nil
}
