package tools

import (
	"context"
	"fmt"
	"time"

	"mejohncorg/internal/models"
)

// TimeTool reports the current time, optionally in a named IANA zone.
// Read-only; visible to every agent.
type TimeTool struct{}

func NewTimeTool() *TimeTool { return &TimeTool{} }

func (t *TimeTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "get_current_time",
		Description: "Get the current date and time, optionally in a specific IANA timezone (e.g. Europe/Lisbon).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name. Defaults to UTC.",
				},
			},
		},
		CapabilityName: "",
		ActionName:     "time.read",
		IsActive:       true,
	}
}

func (t *TimeTool) Execute(ctx context.Context, agentID string, args map[string]any) (string, error) {
	loc := time.UTC
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone: %s", tz)
		}
		loc = parsed
	}
	now := time.Now().In(loc)
	return fmt.Sprintf("%s (%s)", now.Format("Monday, January 2, 2006 at 15:04:05"), loc.String()), nil
}
