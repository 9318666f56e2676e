package safety

import (
	"errors"
	"fmt"

	"mejohncorg/internal/models"
)

// ErrDestructiveDenied is returned when an agent may not run a destructive tool.
var ErrDestructiveDenied = errors.New("destructive action not permitted")

// VerifyDestructive gates destructive tool dispatch. Non-destructive tools
// always pass. Tool-type agents are denied regardless of their flags; every
// other agent needs allow_destructive set.
func VerifyDestructive(agent *models.Agent, toolName string, destructive bool) error {
	if !destructive {
		return nil
	}
	if agent.Type == models.AgentTypeTool {
		return fmt.Errorf("%w: agent type %q cannot run %s", ErrDestructiveDenied, agent.Type, toolName)
	}
	if !agent.AllowDestructive {
		return fmt.Errorf("%w: agent %s lacks allow_destructive for %s", ErrDestructiveDenied, agent.ID, toolName)
	}
	return nil
}
