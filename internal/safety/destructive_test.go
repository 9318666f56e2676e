package safety

import (
	"errors"
	"testing"

	"mejohncorg/internal/models"
)

func TestVerifyDestructive_NonDestructiveAlwaysPasses(t *testing.T) {
	agent := &models.Agent{ID: "a1", Type: models.AgentTypeTool, AllowDestructive: false}
	if err := VerifyDestructive(agent, "get_current_time", false); err != nil {
		t.Errorf("non-destructive tool should pass: %v", err)
	}
}

func TestVerifyDestructive_ToolAgentAlwaysDenied(t *testing.T) {
	// The flag does not matter for tool-type agents.
	agent := &models.Agent{ID: "a1", Type: models.AgentTypeTool, AllowDestructive: true}
	err := VerifyDestructive(agent, "send_email", true)
	if !errors.Is(err, ErrDestructiveDenied) {
		t.Errorf("expected ErrDestructiveDenied, got %v", err)
	}
}

func TestVerifyDestructive_FlagRequired(t *testing.T) {
	agent := &models.Agent{ID: "a1", Type: models.AgentTypeAutonomous, AllowDestructive: false}
	if err := VerifyDestructive(agent, "send_email", true); !errors.Is(err, ErrDestructiveDenied) {
		t.Errorf("expected ErrDestructiveDenied, got %v", err)
	}

	agent.AllowDestructive = true
	if err := VerifyDestructive(agent, "send_email", true); err != nil {
		t.Errorf("flagged agent should pass: %v", err)
	}
}

func TestVerifyDestructive_SupervisedWithFlag(t *testing.T) {
	agent := &models.Agent{ID: "a2", Type: models.AgentTypeSupervised, AllowDestructive: true}
	if err := VerifyDestructive(agent, "export_data", true); err != nil {
		t.Errorf("supervised agent with flag should pass: %v", err)
	}
}
