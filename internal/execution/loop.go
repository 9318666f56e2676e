package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mejohncorg/internal/models"
	"mejohncorg/internal/safety"
	"mejohncorg/internal/services"
)

// Command status values. The loop always terminates in exactly one of these.
const (
	StatusDone            = "DONE"
	StatusTimedOut        = "TIMED_OUT"
	StatusMaxTurnsReached = "MAX_TURNS_REACHED"
)

// Loop-internal states.
const (
	stateAwaitingModel    = "AWAITING_MODEL"
	stateDispatchingTools = "DISPATCHING_TOOLS"
)

// Fixed responses for non-DONE terminals. The model does not get a say in
// how its own timeout reads.
const (
	timedOutResponse = "The command could not be completed within the time limit."
	maxTurnsResponse = "The command was stopped after reaching the maximum number of turns."
)

// ActionPolicy answers whether a capability set authorizes an action, and
// whether the action is destructive.
type ActionPolicy interface {
	CanPerformAction(caps []string, action string) bool
	IsDestructive(action string) bool
}

// ToolDispatcher executes one tool call. Failures come back inside the
// result, never as an error.
type ToolDispatcher interface {
	Execute(ctx context.Context, agentID, name, rawArgs string) *models.ToolResult
}

// Result is the outcome of one command. ToolCallCount tallies every
// invocation the model requested, including calls that were denied or named
// an unknown tool; the per-call records carry the distinction.
type Result struct {
	Response      string
	Status        string
	TurnsTaken    int
	ToolCallCount int
	ToolCalls     []models.ToolCallRecord
	Usage         models.TokenUsage
}

// Loop runs the bounded model/tool conversation for a single command.
// One Loop value is shared across requests; Run carries all per-command state.
type Loop struct {
	backend    services.ModelBackend
	dispatcher ToolDispatcher
	policy     ActionPolicy
	audit      services.AuditSink
	maxTurns   int
	timeout    time.Duration
}

func NewLoop(backend services.ModelBackend, dispatcher ToolDispatcher, policy ActionPolicy, audit services.AuditSink, maxTurns int, timeout time.Duration) *Loop {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Loop{
		backend:    backend,
		dispatcher: dispatcher,
		policy:     policy,
		audit:      audit,
		maxTurns:   maxTurns,
		timeout:    timeout,
	}
}

// Run executes the command until a terminal state. A model backend failure
// aborts the command and is the only error this returns.
//
// The wall-clock deadline is checked once per turn, before the model call.
// A turn that starts in time is allowed to finish, including its tool
// dispatches; the next turn then observes the overrun.
func (l *Loop) Run(ctx context.Context, agent *models.Agent, systemPrompt, command, correlationID string, schemas []models.ToolSchema, actions map[string]string) (*Result, error) {
	deadline := time.Now().Add(l.timeout)
	log := slog.With("agent_id", agent.ID, "correlation_id", correlationID)

	// Dispatched tools and their collaborators read the correlation id from
	// the context when they audit.
	ctx = services.WithCorrelationID(ctx, correlationID)

	messages := []models.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: command},
	}

	result := &Result{}

	for turn := 1; turn <= l.maxTurns; turn++ {
		if time.Now().After(deadline) {
			log.Warn("Command timed out", "turns_taken", result.TurnsTaken)
			result.Response = timedOutResponse
			result.Status = StatusTimedOut
			return result, nil
		}

		log.Debug("Entering state", "state", stateAwaitingModel, "turn", turn)
		resp, err := l.backend.CallModel(ctx, messages, schemas)
		if err != nil {
			return nil, fmt.Errorf("model call failed on turn %d: %w", turn, err)
		}
		result.TurnsTaken = turn
		result.Usage.Input += resp.InputTokens
		result.Usage.Output += resp.OutputTokens

		if len(resp.ToolCalls) == 0 {
			result.Response = resp.Content
			result.Status = StatusDone
			return result, nil
		}

		log.Debug("Entering state", "state", stateDispatchingTools, "turn", turn, "tool_calls", len(resp.ToolCalls))
		messages = append(messages, models.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Every requested call gets a result message, in request order,
		// before the next model call. The model never sees a hole in the
		// transcript.
		for _, call := range resp.ToolCalls {
			toolMsg := l.dispatchOne(ctx, agent, call, actions, correlationID, result, log)
			messages = append(messages, toolMsg)
		}
	}

	log.Warn("Command hit turn ceiling", "max_turns", l.maxTurns)
	result.Response = maxTurnsResponse
	result.Status = StatusMaxTurnsReached
	return result, nil
}

// dispatchOne resolves one tool call to a tool-role message. Denials and
// failures are synthesized as error results so the model can react.
func (l *Loop) dispatchOne(ctx context.Context, agent *models.Agent, call models.ToolCall, actions map[string]string, correlationID string, result *Result, log *slog.Logger) models.ChatMessage {
	name := call.Function.Name
	record := models.ToolCallRecord{Name: name}
	start := time.Now()

	// Every requested invocation counts, denied or not.
	result.ToolCallCount++

	finish := func(content string, isErr bool) models.ChatMessage {
		record.Duration = time.Since(start).Milliseconds()
		if isErr {
			record.Error = content
		} else {
			record.Result = content
		}
		result.ToolCalls = append(result.ToolCalls, record)
		return models.ChatMessage{
			Role:       "tool",
			Content:    content,
			ToolCallID: call.ID,
			Name:       name,
		}
	}

	action, known := actions[name]
	if !known {
		// Hidden and nonexistent tools read identically.
		log.Warn("Unknown tool requested", "tool", name)
		return finish(fmt.Sprintf("Error: unknown tool %q", name), true)
	}
	record.Action = action

	if !l.policy.CanPerformAction(agent.Capabilities, action) {
		log.Warn("Tool call denied by policy", "tool", name, "action", action)
		l.audit.Emit("agent", agent.ID, models.AuditToolDenied, "tool", name,
			map[string]any{"action": action}, correlationID)
		if m := services.GetMetrics(); m != nil {
			m.ToolDenials.WithLabelValues("capability").Inc()
		}
		return finish(fmt.Sprintf("Error: not authorized to perform %s", action), true)
	}

	if l.policy.IsDestructive(action) {
		if err := safety.VerifyDestructive(agent, name, true); err != nil {
			log.Warn("Destructive tool call denied", "tool", name, "action", action)
			l.audit.Emit("agent", agent.ID, models.AuditDestructiveDenied, "tool", name,
				map[string]any{"action": action}, correlationID)
			if m := services.GetMetrics(); m != nil {
				m.ToolDenials.WithLabelValues("destructive").Inc()
			}
			return finish(fmt.Sprintf("Error: destructive action %s is not permitted for this agent", action), true)
		}
		// Destructive dispatches are audited before execution so the trail
		// exists even if the process dies mid-call.
		l.audit.Emit("agent", agent.ID, models.AuditToolExecuted, "tool", name,
			map[string]any{"action": action, "destructive": true, "phase": "pre-execution"}, correlationID)
	}

	toolResult := l.dispatcher.Execute(ctx, agent.ID, name, call.Function.Arguments)

	outcome := "ok"
	if toolResult.IsError {
		outcome = "error"
	}
	if m := services.GetMetrics(); m != nil {
		m.ToolCalls.WithLabelValues(name, outcome).Inc()
	}

	if toolResult.IsError {
		log.Warn("Tool execution failed", "tool", name, "error", toolResult.Content)
		l.audit.Emit("agent", agent.ID, models.AuditToolExecuted, "tool", name,
			map[string]any{"action": action, "error": toolResult.Content}, correlationID)
		return finish("Error: "+toolResult.Content, true)
	}

	filtered, violations := safety.FilterToolOutput(toolResult.Content, safety.DefaultMaxToolOutputLen)
	for _, v := range violations {
		l.audit.Emit("agent", agent.ID, models.AuditSafetyViolation, "tool", name,
			map[string]any{"type": v.Type, "severity": v.Severity}, correlationID)
	}

	l.audit.Emit("agent", agent.ID, models.AuditToolExecuted, "tool", name,
		map[string]any{"action": action, "duration_ms": time.Since(start).Milliseconds()}, correlationID)

	return finish(safety.WrapToolOutput(name, filtered), false)
}
