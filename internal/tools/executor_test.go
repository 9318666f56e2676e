package tools

import (
	"context"
	"strings"
	"testing"

	"mejohncorg/internal/models"
)

type fakeTool struct {
	name   string
	output string
	err    error
	panics bool
}

func (f *fakeTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{Name: f.name, ActionName: f.name + ".run", IsActive: true}
}

func (f *fakeTool) Execute(ctx context.Context, agentID string, args map[string]any) (string, error) {
	if f.panics {
		panic("boom")
	}
	return f.output, f.err
}

func TestExecutor_Success(t *testing.T) {
	e := NewExecutor(&fakeTool{name: "echo", output: "hello"})
	result := e.Execute(context.Background(), "a1", "echo", `{"x":1}`)
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != "hello" {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	e := NewExecutor()
	result := e.Execute(context.Background(), "a1", "missing", "{}")
	if !result.IsError {
		t.Fatal("expected error result for unknown tool")
	}
	if !strings.Contains(result.Content, "unknown tool") {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestExecutor_InvalidArguments(t *testing.T) {
	e := NewExecutor(&fakeTool{name: "echo"})
	result := e.Execute(context.Background(), "a1", "echo", `{not json`)
	if !result.IsError {
		t.Fatal("expected error result for malformed arguments")
	}
}

func TestExecutor_PanicContained(t *testing.T) {
	e := NewExecutor(&fakeTool{name: "bad", panics: true})
	result := e.Execute(context.Background(), "a1", "bad", "{}")
	if !result.IsError {
		t.Fatal("panic must surface as an error result")
	}
}

func TestExecutor_EmptyArgsAllowed(t *testing.T) {
	e := NewExecutor(&fakeTool{name: "echo", output: "ok"})
	result := e.Execute(context.Background(), "a1", "echo", "")
	if result.IsError {
		t.Fatalf("empty arguments should parse as no arguments: %s", result.Content)
	}
}

func TestStringArg(t *testing.T) {
	if _, err := stringArg(map[string]any{}, "q"); err == nil {
		t.Error("missing key should error")
	}
	if _, err := stringArg(map[string]any{"q": 7}, "q"); err == nil {
		t.Error("non-string value should error")
	}
	if v, err := stringArg(map[string]any{"q": "x"}, "q"); err != nil || v != "x" {
		t.Errorf("unexpected result: %v %v", v, err)
	}
}
