package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"mejohncorg/internal/models"
	"mejohncorg/internal/services"
)

type fakeAuthenticator struct {
	agent *models.Agent
	err   error
	calls int
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, credential string) (*models.Agent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.agent, nil
}

type fakeLimiter struct {
	remaining int64
	exceeded  bool
	checkErr  error
	ttl       time.Duration
	ttlErr    error
	counts    map[string]int64
	limit     int64
}

func (f *fakeLimiter) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (int64, bool, error) {
	if f.checkErr != nil {
		return 0, false, f.checkErr
	}
	if f.counts != nil {
		f.counts[key]++
		count := f.counts[key]
		if count > limit {
			return 0, true, nil
		}
		return limit - count, false, nil
	}
	return f.remaining, f.exceeded, nil
}

func (f *fakeLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return f.ttl, f.ttlErr
}

type capturedEvent struct {
	action        string
	correlationID string
}

type capturingSink struct {
	events []capturedEvent
}

func (c *capturingSink) Emit(actorType, actorID, action, resourceType, resourceID string, details map[string]any, correlationID string) {
	c.events = append(c.events, capturedEvent{action: action, correlationID: correlationID})
}

func newAuthApp(agents CredentialAuthenticator, limiter RateLimiter, audit services.AuditSink) *fiber.App {
	app := fiber.New()
	app.Post("/execute", AgentAuth(agents, limiter, audit, 60), func(c *fiber.Ctx) error {
		agent, ok := AgentFromContext(c)
		if !ok {
			return c.Status(fiber.StatusInternalServerError).SendString("no agent in locals")
		}
		return c.JSON(fiber.Map{"agent_id": agent.ID, "correlation_id": CorrelationID(c)})
	})
	return app
}

func execRequest(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/execute", nil)
	if key != "" {
		req.Header.Set("X-Agent-Key", key)
	}
	return req
}

func TestAgentAuth_MissingCredential(t *testing.T) {
	agents := &fakeAuthenticator{}
	app := newAuthApp(agents, &fakeLimiter{}, &capturingSink{})

	resp, err := app.Test(execRequest(""))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if agents.calls != 0 {
		t.Errorf("credential verifier invoked %d times for a header-less request", agents.calls)
	}
}

func TestAgentAuth_InvalidCredential(t *testing.T) {
	sink := &capturingSink{}
	agents := &fakeAuthenticator{err: services.ErrInvalidCredential}
	app := newAuthApp(agents, &fakeLimiter{}, sink)

	resp, err := app.Test(execRequest("mjc_bogus"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if len(sink.events) != 1 || sink.events[0].action != models.AuditAuthFailed {
		t.Fatalf("expected a single auth.failed event, got %+v", sink.events)
	}
	if sink.events[0].correlationID == "" {
		t.Error("auth.failed event emitted without a correlation id")
	}
}

func TestAgentAuth_RateLimitExceeded(t *testing.T) {
	sink := &capturingSink{}
	agents := &fakeAuthenticator{agent: &models.Agent{ID: "agent-1", RateLimitRPM: 2}}
	limiter := &fakeLimiter{counts: map[string]int64{}, ttl: 30 * time.Second}
	app := newAuthApp(agents, limiter, sink)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(execRequest("mjc_key"))
		if err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	resp, err := app.Test(execRequest("mjc_key"))
	if err != nil {
		t.Fatalf("third request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the third request, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}

	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Remaining int    `json:"remaining"`
		ResetAt   string `json:"reset_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal 429 body: %v", err)
	}
	if payload.Remaining != 0 {
		t.Errorf("expected remaining=0, got %d", payload.Remaining)
	}
	resetAt, err := time.Parse(time.RFC3339, payload.ResetAt)
	if err != nil {
		t.Fatalf("reset_at is not RFC3339: %q", payload.ResetAt)
	}
	if !resetAt.After(time.Now()) {
		t.Errorf("reset_at %v is not in the future", resetAt)
	}

	var sawRateLimited bool
	for _, e := range sink.events {
		if e.action == models.AuditAuthRateLimited {
			sawRateLimited = true
			if e.correlationID == "" {
				t.Error("auth.rate_limited event emitted without a correlation id")
			}
		}
	}
	if !sawRateLimited {
		t.Error("no auth.rate_limited event recorded")
	}
}

func TestAgentAuth_Success(t *testing.T) {
	sink := &capturingSink{}
	agents := &fakeAuthenticator{agent: &models.Agent{ID: "agent-1", RateLimitRPM: 10}}
	limiter := &fakeLimiter{remaining: 9, ttl: 45 * time.Second}
	app := newAuthApp(agents, limiter, sink)

	resp, err := app.Test(execRequest("mjc_key"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", got)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9", got)
	}
	if resp.Header.Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header missing")
	}

	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		AgentID       string `json:"agent_id"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.AgentID != "agent-1" {
		t.Errorf("downstream handler saw agent %q", payload.AgentID)
	}
	if payload.CorrelationID == "" {
		t.Error("downstream handler saw an empty correlation id")
	}
	if len(sink.events) != 1 || sink.events[0].action != models.AuditAuthSuccess {
		t.Fatalf("expected a single auth.success event, got %+v", sink.events)
	}
	if sink.events[0].correlationID != payload.CorrelationID {
		t.Errorf("audit correlation id %q does not match the request's %q",
			sink.events[0].correlationID, payload.CorrelationID)
	}
}

func TestAgentAuth_LimiterError(t *testing.T) {
	agents := &fakeAuthenticator{agent: &models.Agent{ID: "agent-1"}}
	limiter := &fakeLimiter{checkErr: errors.New("redis down")}
	app := newAuthApp(agents, limiter, &capturingSink{})

	resp, err := app.Test(execRequest("mjc_key"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestAgentAuth_TTLErrorFallsBackToWindow(t *testing.T) {
	agents := &fakeAuthenticator{agent: &models.Agent{ID: "agent-1", RateLimitRPM: 1}}
	limiter := &fakeLimiter{exceeded: true, ttlErr: errors.New("ttl unavailable")}
	app := newAuthApp(agents, limiter, &capturingSink{})

	resp, err := app.Test(execRequest("mjc_key"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		ResetAt string `json:"reset_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal 429 body: %v", err)
	}
	resetAt, err := time.Parse(time.RFC3339, payload.ResetAt)
	if err != nil {
		t.Fatalf("reset_at is not RFC3339: %q", payload.ResetAt)
	}
	if !resetAt.After(time.Now()) {
		t.Errorf("reset_at %v must be in the future when the TTL is unreadable", resetAt)
	}
}
