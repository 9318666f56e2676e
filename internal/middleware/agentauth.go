package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"mejohncorg/internal/models"
	"mejohncorg/internal/services"
)

const rateLimitWindow = time.Minute

// CredentialAuthenticator resolves a raw credential to an agent.
// AgentService is the production implementation.
type CredentialAuthenticator interface {
	Authenticate(ctx context.Context, credential string) (*models.Agent, error)
}

// RateLimiter is the shared fixed-window counter. RedisService is the
// production implementation.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (remaining int64, exceeded bool, err error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// AgentAuth authenticates the X-Agent-Key header and applies the per-agent
// rate limit. Both checks run before any model or tool work is possible.
// The limit counter lives in Redis so it is shared by every API instance.
//
// The request's correlation id is minted here, before the first audit
// emission, so auth outcomes join the same trail as the command's events.
func AgentAuth(agents CredentialAuthenticator, limiter RateLimiter, audit services.AuditSink, defaultRateLimitRPM int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := uuid.New().String()
		c.Locals("correlation_id", correlationID)

		credential := c.Get("X-Agent-Key")
		if credential == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing agent credential. Include X-Agent-Key header.",
			})
		}

		agent, err := agents.Authenticate(c.Context(), credential)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidCredential):
				audit.Emit("agent", "", models.AuditAuthFailed, "agent", "",
					map[string]any{"reason": "invalid_credential"}, correlationID)
				if m := services.GetMetrics(); m != nil {
					m.AuthFailures.WithLabelValues("invalid_credential").Inc()
				}
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid agent credential",
				})
			case errors.Is(err, services.ErrAgentSuspended):
				audit.Emit("agent", "", models.AuditAuthFailed, "agent", "",
					map[string]any{"reason": "suspended"}, correlationID)
				if m := services.GetMetrics(); m != nil {
					m.AuthFailures.WithLabelValues("suspended").Inc()
				}
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid agent credential",
				})
			default:
				slog.Error("Agent lookup failed", "error", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Authentication unavailable",
				})
			}
		}

		limit := agent.RateLimitRPM
		if limit <= 0 {
			limit = defaultRateLimitRPM
		}

		key := fmt.Sprintf("ratelimit:agent:%s", agent.ID)
		remaining, exceeded, err := limiter.CheckRateLimit(c.Context(), key, limit, rateLimitWindow)
		if err != nil {
			slog.Error("Rate limit check failed", "agent_id", agent.ID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Rate limiting unavailable",
			})
		}

		ttl, err := limiter.TTL(c.Context(), key)
		if err != nil || ttl <= 0 {
			// Without a readable TTL the reset time is unknown; report the
			// full window rather than a past timestamp.
			if err != nil {
				slog.Warn("Rate limit TTL lookup failed", "agent_id", agent.ID, "error", err)
			}
			ttl = rateLimitWindow
		}
		resetAt := time.Now().Add(ttl).UTC()

		if exceeded {
			audit.Emit("agent", agent.ID, models.AuditAuthRateLimited, "agent", agent.ID,
				map[string]any{"limit": limit}, correlationID)
			c.Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":     "Rate limit exceeded",
				"remaining": 0,
				"reset_at":  resetAt.Format(time.RFC3339),
			})
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		audit.Emit("agent", agent.ID, models.AuditAuthSuccess, "agent", agent.ID, nil, correlationID)

		c.Locals("agent", agent)
		return c.Next()
	}
}

// AgentFromContext retrieves the authenticated agent set by AgentAuth.
func AgentFromContext(c *fiber.Ctx) (*models.Agent, bool) {
	agent, ok := c.Locals("agent").(*models.Agent)
	return agent, ok
}

// CorrelationID retrieves the per-request correlation id set by AgentAuth.
func CorrelationID(c *fiber.Ctx) string {
	if id, ok := c.Locals("correlation_id").(string); ok {
		return id
	}
	return ""
}
