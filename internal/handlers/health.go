package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"mejohncorg/internal/database"
	"mejohncorg/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db      *database.DB
	mongoDB *database.MongoDB
	redis   *services.RedisService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, mongoDB *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{db: db, mongoDB: mongoDB, redis: redis}
}

// Handle responds with server health status and per-dependency pings.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	deps := fiber.Map{}
	healthy := true

	check := func(name string, ping func(context.Context) error) {
		if ping == nil {
			deps[name] = "not configured"
			return
		}
		if err := ping(ctx); err != nil {
			deps[name] = "unhealthy"
			healthy = false
			return
		}
		deps[name] = "healthy"
	}

	if h.db != nil {
		check("mysql", h.db.PingContext)
	}
	if h.mongoDB != nil {
		check("mongodb", h.mongoDB.Ping)
	}
	if h.redis != nil {
		check("redis", h.redis.Ping)
	}

	status := "healthy"
	code := fiber.StatusOK
	if !healthy {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}
