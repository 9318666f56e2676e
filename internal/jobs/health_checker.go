package jobs

import (
	"context"
	"log/slog"
	"time"

	"mejohncorg/internal/database"
	"mejohncorg/internal/services"
)

// HealthChecker pings the backing stores on a schedule and logs degradation.
type HealthChecker struct {
	db      *database.DB
	mongoDB *database.MongoDB
	redis   *services.RedisService
}

func NewHealthChecker(db *database.DB, mongoDB *database.MongoDB, redis *services.RedisService) *HealthChecker {
	return &HealthChecker{db: db, mongoDB: mongoDB, redis: redis}
}

// Run checks each dependency with a short deadline.
func (h *HealthChecker) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			slog.Error("Health check failed", "dependency", "mysql", "error", err)
		}
	}
	if h.mongoDB != nil {
		if err := h.mongoDB.Ping(ctx); err != nil {
			slog.Error("Health check failed", "dependency", "mongodb", "error", err)
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			slog.Error("Health check failed", "dependency", "redis", "error", err)
		}
	}
}
