package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"mejohncorg/internal/config"
	"mejohncorg/internal/models"
	"mejohncorg/internal/services"
	"mejohncorg/pkg/auth"
)

// ToolCatalog lists every tool definition for the admin surface.
// tools.Registry is the production implementation.
type ToolCatalog interface {
	All(ctx context.Context) ([]models.ToolDefinition, error)
}

// AdminHandler manages agents and tool definitions for the site operator.
type AdminHandler struct {
	cfg          *config.Config
	jwtAuth      *auth.JWTAuth
	agentService *services.AgentService
	catalog      ToolCatalog
}

func NewAdminHandler(cfg *config.Config, jwtAuth *auth.JWTAuth, agentService *services.AgentService, catalog ToolCatalog) *AdminHandler {
	return &AdminHandler{
		cfg:          cfg,
		jwtAuth:      jwtAuth,
		agentService: agentService,
		catalog:      catalog,
	}
}

// Login exchanges the operator password for a bearer token.
// POST /api/admin/login
func (h *AdminHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if h.cfg.AdminPasswordHash == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Admin login not configured"})
	}

	ok, err := auth.VerifyPassword(h.cfg.AdminPasswordHash, req.Password)
	if err != nil || !ok || req.Username != h.cfg.AdminUsername {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	token, err := h.jwtAuth.GenerateAccessToken(req.Username, "admin")
	if err != nil {
		slog.Error("Failed to issue admin token", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue token"})
	}

	return c.JSON(fiber.Map{"token": token})
}

// CreateAgent registers an agent. The credential appears in this response
// and nowhere else, ever.
// POST /api/admin/agents
func (h *AdminHandler) CreateAgent(c *fiber.Ctx) error {
	var req models.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	resp, err := h.agentService.Create(c.Context(), &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ListAgents returns all registered agents.
// GET /api/admin/agents
func (h *AdminHandler) ListAgents(c *fiber.Ctx) error {
	agents, err := h.agentService.List(c.Context())
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list agents"})
	}
	return c.JSON(fiber.Map{"agents": agents})
}

// SuspendAgent blocks an agent from authenticating.
// POST /api/admin/agents/:id/suspend
func (h *AdminHandler) SuspendAgent(c *fiber.Ctx) error {
	return h.setStatus(c, models.AgentStatusSuspended)
}

// ActivateAgent re-enables a suspended agent.
// POST /api/admin/agents/:id/activate
func (h *AdminHandler) ActivateAgent(c *fiber.Ctx) error {
	return h.setStatus(c, models.AgentStatusActive)
}

func (h *AdminHandler) setStatus(c *fiber.Ctx, status string) error {
	id := c.Params("id")
	if err := h.agentService.UpdateStatus(c.Context(), id, status); err != nil {
		if errors.Is(err, services.ErrAgentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Agent not found"})
		}
		slog.Error("Failed to update agent status", "agent_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update agent"})
	}
	return c.JSON(fiber.Map{"id": id, "status": status})
}

// ListTools returns every tool definition, active or not.
// GET /api/admin/tools
func (h *AdminHandler) ListTools(c *fiber.Ctx) error {
	// Admins see everything; capability filtering is for agents.
	defs, err := h.catalog.All(c.Context())
	if err != nil {
		slog.Error("Failed to list tools", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list tools"})
	}
	return c.JSON(fiber.Map{"tools": defs})
}
