package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"mejohncorg/internal/models"
)

const (
	registryCacheKey = "tool_definitions"
	registryCacheTTL = 5 * time.Minute
)

// Registry serves tool definitions from MySQL with a short read cache.
// Visibility is capability-scoped: an agent only ever sees tools whose
// capability it holds (or tools with no capability at all).
type Registry struct {
	db    *sql.DB
	cache *cache.Cache
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{
		db:    db,
		cache: cache.New(registryCacheTTL, 10*time.Minute),
	}
}

// LoadForCapabilities returns the provider-facing schemas visible to an agent
// holding caps, plus the name→action map for exactly that visible set. Tools
// the agent cannot see never appear in the map, so an invocation of a hidden
// tool is indistinguishable from an unknown tool.
func (r *Registry) LoadForCapabilities(ctx context.Context, caps []string) ([]models.ToolSchema, map[string]string, error) {
	defs, err := r.loadAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tool definitions: %w", err)
	}
	schemas, actions := FilterForCapabilities(defs, caps)
	return schemas, actions, nil
}

// FilterForCapabilities applies the visibility rule to a definition set.
func FilterForCapabilities(defs []models.ToolDefinition, caps []string) ([]models.ToolSchema, map[string]string) {
	capSet := make(map[string]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}

	var schemas []models.ToolSchema
	actions := make(map[string]string)
	for _, def := range defs {
		if !def.IsActive {
			continue
		}
		if def.CapabilityName != "" && !capSet[def.CapabilityName] {
			continue
		}
		schemas = append(schemas, models.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
		actions[def.Name] = def.ActionName
	}
	return schemas, actions
}

// All returns every tool definition, active or not. Admin surface only;
// agent-facing loads go through LoadForCapabilities.
func (r *Registry) All(ctx context.Context) ([]models.ToolDefinition, error) {
	return r.loadAll(ctx)
}

// RegisteredActions returns the distinct action names of every active tool.
// Used at startup to validate the action policy covers the registry.
func (r *Registry) RegisteredActions(ctx context.Context) ([]string, error) {
	defs, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var actions []string
	for _, def := range defs {
		if !def.IsActive || def.ActionName == "" || seen[def.ActionName] {
			continue
		}
		seen[def.ActionName] = true
		actions = append(actions, def.ActionName)
	}
	return actions, nil
}

func (r *Registry) loadAll(ctx context.Context) ([]models.ToolDefinition, error) {
	if cached, found := r.cache.Get(registryCacheKey); found {
		return cached.([]models.ToolDefinition), nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, description, input_schema, capability_name, action_name, is_active
		FROM tool_definitions
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []models.ToolDefinition
	for rows.Next() {
		var def models.ToolDefinition
		var schemaJSON string
		if err := rows.Scan(&def.Name, &def.Description, &schemaJSON, &def.CapabilityName, &def.ActionName, &def.IsActive); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(schemaJSON), &def.InputSchema); err != nil {
			slog.Warn("Skipping tool with malformed input schema", "tool", def.Name, "error", err)
			continue
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.cache.Set(registryCacheKey, defs, registryCacheTTL)
	return defs, nil
}

// Invalidate drops the read cache so the next load hits the database.
func (r *Registry) Invalidate() {
	r.cache.Delete(registryCacheKey)
}

// EnsureBuiltins upserts the built-in tool definitions so a fresh database
// serves tools without manual seeding. Operator edits to descriptions or
// is_active survive restarts; schema and wiring columns are authoritative.
func (r *Registry) EnsureBuiltins(ctx context.Context, builtins []models.ToolDefinition) error {
	for _, def := range builtins {
		schemaJSON, err := json.Marshal(def.InputSchema)
		if err != nil {
			return fmt.Errorf("failed to marshal schema for %s: %w", def.Name, err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO tool_definitions (name, description, input_schema, capability_name, action_name, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				input_schema = VALUES(input_schema),
				capability_name = VALUES(capability_name),
				action_name = VALUES(action_name)`,
			def.Name, def.Description, string(schemaJSON), def.CapabilityName, def.ActionName, def.IsActive)
		if err != nil {
			return fmt.Errorf("failed to seed tool %s: %w", def.Name, err)
		}
	}
	r.Invalidate()
	return nil
}
