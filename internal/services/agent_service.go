package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"mejohncorg/internal/database"
	"mejohncorg/internal/models"
)

const (
	// CredentialPrefix is the prefix for all agent credentials
	CredentialPrefix = "mjc_"
	// CredentialLength is the length of the random part (32 bytes = 64 hex chars)
	CredentialLength = 32
	// CredentialPrefixLength is how many chars are stored for lookup (including "mjc_")
	CredentialPrefixLength = 12

	// Verified credentials are cached briefly to front bcrypt. The cache
	// stores only the agent ID; status is re-read on every hit so a
	// suspension takes effect within one lookup, not one TTL.
	credentialCacheTTL = 30 * time.Second
)

// Authentication errors. All of them map to 401 at the edge; the distinction
// exists for audit detail only.
var (
	ErrInvalidCredential = errors.New("invalid agent credential")
	ErrAgentSuspended    = errors.New("agent is suspended")
	ErrAgentNotFound     = errors.New("agent not found")
)

// AgentService manages agent records and authenticates agent credentials.
type AgentService struct {
	db              *database.DB
	credentialCache *cache.Cache
}

func NewAgentService(db *database.DB) *AgentService {
	return &AgentService{
		db:              db,
		credentialCache: cache.New(credentialCacheTTL, time.Minute),
	}
}

// GenerateCredential generates a new agent credential.
func (s *AgentService) GenerateCredential() (string, error) {
	bytes := make([]byte, CredentialLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return CredentialPrefix + hex.EncodeToString(bytes), nil
}

// HashCredential hashes a credential for storage.
func (s *AgentService) HashCredential(credential string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hash), nil
}

// VerifyCredential verifies a credential against a stored hash.
func (s *AgentService) VerifyCredential(credential, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) == nil
}

// ValidCredentialFormat checks shape only. Malformed credentials are rejected
// here so the store is never consulted for garbage input.
func ValidCredentialFormat(credential string) bool {
	if !strings.HasPrefix(credential, CredentialPrefix) {
		return false
	}
	hexPart := strings.TrimPrefix(credential, CredentialPrefix)
	if len(hexPart) != CredentialLength*2 {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// Authenticate resolves a raw credential to an active agent.
// Returns ErrInvalidCredential for malformed or unknown credentials,
// ErrAgentSuspended for a valid credential on a suspended agent, and a
// wrapped store error when the database cannot answer.
func (s *AgentService) Authenticate(ctx context.Context, credential string) (*models.Agent, error) {
	if !ValidCredentialFormat(credential) {
		return nil, ErrInvalidCredential
	}

	cacheKey := hashCacheKey(credential)
	if cached, found := s.credentialCache.Get(cacheKey); found {
		agent, err := s.GetByID(ctx, cached.(string))
		if err != nil {
			if errors.Is(err, ErrAgentNotFound) {
				s.credentialCache.Delete(cacheKey)
				return nil, ErrInvalidCredential
			}
			return nil, err
		}
		if agent.IsSuspended() {
			return nil, ErrAgentSuspended
		}
		return agent, nil
	}

	prefix := credential[:CredentialPrefixLength]
	candidates, err := s.getByCredentialPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to look up agent: %w", err)
	}

	for _, agent := range candidates {
		if !s.VerifyCredential(credential, agent.CredentialHash) {
			continue
		}
		if agent.IsSuspended() {
			return nil, ErrAgentSuspended
		}
		s.credentialCache.Set(cacheKey, agent.ID, credentialCacheTTL)
		return agent, nil
	}

	return nil, ErrInvalidCredential
}

func hashCacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Create registers a new agent and returns the plaintext credential once.
func (s *AgentService) Create(ctx context.Context, req *models.CreateAgentRequest) (*models.CreateAgentResponse, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if !models.ValidAgentType(req.Type) {
		return nil, fmt.Errorf("invalid agent type: %s", req.Type)
	}
	if req.Type == models.AgentTypeTool && req.AllowDestructive {
		return nil, fmt.Errorf("tool agents cannot be granted allow_destructive")
	}

	credential, err := s.GenerateCredential()
	if err != nil {
		return nil, err
	}
	hash, err := s.HashCredential(credential)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:               uuid.New().String(),
		Name:             req.Name,
		Type:             req.Type,
		Status:           models.AgentStatusActive,
		Capabilities:     req.Capabilities,
		RateLimitRPM:     req.RateLimitRPM,
		CredentialPrefix: credential[:CredentialPrefixLength],
		CredentialHash:   hash,
		AllowDestructive: req.AllowDestructive,
		Metadata:         req.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, type, status, capabilities, rate_limit_rpm,
			credential_prefix, credential_hash, allow_destructive, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, string(agent.Type), agent.Status, agent.CapabilitiesJSON(),
		agent.RateLimitRPM, agent.CredentialPrefix, agent.CredentialHash,
		agent.AllowDestructive, agent.MetadataJSON(), agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	slog.Info("Created agent", "agent_id", agent.ID, "name", agent.Name, "type", agent.Type,
		"credential_prefix", agent.CredentialPrefix)

	return &models.CreateAgentResponse{Agent: agent, Credential: credential}, nil
}

// GetByID retrieves a single agent.
func (s *AgentService) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, agentSelectColumns+` WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// List returns all agents, newest first.
func (s *AgentService) List(ctx context.Context) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, agentSelectColumns+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// UpdateStatus sets an agent's status and invalidates nothing else: the
// credential cache re-reads status on every hit.
func (s *AgentService) UpdateStatus(ctx context.Context, id, status string) error {
	if status != models.AgentStatusActive && status != models.AgentStatusSuspended {
		return fmt.Errorf("invalid status: %s", status)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAgentNotFound
	}
	slog.Info("Updated agent status", "agent_id", id, "status", status)
	return nil
}

func (s *AgentService) getByCredentialPrefix(ctx context.Context, prefix string) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, agentSelectColumns+` WHERE credential_prefix = ?`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

const agentSelectColumns = `
	SELECT id, name, type, status, capabilities, rate_limit_rpm,
		credential_prefix, credential_hash, allow_destructive, metadata, created_at, updated_at
	FROM agents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var agent models.Agent
	var agentType, capsJSON, metaJSON string
	err := row.Scan(&agent.ID, &agent.Name, &agentType, &agent.Status, &capsJSON,
		&agent.RateLimitRPM, &agent.CredentialPrefix, &agent.CredentialHash,
		&agent.AllowDestructive, &metaJSON, &agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		return nil, err
	}
	agent.Type = models.AgentType(agentType)
	if err := json.Unmarshal([]byte(capsJSON), &agent.Capabilities); err != nil {
		return nil, fmt.Errorf("malformed capabilities for agent %s: %w", agent.ID, err)
	}
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &agent.Metadata); err != nil {
			return nil, fmt.Errorf("malformed metadata for agent %s: %w", agent.ID, err)
		}
	}
	return &agent, nil
}
