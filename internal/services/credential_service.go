package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mejohncorg/internal/crypto"
	"mejohncorg/internal/database"
	"mejohncorg/internal/models"
)

// Credential grant errors, distinguished so tool output can say why an
// integration is unavailable without leaking anything else.
var (
	ErrNoGrant      = errors.New("no credential grant for integration")
	ErrGrantExpired = errors.New("credential grant has expired")
)

// credentialGrant is the stored shape of one integration grant.
type credentialGrant struct {
	IntegrationID  string     `bson:"integrationId"`
	AgentID        string     `bson:"agentId"`
	EncryptedValue string     `bson:"encryptedValue"`
	ExpiresAt      *time.Time `bson:"expiresAt,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt"`
}

// CredentialService hands decrypted integration credentials to tools.
// Values are AES-GCM encrypted at rest under per-agent derived keys.
type CredentialService struct {
	mongoDB    *database.MongoDB
	encryption *crypto.EncryptionService
	audit      AuditSink
}

func NewCredentialService(mongoDB *database.MongoDB, encryption *crypto.EncryptionService, audit AuditSink) *CredentialService {
	return &CredentialService{
		mongoDB:    mongoDB,
		encryption: encryption,
		audit:      audit,
	}
}

func (s *CredentialService) collection() *mongo.Collection {
	return s.mongoDB.Database().Collection(database.CollectionCredentials)
}

// Get returns the decrypted credential for an integration, or ErrNoGrant /
// ErrGrantExpired. Every successful access is audited.
func (s *CredentialService) Get(ctx context.Context, integrationID, agentID string) (string, error) {
	var grant credentialGrant
	err := s.collection().FindOne(ctx, bson.M{
		"integrationId": integrationID,
		"agentId":       agentID,
	}).Decode(&grant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", fmt.Errorf("%w: %s", ErrNoGrant, integrationID)
		}
		return "", fmt.Errorf("failed to look up credential grant: %w", err)
	}

	if grant.ExpiresAt != nil && grant.ExpiresAt.Before(time.Now()) {
		return "", fmt.Errorf("%w: %s", ErrGrantExpired, integrationID)
	}

	plaintext, err := s.encryption.Decrypt(agentID, grant.EncryptedValue)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}

	s.audit.Emit("agent", agentID, models.AuditCredentialAccess, "integration", integrationID, nil,
		CorrelationIDFromContext(ctx))

	return string(plaintext), nil
}

// Grant stores (or replaces) an integration credential for an agent.
func (s *CredentialService) Grant(ctx context.Context, integrationID, agentID, value string, expiresAt *time.Time) error {
	encrypted, err := s.encryption.Encrypt(agentID, []byte(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.collection().UpdateOne(ctx,
		bson.M{"integrationId": integrationID, "agentId": agentID},
		bson.M{
			"$set": bson.M{
				"encryptedValue": encrypted,
				"expiresAt":      expiresAt,
				"updatedAt":      now,
			},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store credential grant: %w", err)
	}

	slog.Info("Stored credential grant", "integration_id", integrationID, "agent_id", agentID)
	return nil
}

// Revoke deletes a grant. Missing grants are not an error.
func (s *CredentialService) Revoke(ctx context.Context, integrationID, agentID string) error {
	_, err := s.collection().DeleteOne(ctx, bson.M{
		"integrationId": integrationID,
		"agentId":       agentID,
	})
	if err != nil {
		return fmt.Errorf("failed to revoke credential grant: %w", err)
	}
	return nil
}
