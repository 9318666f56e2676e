package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names
const (
	CollectionAuditEvents = "audit_events"
	CollectionCredentials = "credentials"
)

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "mejohncorg"
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	slog.Info("Connected to MongoDB", "database", dbName)
	return db, nil
}

// extractDBName extracts the database name from a MongoDB URI.
// mongodb://localhost:27017/mejohncorg?authSource=admin -> mejohncorg
func extractDBName(uri string) string {
	lastSlash := -1
	questionMark := -1
	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}
	if lastSlash != -1 {
		start := lastSlash + 1
		end := len(uri)
		if questionMark != -1 && questionMark > lastSlash {
			end = questionMark
		}
		if start < end {
			return uri[start:end]
		}
	}
	return ""
}

// Initialize creates indexes for all collections.
func (m *MongoDB) Initialize(ctx context.Context) error {
	auditIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "correlationId", Value: 1}}},
		{Keys: bson.D{{Key: "actorId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := m.database.Collection(CollectionAuditEvents).Indexes().CreateMany(ctx, auditIndexes); err != nil {
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}

	credentialIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "integrationId", Value: 1}, {Key: "agentId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := m.database.Collection(CollectionCredentials).Indexes().CreateMany(ctx, credentialIndexes); err != nil {
		return fmt.Errorf("failed to create credential indexes: %w", err)
	}

	slog.Info("MongoDB indexes initialized")
	return nil
}

// Database returns the underlying database handle.
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Client returns the underlying client.
func (m *MongoDB) Client() *mongo.Client {
	return m.client
}

// Ping checks MongoDB health.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
