package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ncc/internal/platform/config"
)

// Collection names.
const (
	CollectionUsers         = "users"
	CollectionRegistrations = "registrations"
)

// Connect opens a client, pings the primary and returns the configured database.
// Returns nil, nil when no URI is configured.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	if cfg.URI == "" {
		return nil, nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes creates the indexes the registration flow relies on. The
// unique user_id index turns a racing second registration create into a
// duplicate-key error that the reconciliation engine resolves by adopting
// the existing record.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	registrations := db.Collection(CollectionRegistrations)
	_, err := registrations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_user_id"),
		},
		{
			Keys:    bson.D{{Key: "registration_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_registration_id"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("status_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("create registration indexes: %w", err)
	}

	users := db.Collection(CollectionUsers)
	_, err = users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("email"),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}
