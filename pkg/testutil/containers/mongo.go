//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	platformmongo "ncc/internal/platform/mongo"
)

type MongoContainer struct {
	Container testcontainers.Container
	URI       string
	Client    *mongo.Client
}

func NewMongoContainer(t *testing.T) *MongoContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("failed to start mongo container: %v", err)
	}
	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get mongo connection string: %v", err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to mongo: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping mongo: %v", err)
	}
	return &MongoContainer{Container: container, URI: uri, Client: client}
}

// FreshDatabase drops and recreates the named database with the
// registration indexes in place.
func (m *MongoContainer) FreshDatabase(t *testing.T, name string) *mongo.Database {
	t.Helper()
	ctx := context.Background()
	db := m.Client.Database(name)
	if err := db.Drop(ctx); err != nil {
		t.Fatalf("failed to drop database %s: %v", name, err)
	}
	if err := platformmongo.EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("failed to create indexes: %v", err)
	}
	return db
}
