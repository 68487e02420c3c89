// Package mongo implements docstore.Collection on a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ncc/internal/docstore"
	"ncc/pkg/platform/sentinel"
)

type Collection[T any] struct {
	coll *mongo.Collection
}

func New[T any](coll *mongo.Collection) *Collection[T] {
	return &Collection[T]{coll: coll}
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	var out T
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "find document")
	}
	return &out, nil
}

func (c *Collection[T]) List(ctx context.Context, q docstore.Query) ([]T, error) {
	filter := bson.D{}
	for _, f := range q.Filters {
		filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
	}
	order := 1
	if q.NewestFirst {
		order = -1
	}
	opts := options.Find().SetSort(bson.D{
		{Key: docstore.CreatedAtField, Value: order},
		{Key: "_id", Value: order},
	})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "find documents")
	}
	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, classify(err, "decode documents")
	}
	return out, nil
}

func (c *Collection[T]) Create(ctx context.Context, id string, doc *T) (string, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	var raw bson.M
	if err := bson.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	raw["_id"] = id

	if _, err := c.coll.InsertOne(ctx, raw); err != nil {
		return "", classify(err, "insert document")
	}
	return id, nil
}

func (c *Collection[T]) Update(ctx context.Context, id string, fields docstore.Fields) error {
	if len(fields) == 0 {
		return nil
	}
	res, err := c.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return classify(err, "update document")
	}
	if res.MatchedCount == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err, "delete document")
	}
	if res.DeletedCount == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func classify(err error, op string) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return fmt.Errorf("%s: %w: %v", op, sentinel.ErrUnavailable, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
