// Package docstore is the document store contract the registration flow is
// written against. Field names in filters and updates are the bson names of
// the document type. Implementations return pkg/platform/sentinel errors.
package docstore

import "context"

// CreatedAtField orders List results. Every stored document type carries it.
const CreatedAtField = "created_at"

// Collection stores documents of type T keyed by a string id.
type Collection[T any] interface {
	// Get returns sentinel.ErrNotFound when no document has id.
	Get(ctx context.Context, id string) (*T, error)
	// List returns documents matching every filter, ordered by creation time.
	List(ctx context.Context, q Query) ([]T, error)
	// Create stores doc under id, or under a generated id when id is empty,
	// and returns the id used. Unique violations return sentinel.ErrConflict.
	Create(ctx context.Context, id string, doc *T) (string, error)
	// Update sets the given fields on an existing document.
	Update(ctx context.Context, id string, fields Fields) error
	Delete(ctx context.Context, id string) error
}

// Fields is a partial update keyed by bson field name.
type Fields map[string]any

// Filter is an equality match on one field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents by equality filters with creation ordering and a limit.
type Query struct {
	Filters     []Filter
	NewestFirst bool
	Limit       int
}

// Where starts a query with one equality filter.
func Where(field string, value any) Query {
	return Query{}.And(field, value)
}

// And adds an equality filter.
func (q Query) And(field string, value any) Query {
	q.Filters = append(append([]Filter{}, q.Filters...), Filter{Field: field, Value: value})
	return q
}

// Newest orders results newest first.
func (q Query) Newest() Query {
	q.NewestFirst = true
	return q
}

// Take caps the number of results. Zero means no limit.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}
