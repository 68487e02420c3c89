// Package memory is an in-process docstore used by tests and local development.
// Documents are kept in their bson form so partial updates, equality filters
// and unique fields behave as they do against MongoDB.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ncc/internal/docstore"
	"ncc/pkg/platform/sentinel"
)

type record struct {
	seq int64
	doc bson.M
}

// Collection implements docstore.Collection[T].
type Collection[T any] struct {
	mu      sync.RWMutex
	docs    map[string]*record
	seq     int64
	unique  []string
	failFor map[string]error
}

type Option func(*options)

type options struct {
	unique []string
}

// WithUnique enforces uniqueness of non-empty values of the given fields.
func WithUnique(fields ...string) Option {
	return func(o *options) {
		o.unique = append(o.unique, fields...)
	}
}

func New[T any](opts ...Option) *Collection[T] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return &Collection[T]{
		docs:   make(map[string]*record),
		unique: o.unique,
	}
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.docs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return decode[T](rec.doc)
}

func (c *Collection[T]) List(ctx context.Context, q docstore.Query) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filters := make([]docstore.Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, err
		}
		filters[i] = docstore.Filter{Field: f.Field, Value: v}
	}

	c.mu.RLock()
	var matched []*record
	for _, rec := range c.docs {
		if matches(rec.doc, filters) {
			matched = append(matched, rec)
		}
	}
	c.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := createdAt(matched[i].doc), createdAt(matched[j].doc)
		if !ti.Equal(tj) {
			if q.NewestFirst {
				return ti.After(tj)
			}
			return ti.Before(tj)
		}
		if q.NewestFirst {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].seq < matched[j].seq
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]T, 0, len(matched))
	for _, rec := range matched {
		doc, err := decode[T](rec.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (c *Collection[T]) Create(ctx context.Context, id string, doc *T) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := encode(doc)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	raw["_id"] = id

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.injected("create"); err != nil {
		return "", err
	}
	if _, exists := c.docs[id]; exists {
		return "", sentinel.ErrConflict
	}
	if err := c.checkUnique(id, raw); err != nil {
		return "", err
	}
	c.seq++
	c.docs[id] = &record{seq: c.seq, doc: raw}
	return id, nil
}

func (c *Collection[T]) Update(ctx context.Context, id string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized := make(bson.M, len(fields))
	for k, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		normalized[k] = nv
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.injected("update"); err != nil {
		return err
	}
	rec, ok := c.docs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	next := make(bson.M, len(rec.doc)+len(normalized))
	for k, v := range rec.doc {
		next[k] = v
	}
	for k, v := range normalized {
		next[k] = v
	}
	if err := c.checkUnique(id, next); err != nil {
		return err
	}
	rec.doc = next
	return nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(c.docs, id)
	return nil
}

// Len returns the number of stored documents.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// FailNext makes the next call of op ("create" or "update") return err.
// Tests use it to simulate partial failures.
func (c *Collection[T]) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor == nil {
		c.failFor = make(map[string]error)
	}
	c.failFor[op] = err
}

func (c *Collection[T]) injected(op string) error {
	if err, ok := c.failFor[op]; ok {
		delete(c.failFor, op)
		return err
	}
	return nil
}

func (c *Collection[T]) checkUnique(id string, doc bson.M) error {
	for _, field := range c.unique {
		v, ok := doc[field]
		if !ok || v == nil || v == "" {
			continue
		}
		for otherID, rec := range c.docs {
			if otherID == id {
				continue
			}
			if reflect.DeepEqual(rec.doc[field], v) {
				return fmt.Errorf("duplicate %s: %w", field, sentinel.ErrConflict)
			}
		}
	}
	return nil
}

func matches(doc bson.M, filters []docstore.Filter) bool {
	for _, f := range filters {
		if !reflect.DeepEqual(doc[f.Field], f.Value) {
			return false
		}
	}
	return true
}

func createdAt(doc bson.M) time.Time {
	switch v := doc[docstore.CreatedAtField].(type) {
	case primitive.DateTime:
		return v.Time()
	case time.Time:
		return v
	}
	return time.Time{}
}

func encode(doc any) (bson.M, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out bson.M
	if err := bson.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

func decode[T any](doc bson.M) (*T, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	var out T
	if err := bson.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &out, nil
}

// normalize converts a Go value to the representation it has inside a stored
// document, so typed strings, structs and times compare equal.
func normalize(v any) (any, error) {
	wrapped, err := encode(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	return wrapped["v"], nil
}
