// Package memory keeps uploaded files in process memory.
package memory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ncc/internal/blobstore"
	"ncc/pkg/platform/sentinel"
)

type object struct {
	name        string
	contentType string
	data        []byte
}

type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]object
	baseURL string
	uploads int
}

// New returns a store whose preview URLs are rooted at baseURL.
func New(baseURL string) *Store {
	return &Store{buckets: make(map[string]map[string]object), baseURL: baseURL}
}

func (s *Store) Upload(ctx context.Context, bucket string, file blobstore.File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(file.Body)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	fileID := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string]object)
	}
	s.buckets[bucket][fileID] = object{name: file.Name, contentType: file.ContentType, data: data}
	s.uploads++
	return fileID, nil
}

func (s *Store) PreviewURL(ctx context.Context, bucket, fileID string, opts blobstore.PreviewOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	_, ok := s.buckets[bucket][fileID]
	s.mu.RUnlock()
	if !ok {
		return "", sentinel.ErrNotFound
	}
	u := fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(bucket), url.PathEscape(fileID))
	if opts.Inline {
		u += "?disposition=inline"
	}
	return u, nil
}

func (s *Store) Delete(ctx context.Context, bucket, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket][fileID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.buckets[bucket], fileID)
	return nil
}

// Uploads counts successful uploads.
func (s *Store) Uploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploads
}

// Content returns the stored bytes for a file.
func (s *Store) Content(bucket, fileID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][fileID]
	return obj.data, ok
}

// Register serves stored files at /files/{bucket}/{fileID} so preview links
// work without object storage. The links are unsigned; use it for local runs only.
func (s *Store) Register(r chi.Router) {
	r.Get("/files/{bucket}/{fileID}", s.serveFile)
}

func (s *Store) serveFile(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	obj, ok := s.buckets[chi.URLParam(r, "bucket")][chi.URLParam(r, "fileID")]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	disposition := "attachment"
	if r.URL.Query().Get("disposition") == "inline" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, obj.name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(obj.data)
}
