// Package blobstore is the object storage contract for uploaded documents.
package blobstore

import (
	"context"
	"io"
	"time"
)

// File is an upload handed to the blob store.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// PreviewOptions shapes a preview URL.
type PreviewOptions struct {
	Expiry time.Duration
	// Inline asks the browser to render the file rather than download it.
	Inline bool
}

// Store stores files in named buckets. Implementations return
// sentinel.ErrNotFound for unknown files.
type Store interface {
	Upload(ctx context.Context, bucket string, file File) (fileID string, err error)
	PreviewURL(ctx context.Context, bucket, fileID string, opts PreviewOptions) (string, error)
	Delete(ctx context.Context, bucket, fileID string) error
}
