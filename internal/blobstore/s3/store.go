// Package s3 stores uploaded documents in S3-compatible object storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"ncc/internal/blobstore"
	"ncc/internal/platform/config"
	"ncc/pkg/platform/sentinel"
)

const defaultPreviewExpiry = 15 * time.Minute

type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// New builds an S3 client from static credentials. A custom endpoint
// (MinIO, LocalStack) switches to path-style addressing.
func New(ctx context.Context, cfg config.BlobConfig) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client), nil
}

func NewWithClient(client *s3.Client) *Store {
	return &Store{client: client, presign: s3.NewPresignClient(client)}
}

func (s *Store) Upload(ctx context.Context, bucket string, file blobstore.File) (string, error) {
	fileID := uuid.NewString() + path.Ext(file.Name)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(fileID),
		Body:        file.Body,
		ContentType: aws.String(file.ContentType),
		ACL:         s3types.ObjectCannedACLPrivate,
	}
	if file.Size > 0 {
		input.ContentLength = aws.Int64(file.Size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return fileID, nil
}

func (s *Store) PreviewURL(ctx context.Context, bucket, fileID string, opts blobstore.PreviewOptions) (string, error) {
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = defaultPreviewExpiry
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(fileID),
	}
	if opts.Inline {
		input.ResponseContentDisposition = aws.String("inline")
	}
	res, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign preview url: %w", err)
	}
	return res.URL, nil
}

func (s *Store) Delete(ctx context.Context, bucket, fileID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(fileID),
	})
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete from s3: %w", err)
	}
	return nil
}
