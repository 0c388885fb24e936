// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	gcstorage "cloud.google.com/go/storage"

	"github.com/JakeFAU/sgs-catalog/internal/storage"
)

// Config captures the bucket and object prefix for catalog uploads.
type Config struct {
	Bucket string
	Prefix string
}

// BlobStore writes catalog artifacts to a GCS bucket.
type BlobStore struct {
	client *gcstorage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed blob store.
func New(client *gcstorage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the full object name for p.
func (s *BlobStore) ObjectName(p string) string {
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}

// PutObject uploads obj and returns a gs:// URI. Object metadata carries the
// run id and digest so the artifact is self-describing.
func (s *BlobStore) PutObject(ctx context.Context, obj storage.Object) (string, error) {
	if strings.TrimSpace(obj.Path) == "" {
		return "", fmt.Errorf("path is required")
	}
	name := s.ObjectName(obj.Path)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if obj.ContentType != "" {
		writer.ContentType = obj.ContentType
	}
	if len(obj.Metadata) > 0 {
		writer.Metadata = obj.Metadata
	}
	writer.CacheControl = "no-cache"
	if _, err := io.Copy(writer, obj.Body); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}
