// Package memory stores catalog artifacts in memory for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/sgs-catalog/internal/storage"
)

// BlobStore keeps artifacts in memory and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]storage.Object
	data    map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string]storage.Object),
		data:    make(map[string][]byte),
	}
}

// PutObject stores a copy of obj's body.
func (s *BlobStore) PutObject(_ context.Context, obj storage.Object) (string, error) {
	body, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := make(map[string]string, len(obj.Metadata))
	for k, v := range obj.Metadata {
		meta[k] = v
	}
	obj.Metadata = meta
	obj.Body = nil
	s.objects[obj.Path] = obj
	s.data[obj.Path] = body
	return fmt.Sprintf("memory://%s", obj.Path), nil
}

// Get returns the stored body for path.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[path]
	return append([]byte(nil), b...), ok
}

// Object returns the stored object attributes for path (without a body).
func (s *BlobStore) Object(path string) (storage.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}
