// Package storage defines the object model shared by the catalog blob stores.
package storage

import "io"

// Object is one artifact to upload.
type Object struct {
	Path        string
	ContentType string
	// Metadata is attached where the backend supports it (GCS object metadata).
	Metadata map[string]string
	Body     io.Reader
}
