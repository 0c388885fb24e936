package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/metrics"
	"github.com/JakeFAU/sgs-catalog/internal/storage"
)

// DefaultBaseName is the catalog object name without extension.
const DefaultBaseName = "sgs_series_catalog"

// BlobStore persists encoded artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, obj storage.Object) (string, error)
}

// BlobConfig names the object written by a BlobSink.
type BlobConfig struct {
	// Name labels the destination in errors and logs ("local", "gcs", ...).
	Name     string
	Dir      string
	BaseName string
	Format   Format
}

// BlobSink encodes the catalog and uploads it as a single object.
type BlobSink struct {
	cfg    BlobConfig
	store  BlobStore
	hasher catalog.Hasher
	logger *zap.Logger
}

var _ catalog.Sink = (*BlobSink)(nil)

// NewBlobSink builds a sink over store.
func NewBlobSink(cfg BlobConfig, store BlobStore, hasher catalog.Hasher, logger *zap.Logger) (*BlobSink, error) {
	if store == nil {
		return nil, errors.New("sink: blob store is required")
	}
	if hasher == nil {
		return nil, errors.New("sink: hasher is required")
	}
	if cfg.BaseName == "" {
		cfg.BaseName = DefaultBaseName
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSONL
	}
	if cfg.Name == "" {
		cfg.Name = "blob"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobSink{cfg: cfg, store: store, hasher: hasher, logger: logger.Named("sink")}, nil
}

// ObjectPath is where the catalog is written, relative to the store.
func (s *BlobSink) ObjectPath() string {
	return path.Join(s.cfg.Dir, s.cfg.BaseName+"."+s.cfg.Format.Extension())
}

// Write encodes and uploads cat. Any failure is an *catalog.OutputIOError.
func (s *BlobSink) Write(ctx context.Context, cat catalog.Catalog) (catalog.Receipt, error) {
	data, err := Encode(s.cfg.Format, cat)
	if err != nil {
		return catalog.Receipt{}, &catalog.OutputIOError{Sink: s.cfg.Name, Err: err}
	}
	digest, err := s.hasher.Hash(data)
	if err != nil {
		return catalog.Receipt{}, &catalog.OutputIOError{Sink: s.cfg.Name, Err: fmt.Errorf("hash catalog: %w", err)}
	}
	uri, err := s.store.PutObject(ctx, storage.Object{
		Path:        s.ObjectPath(),
		ContentType: s.cfg.Format.ContentType(),
		Metadata: map[string]string{
			"run_id":  cat.RunID,
			"digest":  digest,
			"records": strconv.Itoa(len(cat.Records)),
		},
		Body: bytes.NewReader(data),
	})
	if err != nil {
		return catalog.Receipt{}, &catalog.OutputIOError{Sink: s.cfg.Name, Err: err}
	}
	metrics.SetCatalogRecords(len(cat.Records))
	s.logger.Info("catalog written",
		zap.String("run_id", cat.RunID),
		zap.String("uri", uri),
		zap.String("digest", digest),
		zap.Int("records", len(cat.Records)),
	)
	return catalog.Receipt{URI: uri, Digest: digest, Records: len(cat.Records)}, nil
}
