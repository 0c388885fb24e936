package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// TableWriter upserts catalog rows into a database table.
type TableWriter interface {
	UpsertCatalog(ctx context.Context, cat catalog.Catalog) error
	Location() string
}

// TableSink writes the catalog as rows. The digest is taken over the JSONL
// encoding so it matches a file sink for the same catalog.
type TableSink struct {
	writer TableWriter
	hasher catalog.Hasher
}

var _ catalog.Sink = (*TableSink)(nil)

// NewTableSink builds a sink over writer.
func NewTableSink(writer TableWriter, hasher catalog.Hasher) (*TableSink, error) {
	if writer == nil {
		return nil, errors.New("sink: table writer is required")
	}
	if hasher == nil {
		return nil, errors.New("sink: hasher is required")
	}
	return &TableSink{writer: writer, hasher: hasher}, nil
}

// Write upserts every record.
func (s *TableSink) Write(ctx context.Context, cat catalog.Catalog) (catalog.Receipt, error) {
	data, err := Encode(FormatJSONL, cat)
	if err != nil {
		return catalog.Receipt{}, &catalog.OutputIOError{Sink: s.writer.Location(), Err: err}
	}
	digest, err := s.hasher.Hash(data)
	if err != nil {
		return catalog.Receipt{}, &catalog.OutputIOError{Sink: s.writer.Location(), Err: fmt.Errorf("hash catalog: %w", err)}
	}
	if err := s.writer.UpsertCatalog(ctx, cat); err != nil {
		return catalog.Receipt{}, &catalog.OutputIOError{Sink: s.writer.Location(), Err: err}
	}
	return catalog.Receipt{URI: s.writer.Location(), Digest: digest, Records: len(cat.Records)}, nil
}

// Fanout writes to every sink in order and stops at the first failure. The
// first sink's receipt is returned.
type Fanout []catalog.Sink

// Write implements catalog.Sink.
func (f Fanout) Write(ctx context.Context, cat catalog.Catalog) (catalog.Receipt, error) {
	if len(f) == 0 {
		return catalog.Receipt{}, &catalog.OutputIOError{Sink: "fanout", Err: errors.New("no sinks configured")}
	}
	var primary catalog.Receipt
	for i, s := range f {
		receipt, err := s.Write(ctx, cat)
		if err != nil {
			return catalog.Receipt{}, err
		}
		if i == 0 {
			primary = receipt
		}
	}
	return primary, nil
}
