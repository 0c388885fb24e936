// Package sink writes the finished catalog to its configured destinations.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// Format selects the catalog encoding.
type Format string

// Supported formats.
const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a configured format name.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", FormatJSONL:
		return FormatJSONL, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown catalog format %q", raw)
	}
}

// Extension is the file extension for f.
func (f Format) Extension() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "jsonl"
}

// ContentType is the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/x-ndjson"
}

// Encode renders cat. JSONL writes one record per line, in catalog order;
// YAML writes the whole catalog document including run metadata.
func Encode(f Format, cat catalog.Catalog) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cat); err != nil {
			return nil, fmt.Errorf("encode yaml catalog: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("flush yaml catalog: %w", err)
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		for _, r := range cat.Records {
			if err := enc.Encode(r); err != nil {
				return nil, fmt.Errorf("encode record %d: %w", r.SeriesID, err)
			}
		}
	}
	return buf.Bytes(), nil
}
