// Package catalog defines core types shared across the discovery pipeline.
package catalog

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Classification is the outcome of probing a single series id.
type Classification string

// Classification values persisted in the checkpoint.
const (
	ClassStandard        Classification = "standard"
	ClassDaily           Classification = "daily"
	ClassNotFound        Classification = "not_found"
	ClassErrorTimeout    Classification = "error_timeout"
	ClassErrorConnection Classification = "error_connection"
)

const errorPrefix = "error_"

// MaxSeriesID bounds the scannable id space. SGS ids are far below it.
const MaxSeriesID = 10_000_000

// ErrorClass builds the terminal classification for an id whose probes kept
// returning the given HTTP status.
func ErrorClass(code int) Classification {
	return Classification(errorPrefix + strconv.Itoa(code))
}

// IsValid reports whether the id maps to an existing series.
func (c Classification) IsValid() bool {
	return c == ClassStandard || c == ClassDaily
}

// IsError reports whether the id ended in a terminal probe error.
func (c Classification) IsError() bool {
	return strings.HasPrefix(string(c), errorPrefix)
}

// ParseClassification validates a persisted classification string.
func ParseClassification(raw string) (Classification, error) {
	c := Classification(strings.TrimSpace(raw))
	switch {
	case c == ClassStandard, c == ClassDaily, c == ClassNotFound:
		return c, nil
	case c.IsError() && len(c) > len(errorPrefix):
		return c, nil
	default:
		return "", fmt.Errorf("unknown classification %q", raw)
	}
}

// Candidate is a probed id and its classification.
type Candidate struct {
	ID    int            `json:"id"`
	Class Classification `json:"type"`
}

// SeriesMetadata holds the descriptive fields scraped for one series. Every
// field may legitimately be absent.
type SeriesMetadata struct {
	Name        *string `json:"name"`
	Periodicity *string `json:"periodicity"`
	Unit        *string `json:"unit"`
	Source      *string `json:"source"`
	Description *string `json:"description"`
}

// LastObservation is the date of the most recent data point of a series.
type LastObservation struct {
	Date time.Time
}

// Enriched is a candidate that survived metadata and observation lookup.
type Enriched struct {
	Candidate   Candidate
	Metadata    SeriesMetadata
	Observation LastObservation
}

// Record is one catalog entry for an active series.
type Record struct {
	SeriesID      int     `json:"series_id" yaml:"series_id"`
	GeneratedCode string  `json:"generated_code" yaml:"generated_code"`
	Name          *string `json:"name" yaml:"name"`
	Periodicity   *string `json:"periodicity" yaml:"periodicity"`
	Unit          *string `json:"unit" yaml:"unit"`
	Source        *string `json:"source" yaml:"source"`
	Description   *string `json:"description" yaml:"description"`
	LastUpdate    string  `json:"last_update" yaml:"last_update"`
	APIURL        string  `json:"api_url" yaml:"api_url"`
}

// Catalog is the complete set of records produced by one run.
type Catalog struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Records     []Record  `json:"records" yaml:"records"`
}

// Receipt describes where a catalog was written.
type Receipt struct {
	URI     string
	Digest  string
	Records int
}

// Response is the result of a transport call. Non-2xx statuses are returned
// here rather than as errors.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// DateLayout is the calendar date format used for last_update.
const DateLayout = "2006-01-02"

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
