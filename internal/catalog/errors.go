package catalog

import (
	"errors"
	"fmt"
)

// TransportErrorKind distinguishes the failure modes of a transport call.
type TransportErrorKind string

// Transport failure kinds.
const (
	KindTimeout           TransportErrorKind = "timeout"
	KindConnectionFailure TransportErrorKind = "connection_failure"
	KindHTTPStatus        TransportErrorKind = "http_status"
)

// TransportError is returned for timeouts and network failures, and built by
// callers that want to treat an unexpected status as a failure.
type TransportError struct {
	Kind       TransportErrorKind
	URL        string
	StatusCode int
	Err        error
}

// NewStatusError wraps an unexpected HTTP status.
func NewStatusError(url string, code int) *TransportError {
	return &TransportError{Kind: KindHTTPStatus, URL: url, StatusCode: code}
}

func (e *TransportError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s: http status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.URL, e.Kind)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MetadataError means the metadata flow did not yield a usable table. It
// excludes the candidate and is never retried.
type MetadataError struct {
	SeriesID int
	Step     string
	Reason   string
	Err      error
}

func (e *MetadataError) Error() string {
	msg := fmt.Sprintf("series %d metadata %s: %s", e.SeriesID, e.Step, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// ErrNoRecentData is returned when an observation lookup yields zero points.
var ErrNoRecentData = errors.New("no recent data")

// ErrNoActiveSeries marks a run that completed but found nothing active.
var ErrNoActiveSeries = errors.New("no active series found")

// CheckpointIOError aborts the run: discovered state must never be lost silently.
type CheckpointIOError struct {
	Op  string
	Err error
}

func (e *CheckpointIOError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
}

func (e *CheckpointIOError) Unwrap() error {
	return e.Err
}

// OutputIOError aborts the run: no usable artifact was produced.
type OutputIOError struct {
	Sink string
	Err  error
}

func (e *OutputIOError) Error() string {
	return fmt.Sprintf("write catalog to %s: %v", e.Sink, e.Err)
}

func (e *OutputIOError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a storage-layer failure that must abort the run.
func IsFatal(err error) bool {
	var cpErr *CheckpointIOError
	var outErr *OutputIOError
	return errors.As(err, &cpErr) || errors.As(err, &outErr)
}
