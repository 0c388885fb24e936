// Package retry holds the probe retry policy.
package retry

import "time"

// Defaults used when the policy is left zero.
const (
	DefaultMaxRetries = 2
	DefaultUnit       = time.Second
)

// Policy retries a failed probe up to MaxRetries times with a linearly growing
// wait: Unit before the first retry, 2*Unit before the second, and so on.
type Policy struct {
	MaxRetries int
	Unit       time.Duration
}

// NewPolicy builds a policy, substituting defaults for non-positive values.
// A negative maxRetries disables retries.
func NewPolicy(maxRetries int, unit time.Duration) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if unit <= 0 {
		unit = DefaultUnit
	}
	return Policy{MaxRetries: maxRetries, Unit: unit}
}

// ShouldRetry reports whether a retryable failure on the given zero-based
// attempt earns another try.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxRetries
}

// Backoff returns the wait before the retry that follows attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(1+attempt) * p.unit()
}

// Attempts is the total number of tries an id can receive.
func (p Policy) Attempts() int {
	return p.MaxRetries + 1
}

func (p Policy) unit() time.Duration {
	if p.Unit <= 0 {
		return DefaultUnit
	}
	return p.Unit
}
