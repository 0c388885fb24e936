// Package progress tracks the state of a catalog run so it can be logged and
// served on the status endpoint.
package progress
