// Package api hosts the optional status listener for a running catalog build.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for the current run's progress snapshot.
//   - GET /status/checkpoint for the checkpoint's per-classification counts.
package api
