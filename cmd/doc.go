// Package cmd defines the sgs-catalog command line.
//
// Architecture overview:
//   - Phase 1 (scan): every id in [lo, hi] is probed once through the shared transport and classified as
//     standard, daily, not_found or error_<code>. Classifications are committed to the checkpoint after each batch,
//     so an interrupted run resumes with only the unresolved ids.
//   - Phase 2 (enrich): starts only when the whole range is classified. Each candidate gets its metadata through a
//     cookie-scoped two-step session and its latest observation through the data API; failures exclude that
//     candidate only.
//   - Catalog: active series (per periodicity threshold) become records, written to the configured sinks
//     (local/gcs/memory/postgres). The checkpoint is cleared only after the write succeeds, and a Pub/Sub notice is
//     published when a topic is configured.
//
// Operational notes:
//   - Concurrency: one weighted semaphore caps outstanding requests across both phases; an optional token bucket
//     throttles request starts.
//   - Interrupts: SIGINT/SIGTERM cancel the run; finished probes of the current batch are still committed.
//   - Exit codes: 0 on success, 2 when the run found no active series, 130 after an interrupt (progress is
//     saved), 1 for every other failure.
//   - Observability: zap logs carry run and series ids; Prometheus metrics and a /status snapshot are served when
//     metrics.addr is set.
//
// Quick checklist:
//   - Configure env vars with the SGSCATALOG_ prefix, e.g. SGSCATALOG_SCAN_HI, SGSCATALOG_HTTP_CONCURRENCY,
//     SGSCATALOG_CHECKPOINT_BACKEND, SGSCATALOG_OUTPUT_SINKS, SGSCATALOG_DB_DSN.
//   - Run locally: sgs-catalog build --config config.yaml --lo 1 --hi 5000
package cmd
