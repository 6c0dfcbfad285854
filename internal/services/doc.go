// Package services defines shared utilities consumed by the stage handlers
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, stage names, file names and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the classification
//     that separates per-item failures from systemic ones (bad credentials,
//     broken configuration) that should halt a batch.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
