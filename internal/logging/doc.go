// Package logging assembles structured slog loggers and formatting helpers used
// across the audiocorpus pipeline.
//
// It owns the console and JSON handlers, the rotating log file writer, and
// per-component level overrides. Context helpers tag log lines with record
// IDs, stage names, source files, and request IDs so a single file's journey
// through the pipeline can be followed in either output.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// the same field names (event_type, error_hint, impact) as the rest of the
// system.
package logging
