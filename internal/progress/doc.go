// Package progress persists one ProcessingRecord per original source file.
//
// A record tracks per-stage success flags, per-stage detail documents, and
// append-only lists of derived segments and augmentations. Every mutation is a
// targeted field update so concurrent workers touching different stages of the
// same record never clobber each other.
//
// Three backends implement Store: SQLite (modernc, the default), PostgreSQL
// (pgx, with a JSONB document projection), and an in-process memory store.
// Open selects one explicitly from configuration; falling back to memory when
// a durable backend is unreachable must be enabled in configuration and leaves
// a marker file in the state directory.
package progress
