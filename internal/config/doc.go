// Package config loads, normalizes, and validates audiocorpus configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HF_TOKEN and AUDIOCORPUS_POSTGRES_DSN. The Config type centralizes every knob
// the pipeline stages, progress store, blob store, and CLI need, so stage
// output directories and service credentials are discovered in one pass.
//
// Per-stage parameters can be replaced at run time with a JSON or YAML
// override document (see ApplyOverrideFile); the merged result is validated
// again before use.
package config
