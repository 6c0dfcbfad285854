// Package ffprobe provides a typed wrapper around ffprobe JSON output for
// audio inputs.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties (codec, sample rate, channels)
//   - Format: container-level metadata (duration, size, bitrate)
//
// Inspect executes ffprobe and returns a parsed Result. Summary flattens the
// first audio stream and container fields into the document the loader
// stores with each record.
package ffprobe
