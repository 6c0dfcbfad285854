// Package workflow drives source files through the configured processing
// stages.
//
// The Manager runs each file's stage chain strictly in order: loading,
// normalization, silence_removal, diarization, segmentation, cleaning,
// augmentation and quality_check. Diarization and segmentation fan a file out
// into a working set that every later stage processes in parallel. A stage
// that fails for one artifact passes that artifact's input forward unchanged.
// Augmentation writes a side branch: its clips are recorded but the quality
// gate still checks the cleaned segments.
//
// Directory batches process files on a bounded worker pool and then run one
// deferred metadata export and quality report pass over the whole corpus.
// Systemic failures (credentials, configuration) feed a process-wide circuit
// breaker that halts the batch once tripped.
package workflow
