package stage

import (
	"context"

	"audiocorpus/internal/progress"
)

// Job is one input file handed to a stage, already attributed to the record
// of the original source file.
type Job struct {
	RecordID   string
	SourceFile string
	Path       string
	SpeakerID  string
}

// Artifact is an audio file a stage wrote.
type Artifact struct {
	Path      string
	SpeakerID string
}

// Result is what a stage produced for one job.
type Result struct {
	Outputs       []Artifact
	Segments      []progress.Segment
	Augmentations []progress.Augmentation
	// Details is stored as the stage's processing_details entry.
	Details map[string]any
	// Exported lists files copied into the final dataset directory.
	Exported []string
}

// Handler describes the contract the pipeline needs from each stage.
type Handler interface {
	// Name is the configuration name used by skip and only lists.
	Name() string
	// Flag is the record stage flag set when the stage finishes.
	Flag() progress.Stage
	Process(ctx context.Context, job Job) (Result, error)
	HealthCheck(ctx context.Context) Health
}

// Input returns the job's input as an artifact.
func (j Job) Input() Artifact {
	return Artifact{Path: j.Path, SpeakerID: j.SpeakerID}
}
