package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"audiocorpus/internal/services"
)

// Stage names a processing-stage flag on a record.
type Stage string

const (
	StageLoaded             Stage = "loaded"
	StageLoudnessNormalized Stage = "loudness_normalized"
	StageSilenceRemoved     Stage = "silence_removed"
	StageDiarized           Stage = "diarized"
	StageSegmented          Stage = "segmented"
	StageCleaned            Stage = "cleaned"
	StageMetadataTagged     Stage = "metadata_tagged"
	StageAugmented          Stage = "augmented"
	StageQualityChecked     Stage = "quality_checked"
	StageExported           Stage = "exported"
)

// Stages lists the stage vocabulary in pipeline order.
var Stages = []Stage{
	StageLoaded,
	StageLoudnessNormalized,
	StageSilenceRemoved,
	StageDiarized,
	StageSegmented,
	StageCleaned,
	StageMetadataTagged,
	StageAugmented,
	StageQualityChecked,
	StageExported,
}

// ParseStage validates a stage name.
func ParseStage(value string) (Stage, error) {
	for _, stage := range Stages {
		if string(stage) == value {
			return stage, nil
		}
	}
	return "", fmt.Errorf("%w: unknown stage %q", services.ErrValidation, value)
}

var (
	// ErrRecordNotFound is returned when a record id does not exist.
	ErrRecordNotFound = fmt.Errorf("%w: progress record not found", services.ErrNotFound)
	// ErrOwningRecordNotFound signals that a derived file could not be traced
	// back to the record of its original source file.
	ErrOwningRecordNotFound = fmt.Errorf("%w: owning record not found", services.ErrNotFound)
)

// IsNotFound reports whether err is a record lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}

// Segment is a derived clip attributed to a record.
type Segment struct {
	File      string         `json:"segment_file"`
	SpeakerID string         `json:"speaker_id"`
	StartTime float64        `json:"start_time"`
	EndTime   float64        `json:"end_time"`
	Duration  float64        `json:"duration"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Augmentation is an augmented clip attributed to a record.
type Augmentation struct {
	OriginalFile  string         `json:"original_file"`
	AugmentedFile string         `json:"augmented_file"`
	Type          string         `json:"augmentation_type"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Record is the audit trail for one original source file.
type Record struct {
	ID               string                   `json:"id"`
	File             string                   `json:"file"`
	OriginalMetadata map[string]any           `json:"original_metadata"`
	Stages           map[Stage]bool           `json:"processing_stages"`
	Details          map[Stage]map[string]any `json:"processing_details"`
	Segments         []Segment                `json:"segments"`
	Augmentations    []Augmentation           `json:"augmentations"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// Done reports whether stage is marked successful. Absent stages read false.
func (r *Record) Done(stage Stage) bool {
	if r == nil {
		return false
	}
	return r.Stages[stage]
}

// Detail returns the details document for stage, or nil.
func (r *Record) Detail(stage Stage) map[string]any {
	if r == nil {
		return nil
	}
	return r.Details[stage]
}

// SourcePath returns the original input path captured at ingestion.
func (r *Record) SourcePath() string {
	if r == nil {
		return ""
	}
	if path, ok := r.OriginalMetadata["path"].(string); ok {
		return path
	}
	return ""
}

// HasSegment reports whether a segment with the given basename is attached.
func (r *Record) HasSegment(file string) bool {
	if r == nil {
		return false
	}
	for _, seg := range r.Segments {
		if seg.File == file {
			return true
		}
	}
	return false
}

func newRecord(id, file string, meta map[string]any, now time.Time) *Record {
	return &Record{
		ID:               id,
		File:             file,
		OriginalMetadata: meta,
		Stages:           initialStages(),
		Details:          map[Stage]map[string]any{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func initialStages() map[Stage]bool {
	stages := make(map[Stage]bool, len(Stages))
	for _, stage := range Stages {
		stages[stage] = false
	}
	return stages
}

// normalizeDocument round-trips a free-form document through JSON so every
// backend hands back the same value shapes (numbers as float64, nested maps
// as map[string]any).
func normalizeDocument(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %v", services.ErrValidation, err)
	}
	return decodeDocument(data)
}

func encodeDocument(doc map[string]any) ([]byte, error) {
	if doc == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %v", services.ErrValidation, err)
	}
	return data, nil
}

func decodeDocument(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
