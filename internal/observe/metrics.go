package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "audiocorpus"

// Metrics holds the pipeline instruments.
type Metrics struct {
	// StageDuration tracks per-job stage latency, by stage and outcome.
	StageDuration metric.Float64Histogram
	// StageOutcomes counts per-record stage results, by stage and outcome.
	StageOutcomes metric.Int64Counter
	// SegmentVerdicts counts quality gate decisions, by verdict and reason.
	SegmentVerdicts metric.Int64Counter
	// FilesProcessed counts top-level files, by outcome.
	FilesProcessed metric.Int64Counter
	// BlobOperations counts object store calls, by operation and outcome.
	BlobOperations metric.Int64Counter
}

var durationBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 1800,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("audiocorpus.stage.duration",
		metric.WithDescription("Wall-clock duration of one stage job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageOutcomes, err = m.Int64Counter("audiocorpus.stage.outcomes",
		metric.WithDescription("Stage results recorded against progress records."),
	); err != nil {
		return nil, err
	}
	if met.SegmentVerdicts, err = m.Int64Counter("audiocorpus.quality.verdicts",
		metric.WithDescription("Quality gate decisions by verdict and rejection reason."),
	); err != nil {
		return nil, err
	}
	if met.FilesProcessed, err = m.Int64Counter("audiocorpus.files.processed",
		metric.WithDescription("Top-level input files driven through the pipeline."),
	); err != nil {
		return nil, err
	}
	if met.BlobOperations, err = m.Int64Counter("audiocorpus.blob.operations",
		metric.WithDescription("Object store calls by operation and outcome."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveStageJob records one job's duration.
func (m *Metrics) ObserveStageJob(ctx context.Context, stage string, elapsed time.Duration, success bool) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome(success)),
	))
}

// CountStageOutcome records one UpdateStage result.
func (m *Metrics) CountStageOutcome(ctx context.Context, stage string, success bool) {
	if m == nil {
		return
	}
	m.StageOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome(success)),
	))
}

// CountVerdict records a gate decision. Rejected segments count once per
// reason.
func (m *Metrics) CountVerdict(ctx context.Context, accepted bool, reasons []string) {
	if m == nil {
		return
	}
	if accepted {
		m.SegmentVerdicts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("verdict", "accepted"),
			attribute.String("reason", "none"),
		))
		return
	}
	for _, reason := range reasons {
		m.SegmentVerdicts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("verdict", "rejected"),
			attribute.String("reason", reason),
		))
	}
}

// CountFile records one top-level file.
func (m *Metrics) CountFile(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.FilesProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(success))))
}

// CountBlob records one object store call.
func (m *Metrics) CountBlob(ctx context.Context, operation, result string) {
	if m == nil {
		return
	}
	m.BlobOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", result),
	))
}
