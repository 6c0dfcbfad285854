// Package normalize applies loudness normalization to uniformized audio.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/config"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/stage"
)

const stageName = "normalization"

// Methods.
const (
	MethodEBU = "ebu"
	MethodRMS = "rms"
)

// Normalizer implements stage.Handler for loudness normalization.
type Normalizer struct {
	cfg    config.Normalizer
	bits   int
	outDir string
	logger *slog.Logger
}

// New constructs a normalizer writing into the normalized directory.
func New(cfg *config.Config, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		cfg:    cfg.Normalizer,
		bits:   cfg.Loader.TargetBits,
		outDir: cfg.OutputDir(config.DirNormalized),
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Name implements stage.Handler.
func (n *Normalizer) Name() string { return stageName }

// Flag implements stage.Handler.
func (n *Normalizer) Flag() progress.Stage { return progress.StageLoudnessNormalized }

// HealthCheck implements stage.Handler.
func (n *Normalizer) HealthCheck(context.Context) stage.Health { return stage.Healthy(stageName) }

// Levels is a loudness snapshot.
type Levels struct {
	Loudness     float64
	RMSDB        float64
	Peak         float64
	PeakDB       float64
	DynamicRange float64
}

func (l Levels) doc() map[string]any {
	return map[string]any{
		"integrated_lufs": stage.Round(dsp.Finite(l.Loudness), 2),
		"rms_db":          stage.Round(l.RMSDB, 2),
		"peak":            stage.Round(l.Peak, 4),
		"peak_db":         stage.Round(l.PeakDB, 2),
		"dynamic_range":   stage.Round(l.DynamicRange, 2),
	}
}

// Measure returns the loudness snapshot used for the before/after details.
// Loudness is LUFS for the ebu method and RMS dBFS for rms.
func (n *Normalizer) Measure(samples []float64, rate int) Levels {
	rmsDB := dsp.AmplitudeDB(dsp.RMS(samples))
	peak := audio.Peak(samples)
	peakDB := dsp.AmplitudeDB(peak)
	loudness := rmsDB
	if n.cfg.Method == MethodEBU {
		loudness = dsp.IntegratedLoudness(samples, rate, n.cfg.BlockSize)
	}
	return Levels{
		Loudness:     loudness,
		RMSDB:        rmsDB,
		Peak:         peak,
		PeakDB:       peakDB,
		DynamicRange: peakDB - rmsDB,
	}
}

// Gain returns the linear gain moving current loudness to the target, or
// unity when current is at or below the silence floor.
func (n *Normalizer) Gain(current float64) (float64, bool) {
	if math.IsInf(current, 0) || math.IsNaN(current) || current <= n.cfg.SilenceFloor {
		return 1, false
	}
	return dsp.LoudnessGain(current, n.cfg.TargetLoudness), true
}

// Apply normalizes clip in place and returns the before and after levels,
// the gain and the number of limited samples.
func (n *Normalizer) Apply(clip *audio.Clip) (before, after Levels, gain float64, limited int) {
	before = n.Measure(clip.Samples, clip.SampleRate)
	gain, _ = n.Gain(before.Loudness)
	if gain != 1 {
		audio.Scale(clip.Samples, gain)
	}
	limited = audio.Limit(clip.Samples, n.cfg.PeakCeiling)
	after = n.Measure(clip.Samples, clip.SampleRate)
	return before, after, gain, limited
}

// Process implements stage.Handler.
func (n *Normalizer) Process(ctx context.Context, job stage.Job) (stage.Result, error) {
	clip, err := stage.LoadClip(stageName, job.Path)
	if err != nil {
		return stage.Result{}, err
	}
	before, after, gain, limited := n.Apply(clip)

	out := stage.OutputPath(n.outDir, job.Path, "")
	if err := stage.WriteClip(stageName, out, clip, n.bits); err != nil {
		return stage.Result{}, err
	}

	logger := logging.WithContext(ctx, n.logger)
	if gain == 1 && before.Loudness <= n.cfg.SilenceFloor {
		logging.WarnWithContext(logger, "input is effectively silent; unity gain applied", "normalize_silent",
			logging.Float64("integrated_lufs", dsp.Finite(before.Loudness)),
			logging.Float64("silence_floor", n.cfg.SilenceFloor),
			logging.String(logging.FieldImpact, "loudness left unchanged"),
		)
	}
	logger.Info("loudness normalized",
		logging.String("method", n.cfg.Method),
		logging.Float64("integrated_lufs", dsp.Finite(after.Loudness)),
		logging.Float64("gain_applied", gain),
		logging.Int("n_limited", limited),
	)

	return stage.Result{
		Outputs: []stage.Artifact{{Path: out, SpeakerID: job.SpeakerID}},
		Details: map[string]any{
			"output_path":     out,
			"method":          n.cfg.Method,
			"target_loudness": n.cfg.TargetLoudness,
			"before":          before.doc(),
			"after":           after.doc(),
			"gain_applied":    stage.Round(gain, 6),
			"gain_db":         stage.Round(dsp.AmplitudeDB(gain), 2),
			"peak_limited":    limited > 0,
			"n_limited":       limited,
			"summary":         fmt.Sprintf("%.1f -> %.1f", dsp.Finite(before.Loudness), dsp.Finite(after.Loudness)),
		},
	}, nil
}
