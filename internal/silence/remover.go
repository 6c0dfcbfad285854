package silence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/config"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

const stageName = "silence_removal"

// Methods.
const (
	MethodWebRTC = "webrtcvad"
	MethodSilero = "silero"
	MethodEnergy = "energy"
)

// Remover implements stage.Handler for silence removal.
type Remover struct {
	cfg      config.Silence
	bits     int
	outDir   string
	detector Detector
	logger   *slog.Logger
}

// New constructs a remover using the configured detector.
func New(cfg *config.Config, logger *slog.Logger) *Remover {
	return NewWithDetector(cfg, detectorFor(cfg.Silence), logger)
}

// NewWithDetector constructs a remover with an explicit detector.
func NewWithDetector(cfg *config.Config, detector Detector, logger *slog.Logger) *Remover {
	return &Remover{
		cfg:      cfg.Silence,
		bits:     cfg.Loader.TargetBits,
		outDir:   cfg.OutputDir(config.DirSilenceRemoved),
		detector: detector,
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

func detectorFor(cfg config.Silence) Detector {
	switch cfg.Method {
	case MethodSilero:
		return SileroDetector{ModelPath: cfg.SileroModelPath, Threshold: cfg.SileroThreshold, MinSilenceMS: cfg.MinSilenceMS}
	case MethodEnergy:
		return EnergyDetector{ThresholdDB: cfg.SilenceThresholdDB, MinSilenceMS: cfg.MinSilenceMS}
	default:
		return WebRTCDetector{Mode: cfg.VADAggressiveness, FrameMS: cfg.FrameMS, MinSilenceMS: cfg.MinSilenceMS}
	}
}

// Name implements stage.Handler.
func (r *Remover) Name() string { return stageName }

// Flag implements stage.Handler.
func (r *Remover) Flag() progress.Stage { return progress.StageSilenceRemoved }

// HealthCheck verifies the silero model file when that method is selected.
func (r *Remover) HealthCheck(context.Context) stage.Health {
	if r.cfg.Method == MethodSilero {
		if _, err := os.Stat(r.cfg.SileroModelPath); err != nil {
			return stage.Unhealthy(stageName, fmt.Sprintf("silero model unavailable: %v", err))
		}
	}
	return stage.Healthy(stageName)
}

// Report summarizes one removal.
type Report struct {
	OriginalDuration float64
	RetainedDuration float64
	RemovedPercent   float64
	Segments         int
}

// Remove returns the voice-only clip and its report. The clip is nil when no
// speech is found.
func (r *Remover) Remove(clip *audio.Clip) (*audio.Clip, Report, error) {
	report := Report{OriginalDuration: clip.Duration()}
	spans, err := r.detector.Detect(clip.Samples, clip.SampleRate)
	if err != nil {
		return nil, report, err
	}
	minLen := int(r.cfg.MinSegmentSeconds * float64(clip.SampleRate))
	kept := spans[:0:0]
	for _, s := range spans {
		if s.Len() >= minLen && s.Len() > 0 {
			kept = append(kept, s)
		}
	}
	pad := r.cfg.KeepSilenceMS * clip.SampleRate / 1000
	kept = dsp.Pad(kept, pad, clip.Len())
	if len(kept) == 0 {
		return nil, report, nil
	}

	parts := make([][]float64, 0, len(kept))
	for _, s := range kept {
		parts = append(parts, clip.Samples[s.Start:s.End])
	}
	out := audio.Concat(clip.SampleRate, parts...)
	report.RetainedDuration = out.Duration()
	report.Segments = len(kept)
	if report.OriginalDuration > 0 {
		report.RemovedPercent = 100 * (1 - report.RetainedDuration/report.OriginalDuration)
	}
	return out, report, nil
}

// Process implements stage.Handler.
func (r *Remover) Process(ctx context.Context, job stage.Job) (stage.Result, error) {
	clip, err := stage.LoadClip(stageName, job.Path)
	if err != nil {
		return stage.Result{}, err
	}
	out, report, err := r.Remove(clip)
	if err != nil {
		if errors.Is(err, ErrDetectorUnavailable) {
			return stage.Result{}, services.Wrap(services.ErrConfiguration, stageName, "detect", r.cfg.Method, err)
		}
		return stage.Result{}, services.Wrap(services.ErrExternalTool, stageName, "detect", r.cfg.Method, err)
	}
	if out == nil {
		return stage.Result{}, services.Wrap(services.ErrValidation, stageName, "detect", "no speech detected", nil)
	}

	path := stage.OutputPath(r.outDir, job.Path, "")
	if err := stage.WriteClip(stageName, path, out, r.bits); err != nil {
		return stage.Result{}, err
	}
	logging.WithContext(ctx, r.logger).Info("silence removed",
		logging.String("method", r.cfg.Method),
		logging.Float64("duration", report.RetainedDuration),
		logging.Float64("removed_percent", report.RemovedPercent),
		logging.Int("n_segments", report.Segments),
	)
	return stage.Result{
		Outputs: []stage.Artifact{{Path: path, SpeakerID: job.SpeakerID}},
		Details: map[string]any{
			"output_path":        path,
			"method":             r.cfg.Method,
			"original_duration":  stage.Round(report.OriginalDuration, 3),
			"processed_duration": stage.Round(report.RetainedDuration, 3),
			"removed_percentage": stage.Round(report.RemovedPercent, 2),
			"n_segments":         report.Segments,
			"keep_silence_ms":    r.cfg.KeepSilenceMS,
		},
	}, nil
}
