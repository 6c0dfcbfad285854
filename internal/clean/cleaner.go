// Package clean improves clip quality with filtering, spectral noise gating
// and optional compression, measuring the clip before and after.
package clean

import (
	"context"
	"log/slog"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/config"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

const stageName = "cleaning"

// nyquistMargin keeps lowpass cutoffs strictly below Nyquist.
const nyquistMargin = 0.95

// Cleaner implements stage.Handler for audio cleaning.
type Cleaner struct {
	cfg    config.Cleaner
	bits   int
	outDir string
	logger *slog.Logger
}

// New constructs a Cleaner.
func New(cfg *config.Config, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		cfg:    cfg.Cleaner,
		bits:   cfg.Loader.TargetBits,
		outDir: cfg.OutputDir(config.DirCleaned),
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Name implements stage.Handler.
func (c *Cleaner) Name() string { return stageName }

// Flag implements stage.Handler.
func (c *Cleaner) Flag() progress.Stage { return progress.StageCleaned }

// HealthCheck implements stage.Handler.
func (c *Cleaner) HealthCheck(context.Context) stage.Health { return stage.Healthy(stageName) }

// Settings are the filter parameters actually used for one clip.
type Settings struct {
	HighpassCutoff float64
	LowpassCutoff  float64
	NoiseReduction bool
	Compression    bool
}

// EffectiveSettings resolves cutoffs for rate. A cutoff of zero disables its
// filter; lowpass cutoffs at or above Nyquist are clamped below it.
func (c *Cleaner) EffectiveSettings(rate int) Settings {
	s := Settings{
		HighpassCutoff: c.cfg.HighpassCutoff,
		LowpassCutoff:  c.cfg.LowpassCutoff,
		NoiseReduction: c.cfg.NoiseReduction,
		Compression:    c.cfg.Compression,
	}
	limit := float64(rate) / 2 * nyquistMargin
	if s.LowpassCutoff > limit {
		s.LowpassCutoff = limit
	}
	if s.HighpassCutoff >= limit {
		s.HighpassCutoff = 0
	}
	return s
}

// Clean applies the configured chain and returns the cleaned samples.
func (c *Cleaner) Clean(clip *audio.Clip, s Settings) ([]float64, error) {
	samples := clip.Clone().Samples
	if s.HighpassCutoff > 0 {
		hp, err := dsp.ButterworthHighpass(c.cfg.FilterOrder, s.HighpassCutoff, clip.SampleRate)
		if err != nil {
			return nil, err
		}
		samples = hp.FiltFilt(samples)
	}
	if s.LowpassCutoff > 0 {
		lp, err := dsp.ButterworthLowpass(c.cfg.FilterOrder, s.LowpassCutoff, clip.SampleRate)
		if err != nil {
			return nil, err
		}
		samples = lp.FiltFilt(samples)
	}
	if s.NoiseReduction {
		samples = dsp.DefaultNoiseReduction(c.cfg.NoiseStationary, c.cfg.NoiseReductionStrength).Reduce(samples, clip.SampleRate)
	}
	if s.Compression {
		comp := dsp.DefaultCompressor()
		comp.ThresholdDB = c.cfg.CompressionThresholdDB
		comp.Ratio = c.cfg.CompressionRatio
		samples = comp.Apply(samples, clip.SampleRate)
	}
	audio.Limit(samples, 1)
	return samples, nil
}

// Process implements stage.Handler.
func (c *Cleaner) Process(ctx context.Context, job stage.Job) (stage.Result, error) {
	clip, err := stage.LoadClip(stageName, job.Path)
	if err != nil {
		return stage.Result{}, err
	}
	settings := c.EffectiveSettings(clip.SampleRate)
	before := dsp.Measure(clip.Samples, clip.SampleRate)
	cleaned, err := c.Clean(clip, settings)
	if err != nil {
		return stage.Result{}, services.Wrap(services.ErrConfiguration, stageName, "design filter", "", err)
	}
	out := audio.NewClip(cleaned, clip.SampleRate)
	after := dsp.Measure(out.Samples, out.SampleRate)
	acceptable := after.SNR >= c.cfg.QualityThresholdSNR

	path := stage.OutputPath(c.outDir, job.Path, "")
	if err := stage.WriteClip(stageName, path, out, c.bits); err != nil {
		return stage.Result{}, err
	}
	log := logging.WithContext(ctx, c.logger)
	if !acceptable {
		log.Debug("cleaned clip below snr threshold",
			logging.Float64("snr", dsp.Finite(after.SNR)),
			logging.Float64("threshold", c.cfg.QualityThresholdSNR),
		)
	}
	return stage.Result{
		Outputs: []stage.Artifact{{Path: path, SpeakerID: job.SpeakerID}},
		Details: map[string]any{
			"before":             before.Map(),
			"after":              after.Map(),
			"output_path":        path,
			"quality_acceptable": acceptable,
			"applied_treatments": map[string]any{
				"highpass_filter": settings.HighpassCutoff > 0,
				"lowpass_filter":  settings.LowpassCutoff > 0,
				"noise_reduction": settings.NoiseReduction,
				"compression":     settings.Compression,
			},
			"filter_settings": map[string]any{
				"highpass_cutoff":          settings.HighpassCutoff,
				"lowpass_cutoff":           settings.LowpassCutoff,
				"filter_order":             c.cfg.FilterOrder,
				"noise_reduction_strength": c.cfg.NoiseReductionStrength,
				"noise_stationary":         c.cfg.NoiseStationary,
			},
		},
	}, nil
}
