package quality

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"audiocorpus/internal/config"
	"audiocorpus/internal/fileutil"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/observe"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

const stageName = "quality_check"

const verdictKey = "verdict"

// Checker implements stage.Handler for the quality gate. Accepted clips are
// copied into the final dataset directory.
type Checker struct {
	gate      Gate
	flagsPath string
	outDir    string
	metrics   *observe.Metrics
	logger    *slog.Logger

	flagsOnce sync.Once
	flags     Flags
	flagsErr  error
}

// Option customizes a Checker.
type Option func(*Checker)

// WithMetrics counts verdicts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// WithFlags replaces the flags table loaded from quality.metadata_file.
func WithFlags(flags Flags) Option {
	return func(c *Checker) {
		c.flagsOnce.Do(func() { c.flags = flags })
	}
}

// New constructs a Checker.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		gate:      NewGate(cfg.Quality),
		flagsPath: cfg.Quality.MetadataFile,
		outDir:    cfg.OutputDir(config.DirFinal),
		logger:    logging.NewComponentLogger(logger, stageName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements stage.Handler.
func (c *Checker) Name() string { return stageName }

// Flag implements stage.Handler.
func (c *Checker) Flag() progress.Stage { return progress.StageQualityChecked }

// HealthCheck implements stage.Handler.
func (c *Checker) HealthCheck(context.Context) stage.Health {
	if _, err := c.loadFlags(); err != nil {
		return stage.Unhealthy(stageName, err.Error())
	}
	return stage.Healthy(stageName)
}

func (c *Checker) loadFlags() (Flags, error) {
	c.flagsOnce.Do(func() {
		c.flags, c.flagsErr = LoadFlags(c.flagsPath)
	})
	return c.flags, c.flagsErr
}

// Process implements stage.Handler. Rejections are outcomes, not errors: a
// clip that fails the gate still completes the stage.
func (c *Checker) Process(ctx context.Context, job stage.Job) (stage.Result, error) {
	flags, err := c.loadFlags()
	if err != nil {
		return stage.Result{}, services.Wrap(services.ErrConfiguration, stageName, "load flags", c.flagsPath, err)
	}
	verdict := c.gate.Check(job.Path, flags.Problematic(job.Path))
	c.metrics.CountVerdict(ctx, verdict.Accepted(), verdict.Reasons)

	details := map[string]any{
		"is_valid": verdict.Accepted(),
		"metrics": map[string]any{
			"duration":          stage.Round(verdict.Duration, 3),
			"snr":               stage.Round(verdict.SNR, 2),
			"rejection_reasons": verdict.Reasons,
		},
		verdictKey: verdict,
	}
	log := logging.WithContext(ctx, c.logger)
	if !verdict.Accepted() {
		log.Info("segment rejected",
			logging.String(logging.FieldEventType, "segment_rejected"),
			logging.Any("reasons", verdict.Reasons),
			logging.Float64("snr", stage.Round(verdict.SNR, 2)),
			logging.Float64("duration", stage.Round(verdict.Duration, 3)),
		)
		return stage.Result{Details: details}, nil
	}

	dst := filepath.Join(c.outDir, filepath.Base(job.Path))
	if err := fileutil.CopyFile(job.Path, dst); err != nil {
		return stage.Result{}, services.Wrap(services.ErrTransient, stageName, "export", filepath.Base(job.Path), err)
	}
	details["output_path"] = dst
	return stage.Result{
		Outputs:  []stage.Artifact{{Path: dst, SpeakerID: job.SpeakerID}},
		Details:  details,
		Exported: []string{filepath.Base(dst)},
	}, nil
}

// VerdictOf returns the verdict a Checker attached to result.
func VerdictOf(result stage.Result) (Verdict, bool) {
	v, ok := result.Details[verdictKey].(Verdict)
	return v, ok
}
