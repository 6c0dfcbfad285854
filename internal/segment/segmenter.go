package segment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"audiocorpus/internal/config"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

const stageName = "segmentation"

// Segmenter implements stage.Handler for fine segmentation.
type Segmenter struct {
	cfg    config.Segmentation
	bits   int
	outDir string
	logger *slog.Logger
}

// New constructs a Segmenter.
func New(cfg *config.Config, logger *slog.Logger) *Segmenter {
	return &Segmenter{
		cfg:    cfg.Segmentation,
		bits:   cfg.Loader.TargetBits,
		outDir: cfg.OutputDir(config.DirSegmented),
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Name implements stage.Handler.
func (s *Segmenter) Name() string { return stageName }

// Flag implements stage.Handler.
func (s *Segmenter) Flag() progress.Stage { return progress.StageSegmented }

// HealthCheck implements stage.Handler.
func (s *Segmenter) HealthCheck(context.Context) stage.Health {
	switch s.cfg.Method {
	case MethodFixed, MethodSilence, MethodAdaptive:
		return stage.Healthy(stageName)
	default:
		return stage.Unhealthy(stageName, "unknown method "+s.cfg.Method)
	}
}

func (s *Segmenter) params(rate int) Params {
	sec := func(v float64) int { return int(v * float64(rate)) }
	ms := func(v int) int { return v * rate / 1000 }
	return Params{
		Target:     sec(s.cfg.TargetLength),
		MinLength:  sec(s.cfg.MinSegmentLength),
		MaxLength:  sec(s.cfg.MaxSegmentLength),
		MinSilence: ms(s.cfg.MinSilenceMS),
		Pad:        ms(s.cfg.KeepSilenceMS),
	}
}

// Plan returns the clip spans for samples and whether the adaptive strategy
// fell back to fixed windows.
func (s *Segmenter) Plan(samples []float64, rate int) ([]dsp.Span, bool) {
	p := s.params(rate)
	if s.cfg.Method == MethodFixed {
		return Fixed(len(samples), p), false
	}
	speech := dsp.NonSilent(samples, rate, dsp.SilenceParams{
		ThresholdDB:  s.cfg.SilenceThresholdDB,
		MinSilenceMS: s.cfg.MinSilenceMS,
	})
	if s.cfg.Method == MethodSilence {
		return FromSpeech(speech, len(samples), p), false
	}
	return Adaptive(speech, len(samples), p)
}

// Process implements stage.Handler.
func (s *Segmenter) Process(ctx context.Context, job stage.Job) (stage.Result, error) {
	clip, err := stage.LoadClip(stageName, job.Path)
	if err != nil {
		return stage.Result{}, err
	}
	spans, fallback := s.Plan(clip.Samples, clip.SampleRate)
	if len(spans) == 0 {
		return stage.Result{}, services.Wrap(services.ErrValidation, stageName, "plan",
			fmt.Sprintf("no segment of at least %.1fs in %s", s.cfg.MinSegmentLength, filepath.Base(job.Path)), nil)
	}
	speaker := job.SpeakerID
	if speaker == "" {
		speaker = "unknown"
	}

	stem := stage.Stem(job.Path)
	result := stage.Result{}
	outputs := make([]string, 0, len(spans))
	for i, span := range spans {
		start, end := span.Seconds(clip.SampleRate)
		path := filepath.Join(s.outDir, fmt.Sprintf("%s_seg%03d.wav", stem, i+1))
		if err := stage.WriteClip(stageName, path, clip.Slice(start, end), s.bits); err != nil {
			return stage.Result{}, err
		}
		outputs = append(outputs, path)
		result.Outputs = append(result.Outputs, stage.Artifact{Path: path, SpeakerID: job.SpeakerID})
		result.Segments = append(result.Segments, progress.Segment{
			File:      path,
			SpeakerID: speaker,
			StartTime: start,
			EndTime:   end,
			Metadata: map[string]any{
				"type":          "fine_segmentation",
				"method":        s.cfg.Method,
				"original_file": filepath.Base(job.Path),
				"segment_index": i + 1,
			},
		})
	}

	logging.WithContext(ctx, s.logger).Debug("segmentation planned",
		logging.String("method", s.cfg.Method),
		logging.Int("n_segments", len(spans)),
		logging.Bool("fixed_fallback", fallback),
	)
	result.Details = map[string]any{
		"method":             s.cfg.Method,
		"n_segments":         len(spans),
		"output_files":       outputs,
		"target_length":      s.cfg.TargetLength,
		"min_segment_length": s.cfg.MinSegmentLength,
		"max_segment_length": s.cfg.MaxSegmentLength,
		"fixed_fallback":     fallback,
	}
	return result, nil
}
