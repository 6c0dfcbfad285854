package diarize

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/config"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/preflight"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

const stageName = "diarization"

// Diarizer implements stage.Handler for speaker diarization.
type Diarizer struct {
	cfg    config.Diarization
	bits   int
	outDir string
	runner Runner
	http   *http.Client
	logger *slog.Logger
}

// Option customizes a Diarizer.
type Option func(*Diarizer)

// WithRunner replaces the external model runner.
func WithRunner(r Runner) Option {
	return func(d *Diarizer) { d.runner = r }
}

// WithHTTPClient sets the client used for the hub credential check.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Diarizer) { d.http = c }
}

// New builds a Diarizer and, when verify_token is set, confirms the model hub
// accepts the configured token and grants access to the model. A failure is
// returned as a credential or configuration error and must stop the run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Diarizer, error) {
	d := &Diarizer{
		cfg:    cfg.Diarization,
		bits:   cfg.Loader.TargetBits,
		outDir: cfg.OutputDir(config.DirDiarized),
		logger: logging.NewComponentLogger(logger, stageName),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runner == nil {
		d.runner = NewExecRunner(d.cfg)
	}
	if d.http == nil {
		d.http = &http.Client{Timeout: 10 * time.Second}
	}
	if d.cfg.VerifyToken {
		if err := d.verifyAccess(ctx); err != nil {
			logging.ErrorWithContext(d.logger, "diarization model unavailable", "model_unavailable",
				logging.String("model", d.cfg.Model),
				logging.Error(err),
			)
			return nil, err
		}
	}
	return d, nil
}

func (d *Diarizer) verifyAccess(ctx context.Context) error {
	if err := preflight.VerifyHubToken(ctx, d.http, d.cfg.HubURL, d.cfg.HFToken); err != nil {
		return loadFailure(d.cfg.Model, err)
	}
	base := strings.TrimRight(d.cfg.HubURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/models/"+d.cfg.Model, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "verify model", d.cfg.Model, err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(d.cfg.HFToken))
	resp, err := d.http.Do(req)
	if err != nil {
		return loadFailure(d.cfg.Model, errors.Join(preflight.ErrHubUnreachable, err))
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return loadFailure(d.cfg.Model, fmt.Errorf("%w: hub answered %d for %s", services.ErrCredential, resp.StatusCode, d.cfg.Model))
	case http.StatusNotFound:
		return services.Wrap(services.ErrConfiguration, stageName, "verify model", "unknown model "+d.cfg.Model, nil)
	default:
		return loadFailure(d.cfg.Model, fmt.Errorf("%w: hub answered %d", preflight.ErrHubUnreachable, resp.StatusCode))
	}
}

// loadFailure lists the usual causes of a model that cannot be loaded.
func loadFailure(model string, err error) error {
	marker := services.ErrConfiguration
	if errors.Is(err, services.ErrCredential) {
		marker = services.ErrCredential
	}
	msg := fmt.Sprintf("cannot load %s; check that 1) the hub token is valid, "+
		"2) the model's user conditions were accepted on the hub, "+
		"3) the token has read access to gated models", model)
	return services.Wrap(marker, stageName, "load model", msg, err)
}

// Name implements stage.Handler.
func (d *Diarizer) Name() string { return stageName }

// Flag implements stage.Handler.
func (d *Diarizer) Flag() progress.Stage { return progress.StageDiarized }

// HealthCheck verifies the runner command is installed.
func (d *Diarizer) HealthCheck(context.Context) stage.Health {
	if r, ok := d.runner.(*ExecRunner); ok {
		if len(r.Command) == 0 {
			return stage.Unhealthy(stageName, "diarization.command is empty")
		}
		if _, err := exec.LookPath(r.Command[0]); err != nil {
			return stage.Unhealthy(stageName, fmt.Sprintf("%s not found", r.Command[0]))
		}
	}
	return stage.Healthy(stageName)
}

// SpeakerStats summarizes one speaker's share of the input.
type SpeakerStats struct {
	Turns         int
	TotalDuration float64
	Percentage    float64
}

// Group orders turns by speaker label, each speaker's turns sorted by start.
// Turns with no extent are dropped.
func Group(turns []Turn) ([]string, map[string][]Turn) {
	bySpeaker := map[string][]Turn{}
	for _, t := range turns {
		if t.End <= t.Start {
			continue
		}
		bySpeaker[t.Speaker] = append(bySpeaker[t.Speaker], t)
	}
	labels := make([]string, 0, len(bySpeaker))
	for label, list := range bySpeaker {
		slices.SortFunc(list, func(a, b Turn) int { return cmp.Compare(a.Start, b.Start) })
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels, bySpeaker
}

// Stats computes per-speaker totals against a file of the given duration.
func Stats(bySpeaker map[string][]Turn, fileDuration float64) map[string]SpeakerStats {
	stats := make(map[string]SpeakerStats, len(bySpeaker))
	for label, list := range bySpeaker {
		var total float64
		for _, t := range list {
			total += t.Duration()
		}
		s := SpeakerStats{Turns: len(list), TotalDuration: total}
		if fileDuration > 0 {
			s.Percentage = total / fileDuration * 100
		}
		stats[label] = s
	}
	return stats
}

// Process implements stage.Handler.
func (d *Diarizer) Process(ctx context.Context, job stage.Job) (stage.Result, error) {
	clip, err := stage.LoadClip(stageName, job.Path)
	if err != nil {
		return stage.Result{}, err
	}
	turns, err := d.runner.Diarize(ctx, job.Path, d.cfg.MinSpeakers, d.cfg.MaxSpeakers)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return stage.Result{}, services.Wrap(services.ErrTimeout, stageName, "run model", filepath.Base(job.Path), err)
		}
		return stage.Result{}, services.Wrap(services.ErrExternalTool, stageName, "run model", filepath.Base(job.Path), err)
	}
	labels, bySpeaker := Group(turns)
	if len(labels) == 0 {
		return stage.Result{}, services.Wrap(services.ErrValidation, stageName, "run model", "no speaker turns detected", nil)
	}

	fileDuration := clip.Duration()
	stats := Stats(bySpeaker, fileDuration)
	stem := stage.Stem(job.Path)
	var result stage.Result
	speakers := map[string]any{}
	statsDoc := map[string]any{}
	outputs := make([]string, 0, len(labels))
	for _, label := range labels {
		list := bySpeaker[label]
		parts := make([][]float64, 0, len(list))
		turnDocs := make([]any, 0, len(list))
		for _, t := range list {
			part := clip.Slice(t.Start, t.End)
			if part.Len() > 0 {
				parts = append(parts, part.Samples)
			}
			turnDocs = append(turnDocs, map[string]any{
				"start":    stage.Round(t.Start, 3),
				"end":      stage.Round(t.End, 3),
				"duration": stage.Round(t.Duration(), 3),
			})
		}
		speakers[label] = turnDocs
		s := stats[label]
		statsDoc[label] = map[string]any{
			"n_segments":     s.Turns,
			"total_duration": stage.Round(s.TotalDuration, 3),
			"percentage":     stage.Round(s.Percentage, 2),
		}
		if len(parts) == 0 {
			continue
		}

		merged := audio.Concat(clip.SampleRate, parts...)
		path := filepath.Join(d.outDir, fmt.Sprintf("%s_speaker_%s.wav", stem, label))
		if err := stage.WriteClip(stageName, path, merged, d.bits); err != nil {
			return stage.Result{}, err
		}
		outputs = append(outputs, path)
		result.Outputs = append(result.Outputs, stage.Artifact{Path: path, SpeakerID: label})
		result.Segments = append(result.Segments, progress.Segment{
			File:      path,
			SpeakerID: label,
			StartTime: 0,
			EndTime:   merged.Duration(),
			Metadata: map[string]any{
				"type":             "speaker_diarization",
				"n_original_turns": len(list),
			},
		})
	}
	if len(result.Outputs) == 0 {
		return stage.Result{}, services.Wrap(services.ErrValidation, stageName, "split speakers", "speaker turns fall outside the audio", nil)
	}

	logging.WithContext(ctx, d.logger).Info("diarization complete",
		logging.Int("n_speakers", len(labels)),
		logging.Float64("duration", fileDuration),
	)
	result.Details = map[string]any{
		"n_speakers":    len(labels),
		"speakers":      speakers,
		"speaker_stats": statsDoc,
		"file_duration": stage.Round(fileDuration, 3),
		"output_files":  outputs,
		"model":         d.cfg.Model,
	}
	return result, nil
}
