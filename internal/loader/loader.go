package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/config"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/media/ffprobe"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

const stageName = "loading"

// Decoder names recorded in the stage details.
const (
	DecoderNative = "native_wav"
	DecoderFFmpeg = "ffmpeg"
)

// Loader implements stage.Handler for the loading stage.
type Loader struct {
	cfg    config.Loader
	outDir string
	logger *slog.Logger
}

// New constructs a loader writing into the uniformized directory.
func New(cfg *config.Config, logger *slog.Logger) *Loader {
	return &Loader{
		cfg:    cfg.Loader,
		outDir: cfg.OutputDir(config.DirUniformized),
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Name implements stage.Handler.
func (l *Loader) Name() string { return stageName }

// Flag implements stage.Handler.
func (l *Loader) Flag() progress.Stage { return progress.StageLoaded }

// HealthCheck reports whether the fallback decoder is installed.
func (l *Loader) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(l.ffmpeg()); err != nil {
		return stage.Unhealthy(stageName, "ffmpeg not found; only PCM WAV inputs can be decoded")
	}
	return stage.Healthy(stageName)
}

// Process implements stage.Handler.
func (l *Loader) Process(ctx context.Context, job stage.Job) (stage.Result, error) {
	logger := logging.WithContext(ctx, l.logger)

	clip, info, decoder, err := l.Decode(ctx, job.Path)
	if err != nil {
		return stage.Result{}, err
	}
	sourceDuration := info.Duration()
	clip = audio.ResampleClip(clip, l.cfg.TargetSampleRate)

	out := stage.OutputPath(l.outDir, job.Path, "")
	if err := stage.WriteClip(stageName, out, clip, l.cfg.TargetBits); err != nil {
		return stage.Result{}, err
	}

	details := map[string]any{
		"output_path":          out,
		"decoder":              decoder,
		"duration":             stage.Round(clip.Duration(), 3),
		"source_duration":      stage.Round(sourceDuration, 3),
		"channels":             info.Channels,
		"original_sample_rate": info.SampleRate,
		"sample_rate":          clip.SampleRate,
		"bit_depth":            l.cfg.TargetBits,
	}
	if probe, err := ffprobe.Inspect(ctx, l.cfg.FFprobeBinary, job.Path); err == nil {
		details["format"] = probe.Summary()
	} else {
		logger.Debug("ffprobe unavailable for source", logging.Error(err))
	}

	logger.Info("audio uniformized",
		logging.String("decoder", decoder),
		logging.Float64("duration", clip.Duration()),
		logging.Int("channels", info.Channels),
		logging.Int("original_sample_rate", info.SampleRate),
	)
	return stage.Result{
		Outputs: []stage.Artifact{{Path: out, SpeakerID: job.SpeakerID}},
		Details: details,
	}, nil
}

// Decode reads path as mono audio at its source rate, reporting which
// decoder succeeded.
func (l *Loader) Decode(ctx context.Context, path string) (*audio.Clip, audio.Info, string, error) {
	clip, info, nativeErr := audio.ReadWAV(path)
	if nativeErr == nil {
		return clip, info, DecoderNative, nil
	}
	if errors.Is(nativeErr, os.ErrNotExist) {
		return nil, audio.Info{}, "", services.Wrap(services.ErrNotFound, stageName, "open source", path, nativeErr)
	}
	l.logger.Debug("native decoder rejected input; trying ffmpeg",
		logging.String(logging.FieldFile, filepath.Base(path)),
		logging.Error(nativeErr),
	)

	clip, info, ffErr := l.decodeFFmpeg(ctx, path)
	if ffErr != nil {
		return nil, audio.Info{}, "", services.Wrap(services.ErrDecode, stageName, "decode",
			filepath.Base(path), errors.Join(nativeErr, ffErr))
	}
	return clip, info, DecoderFFmpeg, nil
}

func (l *Loader) decodeFFmpeg(ctx context.Context, path string) (*audio.Clip, audio.Info, error) {
	tmp, err := os.CreateTemp("", "audiocorpus-decode-*.wav")
	if err != nil {
		return nil, audio.Info{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y", "-i", path, "-vn", "-acodec", "pcm_s16le", tmpPath}
	cmd := exec.CommandContext(ctx, l.ffmpeg(), args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, audio.Info{}, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return audio.ReadWAV(tmpPath)
}

func (l *Loader) ffmpeg() string {
	if bin := strings.TrimSpace(l.cfg.FFmpegBinary); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// Describe collects the original metadata stored when a record is created:
// path, size and whatever ffprobe or the WAV header reveal.
func (l *Loader) Describe(ctx context.Context, path string) map[string]any {
	meta := map[string]any{"path": path, "extension": strings.ToLower(filepath.Ext(path))}
	if info, err := os.Stat(path); err == nil {
		meta["file_size"] = info.Size()
	}
	if probe, err := ffprobe.Inspect(ctx, l.cfg.FFprobeBinary, path); err == nil {
		for k, v := range probe.Summary() {
			meta[k] = v
		}
		return meta
	}
	if info, err := audio.ProbeWAV(path); err == nil {
		meta["duration"] = info.Duration()
		meta["sample_rate"] = info.SampleRate
		meta["channels"] = info.Channels
		meta["bit_depth"] = info.BitDepth
	}
	return meta
}
