package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// StageNames lists pipeline stage names in execution order. Skip and only
// lists refer to these names.
var StageNames = []string{
	"loading",
	"normalization",
	"silence_removal",
	"diarization",
	"segmentation",
	"cleaning",
	"metadata",
	"augmentation",
	"quality_check",
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateLogging,
		c.validateProgress,
		c.validateBlobstore,
		c.validatePipeline,
		c.validateLoader,
		c.validateNormalizer,
		c.validateSilence,
		c.validateDiarization,
		c.validateSegmentation,
		c.validateCleaner,
		c.validateAugmentation,
		c.validateQuality,
		c.validateMetadata,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	for _, entry := range c.Logging.LevelOverrides {
		component, _, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(component) == "" {
			return fmt.Errorf("logging.level_overrides entries must look like component=level, got %q", entry)
		}
	}
	if c.Logging.File {
		if err := ensurePositiveMap(map[string]int{
			"logging.max_size_mb": c.Logging.MaxSizeMB,
		}); err != nil {
			return err
		}
		if c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
			return errors.New("logging.max_backups and logging.max_age_days must be >= 0")
		}
	}
	return nil
}

func (c *Config) validateProgress() error {
	switch c.Progress.Backend {
	case "sqlite":
		if strings.TrimSpace(c.Progress.SQLitePath) == "" {
			return errors.New("progress.sqlite_path must be set when progress.backend is sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.Progress.PostgresDSN) == "" {
			return errors.New("progress.postgres_dsn must be set when progress.backend is postgres (or set AUDIOCORPUS_POSTGRES_DSN)")
		}
	case "memory":
	default:
		return fmt.Errorf("progress.backend must be sqlite, postgres or memory, got %q", c.Progress.Backend)
	}
	if c.Progress.ConnectTimeoutSeconds <= 0 {
		return errors.New("progress.connect_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateBlobstore() error {
	switch c.Blobstore.Backend {
	case "local":
	case "s3":
		if strings.TrimSpace(c.Blobstore.Endpoint) == "" {
			return errors.New("blobstore.endpoint must be set when blobstore.backend is s3")
		}
	default:
		return fmt.Errorf("blobstore.backend must be local or s3, got %q", c.Blobstore.Backend)
	}
	if c.Blobstore.RetryAttempts < 1 {
		return errors.New("blobstore.retry_attempts must be >= 1")
	}
	if c.Blobstore.RetryBackoffSeconds < 0 {
		return errors.New("blobstore.retry_backoff_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":               c.Pipeline.Workers,
		"pipeline.fanout_workers":        c.Pipeline.FanoutWorkers,
		"pipeline.max_systemic_failures": c.Pipeline.MaxSystemicFailures,
	}); err != nil {
		return err
	}
	if len(c.Pipeline.Extensions) == 0 {
		return errors.New("pipeline.extensions must include at least one extension")
	}
	if c.Pipeline.MaxFiles < 0 {
		return errors.New("pipeline.max_files must be >= 0")
	}
	if c.Pipeline.CredentialCooldownSeconds < 0 {
		return errors.New("pipeline.credential_cooldown_seconds must be >= 0")
	}
	for _, name := range append(slices.Clone(c.Pipeline.SkipStages), c.Pipeline.OnlyStages...) {
		if !slices.Contains(StageNames, name) {
			return fmt.Errorf("pipeline stage %q is unknown (valid: %s)", name, strings.Join(StageNames, ", "))
		}
	}
	if len(c.Pipeline.SkipStages) > 0 && len(c.Pipeline.OnlyStages) > 0 {
		return errors.New("pipeline.skip_stages and pipeline.only_stages are mutually exclusive")
	}
	return nil
}

func (c *Config) validateLoader() error {
	if c.Loader.TargetSampleRate <= 0 {
		return errors.New("loader.target_sample_rate must be positive")
	}
	switch c.Loader.TargetBits {
	case 16, 24, 32:
	default:
		return fmt.Errorf("loader.target_bits must be 16, 24 or 32, got %d", c.Loader.TargetBits)
	}
	return nil
}

func (c *Config) validateNormalizer() error {
	switch c.Normalizer.Method {
	case "ebu", "rms":
	default:
		return fmt.Errorf("normalizer.method must be ebu or rms, got %q", c.Normalizer.Method)
	}
	if c.Normalizer.BlockSize <= 0 {
		return errors.New("normalizer.block_size must be positive")
	}
	if c.Normalizer.PeakCeiling <= 0 || c.Normalizer.PeakCeiling > 1 {
		return errors.New("normalizer.peak_ceiling must be between 0 and 1")
	}
	if c.Normalizer.TargetLoudness >= 0 {
		return errors.New("normalizer.target_loudness must be negative")
	}
	return nil
}

func (c *Config) validateSilence() error {
	switch c.Silence.Method {
	case "webrtcvad", "energy":
	case "silero":
		if strings.TrimSpace(c.Silence.SileroModelPath) == "" {
			return errors.New("silence.silero_model_path must be set when silence.method is silero")
		}
	default:
		return fmt.Errorf("silence.method must be webrtcvad, silero or energy, got %q", c.Silence.Method)
	}
	if c.Silence.VADAggressiveness < 0 || c.Silence.VADAggressiveness > 3 {
		return errors.New("silence.vad_aggressiveness must be between 0 and 3")
	}
	switch c.Silence.FrameMS {
	case 10, 20, 30:
	default:
		return errors.New("silence.frame_ms must be 10, 20 or 30")
	}
	if err := ensurePositiveMap(map[string]int{
		"silence.min_silence_ms": c.Silence.MinSilenceMS,
	}); err != nil {
		return err
	}
	if c.Silence.KeepSilenceMS < 0 {
		return errors.New("silence.keep_silence_ms must be >= 0")
	}
	if c.Silence.MinSegmentSeconds < 0 {
		return errors.New("silence.min_segment_seconds must be >= 0")
	}
	if c.Silence.SileroThreshold <= 0 || c.Silence.SileroThreshold >= 1 {
		return errors.New("silence.silero_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateDiarization() error {
	if !c.Diarization.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Diarization.Model) == "" {
		return errors.New("diarization.model must be set")
	}
	if len(c.Diarization.Command) == 0 {
		return errors.New("diarization.command must name an executable")
	}
	if c.Diarization.MinSpeakers < 1 {
		return errors.New("diarization.min_speakers must be >= 1")
	}
	if c.Diarization.MaxSpeakers < c.Diarization.MinSpeakers {
		return errors.New("diarization.max_speakers must be >= diarization.min_speakers")
	}
	if c.Diarization.TimeoutSeconds <= 0 {
		return errors.New("diarization.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSegmentation() error {
	s := c.Segmentation
	switch s.Method {
	case "adaptive", "fixed", "silence":
	default:
		return fmt.Errorf("segmentation.method must be adaptive, fixed or silence, got %q", s.Method)
	}
	if s.MinSegmentLength <= 0 {
		return errors.New("segmentation.min_segment_length must be positive")
	}
	if s.TargetLength < s.MinSegmentLength {
		return errors.New("segmentation.target_length must be >= segmentation.min_segment_length")
	}
	if s.MaxSegmentLength < s.TargetLength {
		return errors.New("segmentation.max_segment_length must be >= segmentation.target_length")
	}
	if s.MinSilenceMS <= 0 {
		return errors.New("segmentation.min_silence_ms must be positive")
	}
	if s.KeepSilenceMS < 0 {
		return errors.New("segmentation.keep_silence_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateCleaner() error {
	cl := c.Cleaner
	if cl.HighpassCutoff < 0 || cl.LowpassCutoff < 0 {
		return errors.New("cleaner.highpass_cutoff and cleaner.lowpass_cutoff must be >= 0")
	}
	if cl.HighpassCutoff > 0 && cl.LowpassCutoff > 0 && cl.HighpassCutoff >= cl.LowpassCutoff {
		return errors.New("cleaner.highpass_cutoff must be below cleaner.lowpass_cutoff")
	}
	if cl.FilterOrder < 1 || cl.FilterOrder > 8 {
		return errors.New("cleaner.filter_order must be between 1 and 8")
	}
	if cl.NoiseReductionStrength < 0 || cl.NoiseReductionStrength > 1 {
		return errors.New("cleaner.noise_reduction_strength must be between 0 and 1")
	}
	if cl.Compression && cl.CompressionRatio < 1 {
		return errors.New("cleaner.compression_ratio must be >= 1")
	}
	return nil
}

func (c *Config) validateAugmentation() error {
	a := c.Augmentation
	if a.NAugmentationsPerSample < 0 {
		return errors.New("augmentation.n_augmentations_per_sample must be >= 0")
	}
	probs := map[string]float64{
		"augmentation.prob_tempo":      a.ProbTempo,
		"augmentation.prob_pitch":      a.ProbPitch,
		"augmentation.prob_noise":      a.ProbNoise,
		"augmentation.prob_background": a.ProbBackground,
		"augmentation.prob_masking":    a.ProbMasking,
	}
	for key, value := range probs {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	ranges := map[string][]float64{
		"augmentation.tempo_range":          a.TempoRange,
		"augmentation.noise_level_range":    a.NoiseLevelRange,
		"augmentation.background_snr_range": a.BackgroundSNRRange,
	}
	for key, value := range ranges {
		if len(value) != 2 || value[0] > value[1] {
			return fmt.Errorf("%s must be [low, high] with low <= high", key)
		}
	}
	if len(a.PitchRange) != 2 || a.PitchRange[0] > a.PitchRange[1] {
		return errors.New("augmentation.pitch_range must be [low, high] with low <= high")
	}
	if a.TempoRange[0] <= 0 {
		return errors.New("augmentation.tempo_range must be positive")
	}
	return nil
}

func (c *Config) validateQuality() error {
	q := c.Quality
	if q.MinDuration < 0 {
		return errors.New("quality.min_duration must be >= 0")
	}
	if q.MaxDuration <= q.MinDuration {
		return errors.New("quality.max_duration must be greater than quality.min_duration")
	}
	if q.RandomSampleSize < 0 {
		return errors.New("quality.random_sample_size must be >= 0")
	}
	return nil
}

func (c *Config) validateMetadata() error {
	m := c.Metadata
	if m.TestRatio < 0 || m.DevRatio < 0 || m.TestRatio+m.DevRatio >= 1 {
		return errors.New("metadata.test_ratio and metadata.dev_ratio must be >= 0 and sum to less than 1")
	}
	switch m.Format {
	case "csv", "parquet":
	default:
		return fmt.Errorf("metadata.format must be csv or parquet, got %q", m.Format)
	}
	switch m.SpeakerScope {
	case "file", "global":
	default:
		return fmt.Errorf("metadata.speaker_scope must be file or global, got %q", m.SpeakerScope)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
