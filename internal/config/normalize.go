package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeProgress()
	if err := c.normalizeBlobstore(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeStages()
	return c.normalizeStagePaths()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ProcessedDir) == "" {
		c.Paths.ProcessedDir = defaultProcessedDir
	}
	if c.Paths.ProcessedDir, err = expandUnder(c.Paths.BaseDir, c.Paths.ProcessedDir); err != nil {
		return fmt.Errorf("paths.processed_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandUnder(c.Paths.BaseDir, c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandUnder(c.Paths.BaseDir, c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level

	overrides := c.Logging.LevelOverrides[:0]
	for _, entry := range c.Logging.LevelOverrides {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			overrides = append(overrides, trimmed)
		}
	}
	c.Logging.LevelOverrides = overrides
}

func (c *Config) normalizeProgress() {
	c.Progress.Backend = strings.ToLower(strings.TrimSpace(c.Progress.Backend))
	if c.Progress.Backend == "" {
		c.Progress.Backend = defaultProgressBackend
	}
	if strings.TrimSpace(c.Progress.PostgresDSN) == "" {
		c.Progress.PostgresDSN = strings.TrimSpace(os.Getenv("AUDIOCORPUS_POSTGRES_DSN"))
	}
}

func (c *Config) normalizeBlobstore() error {
	c.Blobstore.Backend = strings.ToLower(strings.TrimSpace(c.Blobstore.Backend))
	if c.Blobstore.Backend == "" {
		c.Blobstore.Backend = defaultBlobBackend
	}
	if strings.TrimSpace(c.Blobstore.AccessKey) == "" {
		c.Blobstore.AccessKey = strings.TrimSpace(os.Getenv("AUDIOCORPUS_S3_ACCESS_KEY"))
	}
	if strings.TrimSpace(c.Blobstore.SecretKey) == "" {
		c.Blobstore.SecretKey = strings.TrimSpace(os.Getenv("AUDIOCORPUS_S3_SECRET_KEY"))
	}
	if strings.TrimSpace(c.Blobstore.RawContainer) == "" {
		c.Blobstore.RawContainer = defaultBlobRawContainer
	}
	if strings.TrimSpace(c.Blobstore.DatasetContainer) == "" {
		c.Blobstore.DatasetContainer = defaultBlobDatasetContainer
	}
	var err error
	if strings.TrimSpace(c.Blobstore.LocalRoot) == "" {
		c.Blobstore.LocalRoot = "blobs"
	}
	if c.Blobstore.LocalRoot, err = expandUnder(c.Paths.BaseDir, c.Blobstore.LocalRoot); err != nil {
		return fmt.Errorf("blobstore.local_root: %w", err)
	}
	if strings.TrimSpace(c.Blobstore.CredentialsFile) != "" {
		if c.Blobstore.CredentialsFile, err = expandUnder(c.Paths.BaseDir, c.Blobstore.CredentialsFile); err != nil {
			return fmt.Errorf("blobstore.credentials_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizePipeline() {
	exts := make([]string, 0, len(c.Pipeline.Extensions))
	seen := make(map[string]struct{}, len(c.Pipeline.Extensions))
	for _, ext := range c.Pipeline.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	c.Pipeline.Extensions = exts
	c.Pipeline.SkipStages = normalizeNames(c.Pipeline.SkipStages)
	c.Pipeline.OnlyStages = normalizeNames(c.Pipeline.OnlyStages)
}

func (c *Config) normalizeStages() {
	c.Normalizer.Method = strings.ToLower(strings.TrimSpace(c.Normalizer.Method))
	c.Silence.Method = strings.ToLower(strings.TrimSpace(c.Silence.Method))
	c.Segmentation.Method = strings.ToLower(strings.TrimSpace(c.Segmentation.Method))
	c.Metadata.Format = strings.ToLower(strings.TrimSpace(c.Metadata.Format))
	c.Metadata.SpeakerScope = strings.ToLower(strings.TrimSpace(c.Metadata.SpeakerScope))
	if strings.TrimSpace(c.Loader.FFmpegBinary) == "" {
		c.Loader.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.Loader.FFprobeBinary) == "" {
		c.Loader.FFprobeBinary = "ffprobe"
	}

	c.Diarization.HFToken = strings.TrimSpace(c.Diarization.HFToken)
	if c.Diarization.HFToken == "" {
		for _, key := range []string{"HUGGINGFACE_TOKEN", "HF_TOKEN"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Diarization.HFToken = strings.TrimSpace(value)
				break
			}
		}
	}
	c.Diarization.HubURL = strings.TrimRight(strings.TrimSpace(c.Diarization.HubURL), "/")
	if c.Diarization.HubURL == "" {
		c.Diarization.HubURL = defaultDiarizationHubURL
	}
	command := c.Diarization.Command[:0]
	for _, arg := range c.Diarization.Command {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			command = append(command, trimmed)
		}
	}
	c.Diarization.Command = command
}

func (c *Config) normalizeStagePaths() error {
	var err error
	if strings.TrimSpace(c.Progress.SQLitePath) == "" {
		c.Progress.SQLitePath = "progress.db"
	}
	if c.Progress.SQLitePath, err = expandUnder(c.Paths.StateDir, c.Progress.SQLitePath); err != nil {
		return fmt.Errorf("progress.sqlite_path: %w", err)
	}
	if c.Silence.SileroModelPath, err = expandUnder(c.Paths.BaseDir, c.Silence.SileroModelPath); err != nil {
		return fmt.Errorf("silence.silero_model_path: %w", err)
	}
	if c.Augmentation.NoiseDir, err = expandUnder(c.Paths.BaseDir, c.Augmentation.NoiseDir); err != nil {
		return fmt.Errorf("augmentation.noise_dir: %w", err)
	}
	if c.Quality.MetadataFile, err = expandUnder(c.Paths.BaseDir, c.Quality.MetadataFile); err != nil {
		return fmt.Errorf("quality.metadata_file: %w", err)
	}
	return nil
}

func normalizeNames(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
