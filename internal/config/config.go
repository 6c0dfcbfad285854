package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Stage output directory names under paths.processed_dir.
const (
	DirUniformized    = "uniformized"
	DirNormalized     = "normalized"
	DirSilenceRemoved = "silence_removed"
	DirDiarized       = "diarized"
	DirSegmented      = "segmented"
	DirCleaned        = "cleaned"
	DirAugmented      = "augmented"
	DirFinal          = "final"
	DirMetadata       = "metadata"
)

// StageDirs lists every directory EnsureDirectories creates under the
// processed root.
var StageDirs = []string{
	DirUniformized,
	DirNormalized,
	DirSilenceRemoved,
	DirDiarized,
	DirSegmented,
	DirCleaned,
	DirAugmented,
	DirFinal,
	DirMetadata,
}

// Paths contains directory configuration. Relative processed/state/log
// directories resolve against BaseDir.
type Paths struct {
	BaseDir      string `toml:"base_dir" json:"base_dir"`
	ProcessedDir string `toml:"processed_dir" json:"processed_dir"`
	StateDir     string `toml:"state_dir" json:"state_dir"`
	LogDir       string `toml:"log_dir" json:"log_dir"`
}

// Logging contains logging configuration.
type Logging struct {
	Format         string   `toml:"format" json:"format"`
	Level          string   `toml:"level" json:"level"`
	LevelOverrides []string `toml:"level_overrides" json:"level_overrides"`
	File           bool     `toml:"file" json:"file"`
	MaxSizeMB      int      `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups     int      `toml:"max_backups" json:"max_backups"`
	MaxAgeDays     int      `toml:"max_age_days" json:"max_age_days"`
	Compress       bool     `toml:"compress" json:"compress"`
}

// Progress selects and configures the progress store backend.
type Progress struct {
	Backend               string `toml:"backend" json:"backend"`
	SQLitePath            string `toml:"sqlite_path" json:"sqlite_path"`
	PostgresDSN           string `toml:"postgres_dsn" json:"postgres_dsn"`
	AllowMemoryFallback   bool   `toml:"allow_memory_fallback" json:"allow_memory_fallback"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds" json:"connect_timeout_seconds"`
}

// Blobstore configures the object store used for raw uploads and dataset
// publishing.
type Blobstore struct {
	Backend             string `toml:"backend" json:"backend"`
	LocalRoot           string `toml:"local_root" json:"local_root"`
	Endpoint            string `toml:"endpoint" json:"endpoint"`
	UseSSL              bool   `toml:"use_ssl" json:"use_ssl"`
	AccessKey           string `toml:"access_key" json:"access_key"`
	SecretKey           string `toml:"secret_key" json:"secret_key"`
	Region              string `toml:"region" json:"region"`
	RawContainer        string `toml:"raw_container" json:"raw_container"`
	DatasetContainer    string `toml:"dataset_container" json:"dataset_container"`
	CredentialsFile     string `toml:"credentials_file" json:"credentials_file"`
	RetryAttempts       int    `toml:"retry_attempts" json:"retry_attempts"`
	RetryBackoffSeconds int    `toml:"retry_backoff_seconds" json:"retry_backoff_seconds"`
}

// Pipeline contains batch driver settings.
type Pipeline struct {
	Workers                   int      `toml:"workers" json:"workers"`
	FanoutWorkers             int      `toml:"fanout_workers" json:"fanout_workers"`
	Extensions                []string `toml:"extensions" json:"extensions"`
	Recursive                 bool     `toml:"recursive" json:"recursive"`
	MaxFiles                  int      `toml:"max_files" json:"max_files"`
	SkipStages                []string `toml:"skip_stages" json:"skip_stages"`
	OnlyStages                []string `toml:"only_stages" json:"only_stages"`
	MaxSystemicFailures       int      `toml:"max_systemic_failures" json:"max_systemic_failures"`
	CredentialCooldownSeconds int      `toml:"credential_cooldown_seconds" json:"credential_cooldown_seconds"`
	UploadRaw                 bool     `toml:"upload_raw" json:"upload_raw"`
}

// Loader configures decoding and uniformization.
type Loader struct {
	TargetSampleRate int    `toml:"target_sample_rate" json:"target_sample_rate"`
	TargetBits       int    `toml:"target_bits" json:"target_bits"`
	FFmpegBinary     string `toml:"ffmpeg_binary" json:"ffmpeg_binary"`
	FFprobeBinary    string `toml:"ffprobe_binary" json:"ffprobe_binary"`
}

// Normalizer configures loudness normalization.
type Normalizer struct {
	Method         string  `toml:"method" json:"method"`
	TargetLoudness float64 `toml:"target_loudness" json:"target_loudness"`
	BlockSize      float64 `toml:"block_size" json:"block_size"`
	PeakCeiling    float64 `toml:"peak_ceiling" json:"peak_ceiling"`
	SilenceFloor   float64 `toml:"silence_floor" json:"silence_floor"`
}

// Silence configures silence removal.
type Silence struct {
	Method             string  `toml:"method" json:"method"`
	VADAggressiveness  int     `toml:"vad_aggressiveness" json:"vad_aggressiveness"`
	FrameMS            int     `toml:"frame_ms" json:"frame_ms"`
	MinSilenceMS       int     `toml:"min_silence_ms" json:"min_silence_ms"`
	SilenceThresholdDB float64 `toml:"silence_threshold_db" json:"silence_threshold_db"`
	KeepSilenceMS      int     `toml:"keep_silence_ms" json:"keep_silence_ms"`
	MinSegmentSeconds  float64 `toml:"min_segment_seconds" json:"min_segment_seconds"`
	SileroModelPath    string  `toml:"silero_model_path" json:"silero_model_path"`
	SileroThreshold    float64 `toml:"silero_threshold" json:"silero_threshold"`
}

// Diarization configures the speaker diarization model runner.
type Diarization struct {
	Enabled        bool     `toml:"enabled" json:"enabled"`
	Model          string   `toml:"model" json:"model"`
	Command        []string `toml:"command" json:"command"`
	MinSpeakers    int      `toml:"min_speakers" json:"min_speakers"`
	MaxSpeakers    int      `toml:"max_speakers" json:"max_speakers"`
	Device         string   `toml:"device" json:"device"`
	HubURL         string   `toml:"hub_url" json:"hub_url"`
	HFToken        string   `toml:"hf_token" json:"hf_token"`
	VerifyToken    bool     `toml:"verify_token" json:"verify_token"`
	TimeoutSeconds int      `toml:"timeout_seconds" json:"timeout_seconds"`
}

// Segmentation configures fine segmentation.
type Segmentation struct {
	Method             string  `toml:"method" json:"method"`
	TargetLength       float64 `toml:"target_length" json:"target_length"`
	MinSegmentLength   float64 `toml:"min_segment_length" json:"min_segment_length"`
	MaxSegmentLength   float64 `toml:"max_segment_length" json:"max_segment_length"`
	SilenceThresholdDB float64 `toml:"silence_threshold_db" json:"silence_threshold_db"`
	MinSilenceMS       int     `toml:"min_silence_ms" json:"min_silence_ms"`
	KeepSilenceMS      int     `toml:"keep_silence_ms" json:"keep_silence_ms"`
}

// Cleaner configures filtering, noise reduction and compression.
type Cleaner struct {
	HighpassCutoff         float64 `toml:"highpass_cutoff" json:"highpass_cutoff"`
	LowpassCutoff          float64 `toml:"lowpass_cutoff" json:"lowpass_cutoff"`
	FilterOrder            int     `toml:"filter_order" json:"filter_order"`
	NoiseReduction         bool    `toml:"noise_reduction" json:"noise_reduction"`
	NoiseStationary        bool    `toml:"noise_stationary" json:"noise_stationary"`
	NoiseReductionStrength float64 `toml:"noise_reduction_strength" json:"noise_reduction_strength"`
	QualityThresholdSNR    float64 `toml:"quality_threshold_snr" json:"quality_threshold_snr"`
	Compression            bool    `toml:"compression" json:"compression"`
	CompressionThresholdDB float64 `toml:"compression_threshold_db" json:"compression_threshold_db"`
	CompressionRatio       float64 `toml:"compression_ratio" json:"compression_ratio"`
}

// Augmentation configures the data augmenter.
type Augmentation struct {
	Enabled                 bool      `toml:"enabled" json:"enabled"`
	NAugmentationsPerSample int       `toml:"n_augmentations_per_sample" json:"n_augmentations_per_sample"`
	ProbTempo               float64   `toml:"prob_tempo" json:"prob_tempo"`
	ProbPitch               float64   `toml:"prob_pitch" json:"prob_pitch"`
	ProbNoise               float64   `toml:"prob_noise" json:"prob_noise"`
	ProbBackground          float64   `toml:"prob_background" json:"prob_background"`
	ProbMasking             float64   `toml:"prob_masking" json:"prob_masking"`
	TempoRange              []float64 `toml:"tempo_range" json:"tempo_range"`
	PitchRange              []int     `toml:"pitch_range" json:"pitch_range"`
	NoiseLevelRange         []float64 `toml:"noise_level_range" json:"noise_level_range"`
	BackgroundSNRRange      []float64 `toml:"background_snr_range" json:"background_snr_range"`
	NoiseDir                string    `toml:"noise_dir" json:"noise_dir"`
	Seed                    int64     `toml:"seed" json:"seed"`
}

// Quality configures the quality gate.
type Quality struct {
	MinSNR           float64 `toml:"min_snr" json:"min_snr"`
	MinDuration      float64 `toml:"min_duration" json:"min_duration"`
	MaxDuration      float64 `toml:"max_duration" json:"max_duration"`
	RandomSampleSize int     `toml:"random_sample_size" json:"random_sample_size"`
	MetadataFile     string  `toml:"metadata_file" json:"metadata_file"`
	Seed             int64   `toml:"seed" json:"seed"`
}

// Metadata configures tabular export and the train/dev/test split.
type Metadata struct {
	TestRatio    float64 `toml:"test_ratio" json:"test_ratio"`
	DevRatio     float64 `toml:"dev_ratio" json:"dev_ratio"`
	Seed         int64   `toml:"seed" json:"seed"`
	Format       string  `toml:"format" json:"format"`
	SpeakerScope string  `toml:"speaker_scope" json:"speaker_scope"`
	ExportedOnly bool    `toml:"exported_only" json:"exported_only"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Addr string `toml:"addr" json:"addr"`
}

// Config encapsulates all configuration values for audiocorpus.
type Config struct {
	Paths        Paths        `toml:"paths" json:"paths"`
	Logging      Logging      `toml:"logging" json:"logging"`
	Progress     Progress     `toml:"progress" json:"progress"`
	Blobstore    Blobstore    `toml:"blobstore" json:"blobstore"`
	Pipeline     Pipeline     `toml:"pipeline" json:"pipeline"`
	Loader       Loader       `toml:"loader" json:"loader"`
	Normalizer   Normalizer   `toml:"normalizer" json:"normalizer"`
	Silence      Silence      `toml:"silence" json:"silence"`
	Diarization  Diarization  `toml:"diarization" json:"diarization"`
	Segmentation Segmentation `toml:"segmentation" json:"segmentation"`
	Cleaner      Cleaner      `toml:"cleaner" json:"cleaner"`
	Augmentation Augmentation `toml:"augmentation" json:"augmentation"`
	Quality      Quality      `toml:"quality" json:"quality"`
	Metadata     Metadata     `toml:"metadata" json:"metadata"`
	Metrics      Metrics      `toml:"metrics" json:"metrics"`
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/audiocorpus/config.toml")
}

// Load reads configuration from disk, applies defaults, normalizes paths, and
// validates the result. It returns the config, the resolved path, and whether
// the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("audiocorpus.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// ProcessedRoot returns the absolute processed output root.
func (c *Config) ProcessedRoot() string {
	return c.Paths.ProcessedDir
}

// OutputDir returns the directory for one of the StageDirs names.
func (c *Config) OutputDir(name string) string {
	return filepath.Join(c.Paths.ProcessedDir, name)
}

// LockPath returns the run lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "audiocorpus.lock")
}

// LogFilePath returns the rotating log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "audiocorpus.log")
}

// EnsureDirectories creates the processed tree, state and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.ProcessedDir, c.Paths.StateDir, c.Paths.LogDir}
	for _, name := range StageDirs {
		dirs = append(dirs, c.OutputDir(name))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Blobstore.Backend == "local" && strings.TrimSpace(c.Blobstore.LocalRoot) != "" {
		if err := os.MkdirAll(c.Blobstore.LocalRoot, 0o755); err != nil {
			return fmt.Errorf("create blob root %q: %w", c.Blobstore.LocalRoot, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// expandUnder expands pathValue, resolving relative values against base.
func expandUnder(base, pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" || strings.HasPrefix(trimmed, "~") || filepath.IsAbs(trimmed) {
		return expandPath(trimmed)
	}
	return expandPath(filepath.Join(base, trimmed))
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleTOML returns the commented starter configuration.
func SampleTOML() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
