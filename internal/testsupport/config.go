package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"audiocorpus/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The progress store is in memory, the blob store is local, diarization is
// disabled and the processed tree exists.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BaseDir = base
	cfgVal.Paths.ProcessedDir = filepath.Join(base, "processed")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Logging.File = false
	cfgVal.Progress.Backend = "memory"
	cfgVal.Progress.SQLitePath = filepath.Join(base, "state", "progress.db")
	cfgVal.Blobstore.Backend = "local"
	cfgVal.Blobstore.LocalRoot = filepath.Join(base, "blobs")
	cfgVal.Blobstore.RetryBackoffSeconds = 0
	cfgVal.Pipeline.CredentialCooldownSeconds = 0
	cfgVal.Diarization.Enabled = false
	cfgVal.Diarization.VerifyToken = false
	cfgVal.Quality.MetadataFile = filepath.Join(base, "processed", config.DirMetadata, "metadata_all.csv")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return builder.cfg
}

// WithSQLite switches the progress store to a SQLite file in the state dir.
func WithSQLite() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Progress.Backend = "sqlite"
	}
}

// WithoutAugmentation disables the augmentation stage.
func WithoutAugmentation() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Augmentation.Enabled = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.BaseDir
}
