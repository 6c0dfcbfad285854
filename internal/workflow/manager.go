package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"audiocorpus/internal/blobstore"
	"audiocorpus/internal/config"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/metadata"
	"audiocorpus/internal/observe"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/provenance"
	"audiocorpus/internal/resilience"
)

// Describer captures original metadata for a new record.
type Describer func(ctx context.Context, path string) map[string]any

// Manager coordinates per-file stage chains and directory batches.
type Manager struct {
	cfg      *config.Config
	store    progress.Store
	logger   *slog.Logger
	metrics  *observe.Metrics
	breaker  *resilience.Breaker
	index    *provenance.Index
	exporter *metadata.Manager
	uploader *blobstore.Uploader
	describe Describer

	stages []pipelineStage

	mu      sync.Mutex
	timings map[string]time.Duration
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMetrics records stage and file metrics on m.
func WithMetrics(m *observe.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithUploader pushes raw source files to the raw container before loading
// when pipeline.upload_raw is enabled.
func WithUploader(u *blobstore.Uploader) ManagerOption {
	return func(mgr *Manager) { mgr.uploader = u }
}

// WithDescriber sets how original metadata is captured for new records.
func WithDescriber(d Describer) ManagerOption {
	return func(mgr *Manager) { mgr.describe = d }
}

// WithBreaker shares a circuit breaker with other components.
func WithBreaker(b *resilience.Breaker) ManagerOption {
	return func(mgr *Manager) { mgr.breaker = b }
}

// NewManager constructs a workflow manager. Stages are registered with
// ConfigureStages.
func NewManager(cfg *config.Config, store progress.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		index:    provenance.NewIndex(),
		exporter: metadata.New(cfg, logger),
		timings:  map[string]time.Duration{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.breaker == nil {
		m.breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Name:        "pipeline",
			MaxFailures: cfg.Pipeline.MaxSystemicFailures,
			Logger:      logger,
		})
	}
	if m.describe == nil {
		m.describe = func(_ context.Context, path string) map[string]any {
			return map[string]any{"path": path}
		}
	}
	return m
}

// Timings returns accumulated wall-clock time per stage.
func (m *Manager) Timings() map[string]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Duration, len(m.timings))
	for k, v := range m.timings {
		out[k] = v
	}
	return out
}

func (m *Manager) addTiming(stage string, d time.Duration) {
	m.mu.Lock()
	m.timings[stage] += d
	m.mu.Unlock()
}
