package main

import (
	"context"
	"log/slog"
	"time"

	"audiocorpus/internal/augment"
	"audiocorpus/internal/blobstore"
	"audiocorpus/internal/clean"
	"audiocorpus/internal/config"
	"audiocorpus/internal/diarize"
	"audiocorpus/internal/loader"
	"audiocorpus/internal/normalize"
	"audiocorpus/internal/observe"
	"audiocorpus/internal/quality"
	"audiocorpus/internal/resilience"
	"audiocorpus/internal/segment"
	"audiocorpus/internal/silence"
	"audiocorpus/internal/workflow"
)

func newBreaker(cfg *config.Config, logger *slog.Logger) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "pipeline",
		MaxFailures: cfg.Pipeline.MaxSystemicFailures,
		Logger:      logger,
	})
}

func newUploader(cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics, breaker *resilience.Breaker) (*blobstore.Uploader, error) {
	store, err := blobstore.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &blobstore.Uploader{
		Store: store,
		Retry: resilience.RetryPolicy{
			Attempts: cfg.Blobstore.RetryAttempts,
			Backoff:  time.Duration(cfg.Blobstore.RetryBackoffSeconds) * time.Second,
			Logger:   logger,
		},
		Breaker:         breaker,
		Metrics:         metrics,
		Logger:          logger,
		CredentialsFile: cfg.Blobstore.CredentialsFile,
		Cooldown:        time.Duration(cfg.Pipeline.CredentialCooldownSeconds) * time.Second,
	}, nil
}

// buildManager wires every enabled stage into a workflow manager. A
// diarization model that cannot be loaded aborts construction.
func buildManager(ctx context.Context, s *session, metrics *observe.Metrics) (*workflow.Manager, error) {
	cfg, logger := s.cfg, s.logger
	breaker := newBreaker(cfg, logger)
	ld := loader.New(cfg, logger)

	opts := []workflow.ManagerOption{
		workflow.WithMetrics(metrics),
		workflow.WithBreaker(breaker),
		workflow.WithDescriber(ld.Describe),
	}
	if cfg.Pipeline.UploadRaw {
		uploader, err := newUploader(cfg, logger, metrics, breaker)
		if err != nil {
			return nil, err
		}
		opts = append(opts, workflow.WithUploader(uploader))
	}
	mgr := workflow.NewManager(cfg, s.store, logger, opts...)

	set := workflow.StageSet{
		Loader:         ld,
		Normalizer:     normalize.New(cfg, logger),
		SilenceRemover: silence.New(cfg, logger),
		Segmenter:      segment.New(cfg, logger),
		Cleaner:        clean.New(cfg, logger),
		QualityChecker: quality.New(cfg, logger, quality.WithMetrics(metrics)),
	}
	if cfg.Diarization.Enabled && mgr.Enabled(workflow.StageDiarization) {
		d, err := diarize.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		set.Diarizer = d
	}
	if cfg.Augmentation.Enabled {
		set.Augmenter = augment.New(cfg, logger)
	}
	mgr.ConfigureStages(set)
	return mgr, nil
}
