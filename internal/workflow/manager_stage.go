package workflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"audiocorpus/internal/blobstore"
	"audiocorpus/internal/config"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/provenance"
	"audiocorpus/internal/quality"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
	"audiocorpus/internal/stageexec"
)

// FileResult summarizes one source file's stage chain.
type FileResult struct {
	File     string
	RecordID string
	// Failures maps stage names to the first failure seen in that stage.
	Failures map[string]string
	Timings  map[string]time.Duration
	// Outputs is the working set left after the last stage.
	Outputs  []string
	Exported []string
	Quality  quality.Report
	// Err is set when the chain could not start or was interrupted.
	Err error
}

// Succeeded reports whether every stage succeeded for every artifact.
func (r FileResult) Succeeded() bool {
	return r.Err == nil && len(r.Failures) == 0
}

// ProcessFile runs the registered stage chain for one source file. Stage
// failures are recorded in the result and never abort the chain.
func (m *Manager) ProcessFile(ctx context.Context, path string) FileResult {
	res := FileResult{
		File:     filepath.Base(path),
		Failures: map[string]string{},
		Timings:  map[string]time.Duration{},
	}
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithFile(ctx, res.File)
	logger := logging.WithContext(ctx, m.logger)

	if err := m.breaker.Allow(); err != nil {
		res.Err = err
		return res
	}
	if err := m.uploadRaw(ctx, path, logger); err != nil {
		res.Failures["upload"] = err.Error()
	}

	id, err := m.store.CreateOrGet(ctx, path, m.describe(ctx, path))
	if err != nil {
		res.Err = services.Wrap(services.ErrTransient, "workflow", "create record", res.File, err)
		m.breaker.Record(err)
		logging.ErrorWithContext(logger, "failed to create progress record", "record_create_failed",
			append(logging.FailureAttrs(err),
				logging.String(logging.FieldImpact, "file skipped"),
			)...,
		)
		return res
	}
	res.RecordID = id
	ctx = services.WithRecordID(ctx, id)
	logger = logging.WithContext(ctx, m.logger)
	m.index.Register(path, provenance.Owner{RecordID: id, SourceFile: res.File})

	working := []stage.Artifact{{Path: path}}
	for _, stg := range m.stages {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		next, err := m.runStage(ctx, stg, working, &res)
		if err != nil {
			res.Err = err
			break
		}
		if !stg.branch {
			working = next
		}
	}
	for _, a := range working {
		res.Outputs = append(res.Outputs, a.Path)
	}

	m.metrics.CountFile(ctx, res.Succeeded())
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "file_complete"),
		logging.Int("outputs", len(res.Outputs)),
		logging.Int("n_failed", len(res.Failures)),
		logging.Int("exported", len(res.Exported)),
	}
	if res.Succeeded() {
		logger.Info("file processed", logging.Args(attrs...)...)
	} else {
		logger.Warn("file processed with failures", logging.Args(append(attrs,
			logging.Any("failed_stages", failedStages(res.Failures)),
		)...)...)
	}
	return res
}

func (m *Manager) runStage(ctx context.Context, stg pipelineStage, working []stage.Artifact, res *FileResult) ([]stage.Artifact, error) {
	jobs := make([]stage.Job, len(working))
	for i, a := range working {
		jobs[i] = stage.Job{Path: a.Path, SpeakerID: a.SpeakerID}
	}
	started := time.Now()
	outcomes, err := stageexec.RunSet(ctx, stageexec.Options{
		Handler:     stg.handler,
		Store:       m.store,
		Index:       m.index,
		Logger:      m.logger,
		Metrics:     m.metrics,
		Concurrency: m.cfg.Pipeline.FanoutWorkers,
	}, jobs)
	elapsed := time.Since(started)
	res.Timings[stg.name] += elapsed
	m.addTiming(stg.name, elapsed)
	if err != nil {
		return nil, err
	}

	var next []stage.Artifact
	for _, o := range outcomes {
		m.breaker.Record(o.Err)
		if o.Err != nil {
			if _, seen := res.Failures[stg.name]; !seen {
				res.Failures[stg.name] = o.Err.Error()
			}
		}
		if v, ok := quality.VerdictOf(o.Result); ok {
			res.Quality = res.Quality.Observe(v)
		}
		res.Exported = append(res.Exported, o.Result.Exported...)
		next = append(next, o.Next()...)
	}
	return next, nil
}

func (m *Manager) uploadRaw(ctx context.Context, path string, logger *slog.Logger) error {
	if !m.cfg.Pipeline.UploadRaw || m.uploader == nil {
		return nil
	}
	uploaded, err := m.uploader.UploadFile(ctx, m.cfg.Blobstore.RawContainer, filepath.Base(path), path, blobstore.SkipExisting)
	m.breaker.Record(err)
	if err != nil {
		logging.WarnWithContext(logger, "raw upload failed", "upload_failed",
			append(logging.FailureAttrs(err),
				logging.String(logging.FieldImpact, "processing continues without a raw copy"),
			)...,
		)
		return err
	}
	logger.Debug("raw upload", logging.Bool("uploaded", uploaded))
	return nil
}

func failedStages(failures map[string]string) []string {
	names := make([]string, 0, len(failures))
	for _, name := range append([]string{"upload"}, config.StageNames...) {
		if _, ok := failures[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
