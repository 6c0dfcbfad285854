package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"audiocorpus/internal/config"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/metadata"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/quality"
	"audiocorpus/internal/resilience"
	"audiocorpus/internal/services"
)

// RunOptions customizes a batch.
type RunOptions struct {
	// OnStart is called once with the number of files in the batch.
	OnStart func(total int)
	// OnFileDone is called after each file with the number of files done.
	OnFileDone func(result FileResult, done, total int)
}

// Summary describes a finished batch.
type Summary struct {
	Files     int
	Succeeded int
	Failed    int
	// Halted is set when the circuit breaker stopped the batch early.
	Halted        bool
	Skipped       int
	StageFailures map[string]int
	Timings       map[string]time.Duration
	Quality       quality.Report
	Metadata      *metadata.Result
	Results       []FileResult
	Elapsed       time.Duration
	ReportPath    string
}

// Run processes every audio file under root, then performs the deferred
// metadata and quality report pass. A missing root is a setup error; file
// failures are reported in the summary.
func (m *Manager) Run(ctx context.Context, root string, opts RunOptions) (Summary, error) {
	files, err := Discover(root, m.cfg.Pipeline.Extensions, m.cfg.Pipeline.Recursive, m.cfg.Pipeline.MaxFiles)
	if err != nil {
		return Summary{}, err
	}
	m.logger.Info("batch discovered",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.String("input_dir", root),
		logging.Int("files_total", len(files)),
	)
	return m.RunFiles(ctx, files, opts)
}

// Retry re-runs the pipeline for records whose stage flag is false, using
// the source path captured at ingestion.
func (m *Manager) Retry(ctx context.Context, st progress.Stage, opts RunOptions) (Summary, error) {
	records, err := m.store.FindByStage(ctx, st, false)
	if err != nil {
		return Summary{}, services.Wrap(services.ErrTransient, "workflow", "find failed records", string(st), err)
	}
	var files []string
	for _, rec := range records {
		path := rec.SourcePath()
		if path == "" {
			m.logger.Warn("record has no source path; cannot retry",
				logging.String(logging.FieldEventType, "retry_skipped"),
				logging.String(logging.FieldFile, rec.File),
			)
			continue
		}
		if _, err := os.Stat(path); err != nil {
			m.logger.Warn("source file missing; cannot retry",
				logging.String(logging.FieldEventType, "retry_skipped"),
				logging.String(logging.FieldFile, rec.File),
				logging.Error(err),
			)
			continue
		}
		files = append(files, path)
	}
	return m.RunFiles(ctx, files, opts)
}

// RunFiles processes files on a bounded worker pool. Each file is isolated:
// a panic or failure in one never stops the others. Once the breaker opens
// remaining files are skipped and the batch is reported as halted.
func (m *Manager) RunFiles(ctx context.Context, files []string, opts RunOptions) (Summary, error) {
	started := time.Now()
	if m.uploader != nil && m.cfg.Pipeline.UploadRaw {
		if err := m.uploader.CheckCredentials(ctx); err != nil {
			return Summary{}, err
		}
	}

	if opts.OnStart != nil {
		opts.OnStart(len(files))
	}
	results := make([]FileResult, len(files))
	var (
		doneMu sync.Mutex
		done   int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(1, m.cfg.Pipeline.Workers))
	for i, path := range files {
		group.Go(func() error {
			results[i] = m.processIsolated(groupCtx, path)
			doneMu.Lock()
			done++
			n := done
			doneMu.Unlock()
			if opts.OnFileDone != nil {
				opts.OnFileDone(results[i], n, len(files))
			}
			return nil
		})
	}
	_ = group.Wait()

	summary := m.summarize(results)
	summary.Timings = m.Timings()
	if err := ctx.Err(); err != nil {
		summary.Elapsed = time.Since(started)
		return summary, err
	}

	m.deferredPass(ctx, &summary)
	summary.Elapsed = time.Since(started)
	if path, err := m.WritePipelineReport(summary); err != nil {
		m.logger.Warn("failed to write pipeline report",
			logging.String(logging.FieldEventType, "report_failed"),
			logging.Error(err),
		)
	} else {
		summary.ReportPath = path
	}

	m.logger.Info("batch completed",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("files_total", summary.Files),
		logging.Int("files_done", summary.Succeeded),
		logging.Int("n_failed", summary.Failed),
		logging.Duration("stage_duration", summary.Elapsed),
	)
	if summary.Halted {
		return summary, fmt.Errorf("batch halted after repeated systemic failures: %w", m.breakerErr())
	}
	return summary, nil
}

func (m *Manager) breakerErr() error {
	if err := m.breaker.Allow(); err != nil {
		return err
	}
	return resilience.ErrCircuitOpen
}

func (m *Manager) processIsolated(ctx context.Context, path string) (res FileResult) {
	defer func() {
		if r := recover(); r != nil {
			res = FileResult{
				File:     filepath.Base(path),
				Failures: map[string]string{},
				Err:      services.Wrap(services.ErrValidation, "workflow", "process file", fmt.Sprintf("panic: %v", r), nil),
			}
			m.logger.Error("file processing panicked",
				logging.String(logging.FieldEventType, "file_panic"),
				logging.String(logging.FieldFile, filepath.Base(path)),
				logging.String("stack", string(debug.Stack())),
			)
		}
	}()
	return m.ProcessFile(ctx, path)
}

func (m *Manager) summarize(results []FileResult) Summary {
	s := Summary{
		Files:         len(results),
		StageFailures: map[string]int{},
		Results:       results,
	}
	for _, r := range results {
		switch {
		case errors.Is(r.Err, resilience.ErrCircuitOpen):
			s.Halted = true
			s.Skipped++
		case r.Succeeded():
			s.Succeeded++
		default:
			s.Failed++
		}
		for name := range r.Failures {
			s.StageFailures[name]++
		}
		s.Quality = quality.Merge(s.Quality, r.Quality)
	}
	return s
}

// deferredPass runs once per batch over the whole corpus.
func (m *Manager) deferredPass(ctx context.Context, s *Summary) {
	if m.Enabled(StageMetadata) {
		started := time.Now()
		res, err := m.exporter.Export(ctx, m.store)
		m.addTiming(StageMetadata, time.Since(started))
		if err != nil {
			s.StageFailures[StageMetadata]++
			logging.ErrorWithContext(m.logger, "metadata export failed", "metadata_failed",
				logging.FailureAttrs(err)...,
			)
		} else {
			s.Metadata = &res
		}
	}
	if m.Enabled(StageQualityCheck) && s.Quality.Total > 0 {
		finalDir := m.cfg.OutputDir(config.DirFinal)
		if err := quality.WriteReport(filepath.Join(finalDir, "quality_report.txt"), s.Quality); err != nil {
			m.logger.Warn("failed to write quality report", logging.Error(err))
		}
		sample := quality.Sample(exportedClips(finalDir), m.cfg.Quality.RandomSampleSize, m.cfg.Quality.Seed)
		if err := quality.WriteSampleReport(filepath.Join(finalDir, "random_sample_report.txt"), sample); err != nil {
			m.logger.Warn("failed to write sample report", logging.Error(err))
		}
	}
	s.Timings = m.Timings()
}

func exportedClips(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)
	return files
}
