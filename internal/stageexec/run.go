package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"audiocorpus/internal/logging"
	"audiocorpus/internal/observe"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/provenance"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
)

// Options controls how a stage runs over a working set.
type Options struct {
	Handler     stage.Handler
	Store       progress.Store
	Index       *provenance.Index
	Logger      *slog.Logger
	Metrics     *observe.Metrics
	Concurrency int
}

// Outcome is the result of one job.
type Outcome struct {
	Job     stage.Job
	Result  stage.Result
	Err     error
	Elapsed time.Duration
}

// Next returns the artifacts the following stage should receive: the job's
// outputs on success, or its unchanged input when the stage failed.
func (o Outcome) Next() []stage.Artifact {
	if o.Err != nil {
		return []stage.Artifact{o.Job.Input()}
	}
	return o.Result.Outputs
}

// RunSet runs the handler over jobs with bounded parallelism. Owners are
// resolved first; a job whose owner cannot be found fails with
// progress.ErrOwningRecordNotFound and is never processed. Successful jobs
// have their segments and augmentations appended and their outputs
// registered in the provenance index. Each owning record then receives
// exactly one stage update. Job failures are reported in the outcomes; the
// returned error is reserved for invalid options and cancellation.
func RunSet(ctx context.Context, opts Options, jobs []stage.Job) ([]Outcome, error) {
	if opts.Handler == nil {
		return nil, errors.New("stage handler is required")
	}
	if opts.Store == nil {
		return nil, errors.New("progress store is required")
	}
	name := opts.Handler.Name()
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, logging.NewComponentLogger(opts.Logger, "stage"))

	outcomes := make([]Outcome, len(jobs))
	for i, job := range jobs {
		outcomes[i].Job = job
	}
	if len(jobs) == 0 {
		return outcomes, nil
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("n_items", len(jobs)),
	)
	started := time.Now()

	for i := range outcomes {
		if err := resolveOwner(stageCtx, opts, &outcomes[i].Job, logger); err != nil {
			outcomes[i].Err = err
		}
	}

	group, groupCtx := errgroup.WithContext(stageCtx)
	group.SetLimit(max(1, opts.Concurrency))
	for i := range outcomes {
		if outcomes[i].Err != nil {
			continue
		}
		group.Go(func() error {
			outcomes[i] = runJob(groupCtx, opts, outcomes[i].Job, logger)
			return nil
		})
	}
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}

	for i := range outcomes {
		if outcomes[i].Err == nil {
			outcomes[i].Err = persistArtifacts(stageCtx, opts, outcomes[i])
		}
	}
	recordStageUpdates(stageCtx, opts, outcomes, logger)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("n_items", len(outcomes)),
		logging.Int("n_failed", failed),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return outcomes, nil
}

func resolveOwner(ctx context.Context, opts Options, job *stage.Job, logger *slog.Logger) error {
	if job.RecordID != "" {
		return nil
	}
	owner, err := provenance.Resolve(ctx, opts.Store, opts.Index, job.Path, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "owning record not found", "owner_missing",
			append(logging.FailureAttrs(err),
				logging.String(logging.FieldFile, filepath.Base(job.Path)),
				logging.String(logging.FieldImpact, "file skipped by this stage"),
			)...,
		)
		return err
	}
	job.RecordID = owner.RecordID
	job.SourceFile = owner.SourceFile
	if job.SpeakerID == "" {
		job.SpeakerID = owner.SpeakerID
	}
	return nil
}

func runJob(ctx context.Context, opts Options, job stage.Job, logger *slog.Logger) (out Outcome) {
	name := opts.Handler.Name()
	jobCtx := services.WithRecordID(ctx, job.RecordID)
	jobCtx = services.WithFile(jobCtx, filepath.Base(job.Path))
	jobLogger := logging.WithContext(jobCtx, logger)

	out.Job = job
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = services.Wrap(services.ErrValidation, name, "process", fmt.Sprintf("panic: %v", r), nil)
			jobLogger.Error("stage panicked",
				logging.String(logging.FieldEventType, "stage_panic"),
				logging.String("stack", string(debug.Stack())),
			)
		}
		out.Elapsed = time.Since(started)
		opts.Metrics.ObserveStageJob(ctx, name, out.Elapsed, out.Err == nil)
		if out.Err != nil {
			logging.ErrorWithContext(jobLogger, "stage failed", "stage_failure",
				append(logging.FailureAttrs(out.Err),
					logging.String(logging.FieldErrorClass, string(services.Classify(out.Err))),
					logging.Duration("stage_duration", out.Elapsed),
				)...,
			)
			return
		}
		jobLogger.Debug("stage job completed",
			logging.Int("outputs", len(out.Result.Outputs)),
			logging.Duration("stage_duration", out.Elapsed),
		)
	}()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	out.Result, out.Err = opts.Handler.Process(jobCtx, job)
	return out
}

func persistArtifacts(ctx context.Context, opts Options, o Outcome) error {
	for _, seg := range o.Result.Segments {
		if err := opts.Store.AppendSegment(ctx, o.Job.RecordID, seg); err != nil {
			return fmt.Errorf("append segment %s: %w", seg.File, err)
		}
	}
	for _, aug := range o.Result.Augmentations {
		if err := opts.Store.AppendAugmentation(ctx, o.Job.RecordID, aug); err != nil {
			return fmt.Errorf("append augmentation %s: %w", aug.AugmentedFile, err)
		}
	}
	for _, artifact := range o.Result.Outputs {
		if opts.Index.RegisterChild(artifact.Path, o.Job.Path, artifact.SpeakerID) {
			continue
		}
		speaker := artifact.SpeakerID
		if speaker == "" {
			speaker = o.Job.SpeakerID
		}
		opts.Index.Register(artifact.Path, provenance.Owner{
			RecordID:   o.Job.RecordID,
			SourceFile: o.Job.SourceFile,
			SpeakerID:  speaker,
		})
	}
	return nil
}

// recordStageUpdates issues one UpdateStage per owning record, in the order
// records first appear in outcomes.
func recordStageUpdates(ctx context.Context, opts Options, outcomes []Outcome, logger *slog.Logger) {
	var order []string
	groups := map[string][]Outcome{}
	for _, o := range outcomes {
		id := o.Job.RecordID
		if id == "" {
			continue
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], o)
	}

	flag := opts.Handler.Flag()
	name := opts.Handler.Name()
	for _, id := range order {
		group := groups[id]
		success, details := summarize(group)
		recCtx := services.WithRecordID(ctx, id)
		if err := opts.Store.UpdateStage(recCtx, id, flag, success, details); err != nil {
			logging.ErrorWithContext(logging.WithContext(recCtx, logger), "failed to persist stage result", "store_failure",
				logging.FailureAttrs(err)...,
			)
			continue
		}
		opts.Metrics.CountStageOutcome(ctx, name, success)

		var exported []string
		for _, o := range group {
			exported = append(exported, o.Result.Exported...)
		}
		if len(exported) > 0 {
			err := opts.Store.UpdateStage(recCtx, id, progress.StageExported, true, map[string]any{
				"files":      exported,
				"n_exported": len(exported),
			})
			if err != nil {
				logging.ErrorWithContext(logging.WithContext(recCtx, logger), "failed to mark record exported", "store_failure",
					logging.FailureAttrs(err)...,
				)
			}
		}
	}
}

func summarize(group []Outcome) (bool, map[string]any) {
	if len(group) == 1 {
		o := group[0]
		if o.Err != nil {
			return false, map[string]any{
				"input": filepath.Base(o.Job.Path),
				"error": errorMessage(o.Err),
			}
		}
		return true, o.Result.Details
	}

	items := make([]any, 0, len(group))
	var messages []string
	failed := 0
	for _, o := range group {
		item := map[string]any{"input": filepath.Base(o.Job.Path)}
		if o.Err != nil {
			failed++
			msg := errorMessage(o.Err)
			item["error"] = msg
			messages = append(messages, filepath.Base(o.Job.Path)+": "+msg)
		} else {
			for k, v := range o.Result.Details {
				item[k] = v
			}
		}
		items = append(items, item)
	}
	details := map[string]any{
		"items":    items,
		"n_items":  len(group),
		"n_failed": failed,
	}
	if failed > 0 {
		details["error"] = strings.Join(messages, "; ")
	}
	return failed == 0, details
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
