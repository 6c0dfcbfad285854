package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"audiocorpus/internal/config"
	"audiocorpus/internal/observe"
	"audiocorpus/internal/progress"
	"audiocorpus/internal/workflow"
)

type runFlags struct {
	maxFiles    int
	skip        []string
	only        []string
	metricsAddr string
	noProgress  bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxFiles, "max-files", -1, "Process at most this many files (0 = no limit)")
	cmd.Flags().StringSliceVar(&f.skip, "skip", nil, "Stages to skip")
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "Run only these stages")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
}

// apply copies flag values into cfg and re-validates it.
func (f *runFlags) apply(cfg *config.Config) error {
	if f.maxFiles >= 0 {
		cfg.Pipeline.MaxFiles = f.maxFiles
	}
	if len(f.skip) > 0 {
		cfg.Pipeline.SkipStages = normalizeStageList(f.skip)
	}
	if len(f.only) > 0 {
		cfg.Pipeline.OnlyStages = normalizeStageList(f.only)
	}
	if addr := strings.TrimSpace(f.metricsAddr); addr != "" {
		cfg.Metrics.Addr = addr
	}
	return cfg.Validate()
}

func normalizeStageList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <input-dir>",
		Short: "Process every audio file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, ctx, &flags, func(c context.Context, mgr *workflow.Manager, opts workflow.RunOptions) (workflow.Summary, error) {
				return mgr.Run(c, args[0], opts)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var stageName string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-run the pipeline for records whose stage did not complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := progress.ParseStage(strings.TrimSpace(stageName))
			if err != nil {
				return err
			}
			return runBatch(cmd, ctx, &flags, func(c context.Context, mgr *workflow.Manager, opts workflow.RunOptions) (workflow.Summary, error) {
				return mgr.Retry(c, st, opts)
			})
		},
	}
	cmd.Flags().StringVar(&stageName, "stage", "", "Record stage flag to retry (for example cleaned)")
	_ = cmd.MarkFlagRequired("stage")
	flags.register(cmd)
	return cmd
}

type batchFunc func(context.Context, *workflow.Manager, workflow.RunOptions) (workflow.Summary, error)

func runBatch(cmd *cobra.Command, ctx *commandContext, flags *runFlags, run batchFunc) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := flags.apply(cfg); err != nil {
		return err
	}
	release, err := workflow.AcquireRunLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer release() //nolint:errcheck

	runCtx := cmd.Context()
	s, err := ctx.openSession(runCtx)
	if err != nil {
		return err
	}
	defer s.Close()

	var metrics *observe.Metrics
	if cfg.Metrics.Addr != "" {
		provider, err := observe.NewPrometheusProvider()
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer provider.Shutdown(context.Background()) //nolint:errcheck
		if err := provider.Serve(runCtx, cfg.Metrics.Addr, s.logger); err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
		metrics = provider.Metrics
	}

	mgr, err := buildManager(runCtx, s, metrics)
	if err != nil {
		return err
	}

	bar := newBatchProgress(cmd.ErrOrStderr(), !flags.noProgress)
	summary, runErr := run(runCtx, mgr, bar.options())
	bar.wait()

	if runErr != nil && !summary.Halted {
		return runErr
	}
	printRunSummary(cmd.OutOrStdout(), summary)
	return runErr
}

func printRunSummary(out io.Writer, s workflow.Summary) {
	rows := [][]string{
		{"Files", strconv.Itoa(s.Files)},
		{"Succeeded", strconv.Itoa(s.Succeeded)},
		{"With failures", strconv.Itoa(s.Failed)},
	}
	if s.Halted {
		rows = append(rows, []string{"Skipped (halted)", strconv.Itoa(s.Skipped)})
	}
	if s.Quality.Total > 0 {
		rows = append(rows,
			[]string{"Segments checked", strconv.Itoa(s.Quality.Total)},
			[]string{"Segments accepted", fmt.Sprintf("%d (%.1f%%)", s.Quality.Valid, s.Quality.ValidPercent())},
		)
	}
	rows = append(rows, []string{"Elapsed", s.Elapsed.Round(time.Second).String()})
	fmt.Fprintln(out, renderTable([]string{"Batch", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(s.Timings) > 0 {
		fmt.Fprintln(out, workflow.TimingTable(s))
	}
	if s.Metadata != nil && s.Metadata.Paths["all"] != "" {
		fmt.Fprintf(out, "Metadata: %s\n", s.Metadata.Paths["all"])
	}
	if s.ReportPath != "" {
		fmt.Fprintf(out, "Report: %s\n", s.ReportPath)
	}
	var failed []workflow.FileResult
	for _, r := range s.Results {
		if !r.Succeeded() && !errors.Is(r.Err, context.Canceled) {
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(out, "%d file(s) had failures; see `audiocorpus failed --stage <stage>`\n", len(failed))
	}
}
