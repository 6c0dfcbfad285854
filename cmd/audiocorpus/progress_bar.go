package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"audiocorpus/internal/workflow"
)

// batchProgress draws a per-file progress bar when out is a terminal.
type batchProgress struct {
	out     io.Writer
	enabled bool
	p       *mpb.Progress
	bar     *mpb.Bar
}

func newBatchProgress(out io.Writer, enabled bool) *batchProgress {
	if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		enabled = false
	}
	return &batchProgress{out: out, enabled: enabled}
}

func (b *batchProgress) start(total int) {
	if !b.enabled || total == 0 {
		return
	}
	b.p = mpb.New(mpb.WithOutput(b.out), mpb.WithWidth(48))
	b.bar = b.p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("Processing "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name(" "),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
}

func (b *batchProgress) fileDone(workflow.FileResult, int, int) {
	if b.bar != nil {
		b.bar.Increment()
	}
}

func (b *batchProgress) wait() {
	if b.p == nil {
		return
	}
	if !b.bar.Completed() {
		b.bar.Abort(false)
	}
	b.p.Wait()
}

func (b *batchProgress) options() workflow.RunOptions {
	return workflow.RunOptions{OnStart: b.start, OnFileDone: b.fileDone}
}
