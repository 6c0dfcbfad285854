package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"audiocorpus/internal/config"
	"audiocorpus/internal/fileutil"
)

// StageTitle renders a stage name for humans, for example "Silence Removal".
func StageTitle(name string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(name, "_", " "))
}

// TimingTable renders per-stage timings and failure counts in pipeline order.
func TimingTable(s Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Stage", "Duration", "Failures"})
	for _, name := range orderedStages(s) {
		tw.AppendRow(table.Row{StageTitle(name), s.Timings[name].Round(time.Millisecond).String(), s.StageFailures[name]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return tw.Render()
}

func orderedStages(s Summary) []string {
	var names []string
	for _, name := range config.StageNames {
		_, timed := s.Timings[name]
		if timed || s.StageFailures[name] > 0 {
			names = append(names, name)
		}
	}
	var extra []string
	for name := range s.StageFailures {
		if !slices.Contains(names, name) {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	return append(names, extra...)
}

// Text renders the pipeline report.
func (s Summary) Text() string {
	var b strings.Builder
	b.WriteString("Audio processing pipeline report\n")
	b.WriteString(strings.Repeat("=", 80) + "\n\n")
	fmt.Fprintf(&b, "Files processed: %d\n", s.Files)
	fmt.Fprintf(&b, "Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "With failures: %d\n", s.Failed)
	if s.Halted {
		fmt.Fprintf(&b, "Skipped after systemic failures: %d\n", s.Skipped)
	}
	fmt.Fprintf(&b, "Elapsed: %s\n\n", s.Elapsed.Round(time.Millisecond))

	if s.Quality.Total > 0 {
		b.WriteString("Quality\n")
		fmt.Fprintf(&b, "  Segments checked: %d\n", s.Quality.Total)
		fmt.Fprintf(&b, "  Valid: %d (%.2f%%)\n", s.Quality.Valid, s.Quality.ValidPercent())
		fmt.Fprintf(&b, "  Mean SNR: %.2f dB\n", s.Quality.MeanSNR)
		for _, reason := range s.Quality.ReasonNames() {
			fmt.Fprintf(&b, "  %s: %d\n", reason, s.Quality.Reasons[reason])
		}
		b.WriteString("\n")
	}
	if s.Metadata != nil {
		b.WriteString("Splits\n")
		for _, split := range s.Metadata.Summary {
			fmt.Fprintf(&b, "  %s: %d segments, %d speakers, %.1f s\n",
				split.Name, split.Segments, split.Speakers, split.TotalDuration)
		}
		b.WriteString("\n")
	}
	b.WriteString("Stage timings\n")
	b.WriteString(TimingTable(s))
	b.WriteString("\n")
	return b.String()
}

// WritePipelineReport writes processed/pipeline_report.txt and returns its
// path.
func (m *Manager) WritePipelineReport(s Summary) (string, error) {
	path := filepath.Join(m.cfg.ProcessedRoot(), "pipeline_report.txt")
	err := fileutil.WriteAtomic(path, func(f *os.File) error {
		_, err := f.WriteString(s.Text())
		return err
	})
	return path, err
}
