package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"audiocorpus/internal/progress"
	"audiocorpus/internal/services"
	"audiocorpus/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [file]",
		Short: "Show stage progress for every record or one file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 1 {
				rec, err := s.store.FindByFileName(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return services.Wrap(services.ErrNotFound, "status", "find record", args[0], nil)
				}
				if asJSON {
					return writeJSON(cmd, rec)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderRecord(rec))
				return nil
			}

			records, err := s.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRecordList(records))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func newFailedCommand(ctx *commandContext) *cobra.Command {
	var stageName string
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List records whose stage flag is not set",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := progress.ParseStage(strings.TrimSpace(stageName))
			if err != nil {
				return err
			}
			s, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.store.FindByStage(cmd.Context(), st, false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(out, "No records pending %s\n", st)
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{rec.File, stageError(&rec, st), formatTime(rec.UpdatedAt)})
			}
			fmt.Fprintln(out, renderTable([]string{"File", "Error", "Updated"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&stageName, "stage", "", "Record stage flag (for example cleaned)")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func renderRecordList(records []progress.Record) string {
	rows := make([][]string, 0, len(records))
	for i := range records {
		rec := &records[i]
		done, last := 0, "-"
		for _, st := range progress.Stages {
			if rec.Done(st) {
				done++
				last = string(st)
			}
		}
		rows = append(rows, []string{
			rec.File,
			fmt.Sprintf("%d/%d", done, len(progress.Stages)),
			last,
			strconv.Itoa(len(rec.Segments)),
			formatTime(rec.UpdatedAt),
		})
	}
	return renderTable(
		[]string{"File", "Stages", "Last Stage", "Segments", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	)
}

func renderRecord(rec *progress.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File:          %s\n", rec.File)
	fmt.Fprintf(&b, "Record:        %s\n", rec.ID)
	if path := rec.SourcePath(); path != "" {
		fmt.Fprintf(&b, "Source:        %s\n", path)
	}
	fmt.Fprintf(&b, "Segments:      %d\n", len(rec.Segments))
	fmt.Fprintf(&b, "Augmentations: %d\n", len(rec.Augmentations))

	rows := make([][]string, 0, len(progress.Stages))
	for _, st := range progress.Stages {
		rows = append(rows, []string{workflow.StageTitle(string(st)), yesNo(rec.Done(st)), stageNote(rec, st)})
	}
	b.WriteString(renderTable([]string{"Stage", "Done", "Note"}, rows, nil))
	b.WriteString("\n")
	return b.String()
}

func stageNote(rec *progress.Record, st progress.Stage) string {
	detail := rec.Detail(st)
	if detail == nil {
		return ""
	}
	if msg, ok := detail["error"].(string); ok && msg != "" {
		return truncate(msg, 80)
	}
	if n, ok := detail["n_items"].(float64); ok {
		return fmt.Sprintf("%d items", int(n))
	}
	return ""
}

func stageError(rec *progress.Record, st progress.Stage) string {
	detail := rec.Detail(st)
	if detail == nil {
		return "not run"
	}
	if msg, ok := detail["error"].(string); ok && msg != "" {
		return truncate(msg, 100)
	}
	return "incomplete"
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
