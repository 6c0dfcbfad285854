package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"audiocorpus/internal/metadata"
)

func newSplitCommand(ctx *commandContext) *cobra.Command {
	var export bool
	var listSpeakers bool
	var table string
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Summarize the speaker-disjoint train/dev/test split",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if table != "" {
				if export {
					return fmt.Errorf("--table cannot be combined with --export")
				}
				rows, err := metadata.ReadParquet(table)
				if err != nil {
					return err
				}
				splits := map[string][]metadata.Row{}
				for _, row := range rows {
					splits[row.Split] = append(splits[row.Split], row)
				}
				printSplit(out, len(rows), metadata.Summarize(splits), listSpeakers)
				return nil
			}

			s, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			mgr := metadata.New(s.cfg, s.logger)
			var res metadata.Result
			if export {
				res, err = mgr.Export(cmd.Context(), s.store)
			} else {
				res, err = mgr.Build(cmd.Context(), s.store)
			}
			if err != nil {
				return err
			}
			printSplit(out, len(res.Rows), res.Summary, listSpeakers)
			for _, name := range append([]string{"all"}, metadata.SplitNames...) {
				if path := res.Paths[name]; path != "" {
					fmt.Fprintf(out, "Wrote %s\n", path)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&export, "export", false, "Write metadata tables and tag records")
	cmd.Flags().BoolVar(&listSpeakers, "speakers", false, "List speaker ids per split")
	cmd.Flags().StringVar(&table, "table", "", "Summarize an exported Parquet table instead of the progress store")
	return cmd
}

func printSplit(out io.Writer, nRows int, summary []metadata.SplitSummary, listSpeakers bool) {
	if nRows == 0 {
		fmt.Fprintln(out, "No segments recorded")
		return
	}
	fmt.Fprintln(out, renderSplitSummary(summary))
	if listSpeakers {
		printSpeakers(out, summary)
	}
}

func renderSplitSummary(summary []metadata.SplitSummary) string {
	rows := make([][]string, 0, len(summary))
	for _, s := range summary {
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.Segments),
			strconv.Itoa(s.Speakers),
			formatSeconds(s.TotalDuration),
			formatSeconds(s.MeanDuration),
			formatSeconds(s.MinDuration),
			formatSeconds(s.MaxDuration),
			formatSNR(s.MeanSNR),
			formatSNR(s.MinSNR),
			formatSNR(s.MaxSNR),
		})
	}
	aligns := slices.Repeat([]columnAlignment{alignRight}, 10)
	aligns[0] = alignLeft
	return renderTable(
		[]string{"Split", "Segments", "Speakers", "Total", "Mean", "Min", "Max", "Mean SNR", "Min SNR", "Max SNR"},
		rows,
		aligns,
	)
}

func printSpeakers(out io.Writer, summary []metadata.SplitSummary) {
	for _, s := range summary {
		fmt.Fprintf(out, "%s: %s\n", s.Name, strings.Join(s.SpeakerIDs, ", "))
	}
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.1fs", v)
}

func formatSNR(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f dB", *v)
}
