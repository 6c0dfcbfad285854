package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"audiocorpus/internal/quality"
)

func newWERCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "wer <reference> <hypothesis>",
		Short:       "Score a transcript against its reference (WER and CER)",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			reference, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read reference: %w", err)
			}
			hypothesis, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read hypothesis: %w", err)
			}
			rates := quality.ErrorRates(string(reference), string(hypothesis))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "WER: %.2f%%\n", rates.WER*100)
			fmt.Fprintf(out, "CER: %.2f%%\n", rates.CER*100)
			return nil
		},
	}
}
