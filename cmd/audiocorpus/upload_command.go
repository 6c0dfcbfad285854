package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"audiocorpus/internal/blobstore"
	"audiocorpus/internal/config"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <dir>",
		Short: "Upload raw audio files to the raw container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if info, err := os.Stat(args[0]); err != nil || !info.IsDir() {
				return fmt.Errorf("upload source %s is not a directory", args[0])
			}
			uploader, err := newUploader(s.cfg, s.logger, nil, newBreaker(s.cfg, s.logger))
			if err != nil {
				return err
			}
			summary, err := uploader.UploadTree(cmd.Context(), s.cfg.Blobstore.RawContainer, "", args[0],
				s.cfg.Pipeline.Extensions, blobstore.SkipExisting)
			printUploadSummary(cmd.OutOrStdout(), s.cfg.Blobstore.RawContainer, summary)
			return err
		},
	}
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Upload the final dataset and metadata tables to the dataset container",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			uploader, err := newUploader(s.cfg, s.logger, nil, newBreaker(s.cfg, s.logger))
			if err != nil {
				return err
			}
			container := s.cfg.Blobstore.DatasetContainer
			for _, dir := range []string{config.DirFinal, config.DirMetadata} {
				summary, err := uploader.UploadTree(cmd.Context(), container, dir, s.cfg.OutputDir(dir), nil, blobstore.SkipSameSize)
				printUploadSummary(cmd.OutOrStdout(), container+"/"+dir, summary)
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printUploadSummary(out io.Writer, target string, s blobstore.Summary) {
	rows := [][]string{
		{"Uploaded", strconv.Itoa(s.Uploaded)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Bytes", strconv.FormatInt(s.Bytes, 10)},
	}
	fmt.Fprintln(out, renderTable([]string{target, "Files"}, rows, []columnAlignment{alignLeft, alignRight}))
	for rel, msg := range s.Failures {
		fmt.Fprintf(out, "  %s: %s\n", rel, msg)
	}
}
