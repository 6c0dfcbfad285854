package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"audiocorpus/internal/config"
	"audiocorpus/internal/workflow"
)

const redacted = "<redacted>"

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check and print the pipeline configuration",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, err := os.Stat(target)
				switch {
				case err == nil:
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				case !errors.Is(err, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Point paths.base_dir at a scratch disk, then set diarization.hf_token (or export HF_TOKEN) to enable diarization.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// configTarget resolves the init destination, defaulting to the per-user
// config path.
func configTarget(flagValue string) (string, error) {
	if target := strings.TrimSpace(flagValue); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	target, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return target, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and stage overrides and print the run plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, planRows(cfg), nil))
			for _, warning := range configWarnings(cfg) {
				fmt.Fprintf(out, "Warning: %s\n", warning)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func planRows(cfg *config.Config) [][]string {
	return [][]string{
		{"Processed root", cfg.ProcessedRoot()},
		{"Progress backend", cfg.Progress.Backend},
		{"Blob store", cfg.Blobstore.Backend},
		{"Workers", strconv.Itoa(cfg.Pipeline.Workers)},
		{"Extensions", strings.Join(cfg.Pipeline.Extensions, " ")},
		{"Stages", strings.Join(runPlan(cfg), " > ")},
		{"Segmentation", cfg.Segmentation.Method},
		{"Metadata format", cfg.Metadata.Format},
		{"Speaker scope", cfg.Metadata.SpeakerScope},
	}
}

// runPlan is the stage order a run would use, after the skip and only lists
// and the per-stage enable switches.
func runPlan(cfg *config.Config) []string {
	return slices.DeleteFunc(workflow.PlannedStages(cfg.Pipeline), func(name string) bool {
		switch name {
		case workflow.StageDiarization:
			return !cfg.Diarization.Enabled
		case workflow.StageAugmentation:
			return !cfg.Augmentation.Enabled
		}
		return false
	})
}

func configWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.Diarization.Enabled && strings.TrimSpace(cfg.Diarization.HFToken) == "" {
		warnings = append(warnings, "diarization is enabled but no hf_token is set")
	}
	if cfg.Progress.Backend == "memory" {
		warnings = append(warnings, "progress is kept in memory and lost when the process exits")
	}
	return warnings
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			view := redactConfig(*cfg)
			if asJSON {
				return writeJSON(cmd, view)
			}
			data, err := toml.Marshal(view)
			if err != nil {
				return fmt.Errorf("encode toml: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of TOML")
	return cmd
}

func redactConfig(cfg config.Config) config.Config {
	for _, secret := range []*string{
		&cfg.Diarization.HFToken,
		&cfg.Blobstore.AccessKey,
		&cfg.Blobstore.SecretKey,
		&cfg.Progress.PostgresDSN,
	} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return cfg
}
