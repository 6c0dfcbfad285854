package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApplyOverrideFile merges a JSON or YAML override document into c. Top-level
// keys are section names (for example "segmentation" or "cleaner"); keys
// present in the document replace the loaded values and everything else is
// left alone. The merged configuration is normalized and validated again.
func (c *Config) ApplyOverrideFile(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("read stage config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		return c.ApplyOverrideYAML(data)
	default:
		return c.ApplyOverrideJSON(data)
	}
}

// ApplyOverrideYAML merges a YAML override document into c.
func (c *Config) ApplyOverrideYAML(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse stage config: %w", err)
	}
	if len(doc) == 0 {
		return nil
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert stage config: %w", err)
	}
	return c.ApplyOverrideJSON(encoded)
}

// ApplyOverrideJSON merges a JSON override document into c.
func (c *Config) ApplyOverrideJSON(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	merged := c.clone()
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&merged); err != nil {
		return fmt.Errorf("parse stage config: %w", err)
	}
	if err := merged.normalize(); err != nil {
		return err
	}
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("stage config: %w", err)
	}
	*c = merged
	return nil
}

func (c *Config) clone() Config {
	out := *c
	out.Logging.LevelOverrides = slices.Clone(c.Logging.LevelOverrides)
	out.Pipeline.Extensions = slices.Clone(c.Pipeline.Extensions)
	out.Pipeline.SkipStages = slices.Clone(c.Pipeline.SkipStages)
	out.Pipeline.OnlyStages = slices.Clone(c.Pipeline.OnlyStages)
	out.Diarization.Command = slices.Clone(c.Diarization.Command)
	out.Augmentation.TempoRange = slices.Clone(c.Augmentation.TempoRange)
	out.Augmentation.PitchRange = slices.Clone(c.Augmentation.PitchRange)
	out.Augmentation.NoiseLevelRange = slices.Clone(c.Augmentation.NoiseLevelRange)
	out.Augmentation.BackgroundSNRRange = slices.Clone(c.Augmentation.BackgroundSNRRange)
	return out
}
