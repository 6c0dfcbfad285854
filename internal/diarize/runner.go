package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"audiocorpus/internal/config"
)

// Turn is one speaker turn on the input timeline, in seconds.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Duration returns End - Start.
func (t Turn) Duration() float64 { return t.End - t.Start }

// Runner produces speaker turns for an audio file.
type Runner interface {
	Diarize(ctx context.Context, path string, minSpeakers, maxSpeakers int) ([]Turn, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, path string, minSpeakers, maxSpeakers int) ([]Turn, error)

// Diarize implements Runner.
func (f RunnerFunc) Diarize(ctx context.Context, path string, minSpeakers, maxSpeakers int) ([]Turn, error) {
	return f(ctx, path, minSpeakers, maxSpeakers)
}

// ExecRunner invokes the configured diarization command. The command receives
// the audio path and model settings as flags, the hub token through HF_TOKEN,
// and prints {"turns": [{"start", "end", "speaker"}]} or {"error": "..."}.
type ExecRunner struct {
	Command []string
	Model   string
	Device  string
	Token   string
	Timeout time.Duration
}

// NewExecRunner builds a runner from the diarization config section.
func NewExecRunner(cfg config.Diarization) *ExecRunner {
	return &ExecRunner{
		Command: cfg.Command,
		Model:   cfg.Model,
		Device:  cfg.Device,
		Token:   cfg.HFToken,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

type runnerOutput struct {
	Turns []Turn `json:"turns"`
	Error string `json:"error,omitempty"`
}

// Diarize implements Runner.
func (r *ExecRunner) Diarize(ctx context.Context, path string, minSpeakers, maxSpeakers int) ([]Turn, error) {
	if len(r.Command) == 0 {
		return nil, errors.New("diarization command not configured")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	args := append([]string{}, r.Command[1:]...)
	args = append(args,
		"--audio", path,
		"--model", r.Model,
		"--min-speakers", strconv.Itoa(minSpeakers),
		"--max-speakers", strconv.Itoa(maxSpeakers),
	)
	if r.Device != "" {
		args = append(args, "--device", r.Device)
	}

	cmd := exec.CommandContext(ctx, r.Command[0], args...) //nolint:gosec
	cmd.Env = append(os.Environ(), "HF_TOKEN="+r.Token)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	var out runnerOutput
	decodeErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out)
	switch {
	case decodeErr == nil && out.Error != "":
		return nil, fmt.Errorf("%s: %s", r.Command[0], out.Error)
	case runErr != nil:
		return nil, fmt.Errorf("%s: %w: %s", r.Command[0], runErr, strings.TrimSpace(stderr.String()))
	case decodeErr != nil:
		return nil, fmt.Errorf("%s: decode output: %w", r.Command[0], decodeErr)
	}
	return out.Turns, nil
}
