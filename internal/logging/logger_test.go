package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiocorpus/internal/logging"
	"audiocorpus/internal/services"
)

func TestConsoleLoggerRendersSubjectAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Options{Level: "info", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	ctx := services.WithRecordID(context.Background(), "0123456789abcdef")
	ctx = services.WithStage(ctx, "cleaning")
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "clean"))
	logger.Info("clip cleaned", logging.String(logging.FieldEventType, "stage_complete"), logging.Float64("snr", 21.5))

	out := buf.String()
	for _, want := range []string{"INFO [clean] Record 01234567 (cleaning) – clip cleaned", "- Event: stage_complete", "- SNR: 21.5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("expected no colour codes for a non-terminal writer")
	}
}

func TestConsoleLoggerSuppressesUnchangedInfoFields(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Options{Level: "info", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	ctx := services.WithRecordID(context.Background(), "rec-1")
	ctx = services.WithStage(ctx, "cleaning")
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "clean"))
	logger.Info("first", logging.Float64("snr", 21.5))
	logger.Info("second", logging.Float64("snr", 21.5))
	logger.Warn("third", logging.Float64("snr", 21.5))

	out := buf.String()
	if n := strings.Count(out, "- SNR: 21.5"); n != 2 {
		t.Fatalf("expected the repeated info field to be dropped once, got %d occurrences:\n%s", n, out)
	}
}

func TestConsoleLoggerFlattensGroupsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Options{Level: "debug", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logger.WithGroup("vad").With(logging.String("mode", "aggressive")).Debug("frame classified", logging.String("mode", "quality"))

	out := buf.String()
	if !strings.Contains(out, "    vad.mode: quality") || strings.Contains(out, "aggressive") {
		t.Fatalf("expected the later grouped value to win:\n%s", out)
	}
}

func TestFileOutputWritesJSON(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "audiocorpus.log")
	logger, closer, err := logging.New(logging.Options{
		Level:     "info",
		Format:    "console",
		Console:   &console,
		FilePath:  path,
		MaxSizeMB: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Warn("store unreachable", logging.FailureAttrs(services.Wrap(services.ErrCredential, "upload", "put", "denied", errors.New("403")))[0])
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log file is not JSON: %v\n%s", err, data)
	}
	if entry["msg"] != "store unreachable" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
	if console.Len() == 0 {
		t.Fatal("expected console output alongside the file")
	}
}

func TestComponentLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Options{
		Level:          "info",
		Format:         "json",
		Console:        &buf,
		LevelOverrides: []string{"workflow=debug", "diarize=error"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logging.NewComponentLogger(logger, "workflow").Debug("workflow debug")
	logging.NewComponentLogger(logger, "clean").Debug("clean debug")
	logging.NewComponentLogger(logger, "diarize").Warn("diarize warn")
	logging.NewComponentLogger(logger, "diarize").Error("diarize error")

	out := buf.String()
	if !strings.Contains(out, "workflow debug") {
		t.Fatal("expected workflow debug line")
	}
	if strings.Contains(out, "clean debug") {
		t.Fatal("did not expect clean debug line at info level")
	}
	if strings.Contains(out, "diarize warn") || !strings.Contains(out, "diarize error") {
		t.Fatalf("expected only the diarize error line:\n%s", out)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if _, _, err := logging.New(logging.Options{LevelOverrides: []string{"nocomponent"}}); err == nil {
		t.Fatal("expected error for malformed override")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Options{Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logging.WarnWithContext(logger, "segment rejected", "segment_rejected", logging.String(logging.FieldImpact, "clip not exported"))
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldEventType] != "segment_rejected" {
		t.Fatalf("unexpected event type: %v", entry)
	}
	if entry[logging.FieldErrorHint] == "" || entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default hint: %v", entry)
	}
	if entry[logging.FieldImpact] != "clip not exported" {
		t.Fatalf("expected caller impact to be kept: %v", entry)
	}
}
