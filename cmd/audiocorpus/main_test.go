package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiocorpus/internal/metadata"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("HF_TOKEN", "")
	t.Setenv("HUGGINGFACE_TOKEN", "")
	path := filepath.Join(base, "config.toml")
	content := `[paths]
base_dir = "` + filepath.ToSlash(base) + `"

[logging]
file = false

[progress]
backend = "memory"

[diarization]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, _, err := runCLI(t, "--config", cfgPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Progress backend")
	requireContains(t, out, "loading > normalization > silence_removal")
	requireContains(t, out, "Warning: progress is kept in memory")
	if strings.Contains(out, "diarization >") {
		t.Fatalf("disabled diarization should not be planned:\n%s", out)
	}

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	cfgPath := writeTestConfig(t)
	t.Setenv("HF_TOKEN", "hf_secret_value")

	for _, args := range [][]string{{"config", "show"}, {"config", "show", "--json"}} {
		out, _, err := runCLI(t, append([]string{"--config", cfgPath}, args...)...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		if strings.Contains(out, "hf_secret_value") {
			t.Fatalf("%v leaked the token:\n%s", args, out)
		}
		requireContains(t, out, "memory")
	}
}

func TestRunRejectsMissingInputDirectory(t *testing.T) {
	cfgPath := writeTestConfig(t)
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	_, _, err := runCLI(t, "--config", cfgPath, "run", "--no-progress", missing)
	if err == nil {
		t.Fatal("expected run on a missing directory to fail")
	}
	requireContains(t, err.Error(), "does-not-exist")
}

func TestStatusWithEmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, _, err := runCLI(t, "--config", cfgPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No records")
}

func TestRunRejectsConflictingStageFilters(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, _, err := runCLI(t, "--config", cfgPath, "run", "--no-progress", "--skip", "cleaning", "--only", "loading", t.TempDir())
	if err == nil {
		t.Fatal("expected --skip with --only to be rejected")
	}
}

func TestWERScoresTranscriptFiles(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "reference.txt")
	hyp := filepath.Join(dir, "hypothesis.txt")
	if err := os.WriteFile(ref, []byte("the cat sat\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(hyp, []byte("The cat sat down\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, "wer", ref, hyp)
	if err != nil {
		t.Fatalf("wer: %v", err)
	}
	requireContains(t, out, "WER: 33.33%")
	requireContains(t, out, "CER: 44.44%")

	if _, _, err := runCLI(t, "wer", ref, filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected a missing hypothesis file to fail")
	}
}

func TestSplitSummarizesParquetTable(t *testing.T) {
	cfgPath := writeTestConfig(t)
	table := filepath.Join(t.TempDir(), "metadata_all.parquet")
	rows := []metadata.Row{
		{SegmentFile: "a_seg001.wav", SpeakerID: "alice", Duration: 4, Split: metadata.SplitTrain},
		{SegmentFile: "a_seg002.wav", SpeakerID: "alice", Duration: 6, Split: metadata.SplitTrain},
		{SegmentFile: "b_seg001.wav", SpeakerID: "bob", Duration: 5, Split: metadata.SplitDev},
		{SegmentFile: "c_seg001.wav", SpeakerID: "carol", Duration: 3, Split: metadata.SplitTest},
	}
	if err := metadata.WriteTable(table, rows, metadata.FormatParquet); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	out, _, err := runCLI(t, "--config", cfgPath, "split", "--table", table, "--speakers")
	if err != nil {
		t.Fatalf("split --table: %v", err)
	}
	requireContains(t, out, "10.0s")
	requireContains(t, out, "train: alice")
	requireContains(t, out, "test: carol")

	if _, _, err := runCLI(t, "--config", cfgPath, "split", "--table", table, "--export"); err == nil {
		t.Fatal("expected --table with --export to be rejected")
	}
}

func TestCheckFailureMessage(t *testing.T) {
	if got := checkFailureMessage(2, 0); got != "2 check(s) failed" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := checkFailureMessage(0, 1); got != "1 required tool(s) missing" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := checkFailureMessage(1, 1); !strings.Contains(got, "1 check(s) failed") {
		t.Fatalf("unexpected message %q", got)
	}
}
