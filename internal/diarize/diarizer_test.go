package diarize_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"audiocorpus/internal/config"
	"audiocorpus/internal/diarize"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
	"audiocorpus/internal/testsupport"
)

func newDiarizer(t *testing.T, turns []diarize.Turn) (*diarize.Diarizer, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Diarization.Enabled = true
	cfg.Diarization.VerifyToken = false
	runner := diarize.RunnerFunc(func(context.Context, string, int, int) ([]diarize.Turn, error) {
		return turns, nil
	})
	d, err := diarize.New(context.Background(), cfg, nil, diarize.WithRunner(runner))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, cfg
}

func TestTwoSpeakerRecordingSplitsIntoTwoFiles(t *testing.T) {
	rate := 16000
	samples := slices.Concat(
		testsupport.Tone(180, 0.4, 15, rate),
		testsupport.Tone(320, 0.4, 15, rate),
	)
	src := testsupport.WriteWAV(t, filepath.Join(t.TempDir(), "interview.wav"), samples, rate)
	d, cfg := newDiarizer(t, []diarize.Turn{
		{Start: 15, End: 30, Speaker: "SPEAKER_01"},
		{Start: 0, End: 15, Speaker: "SPEAKER_00"},
	})

	res, err := d.Process(context.Background(), stage.Job{RecordID: "rec", Path: src})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Outputs) != 2 || len(res.Segments) != 2 {
		t.Fatalf("expected 2 outputs and 2 segments, got %d/%d", len(res.Outputs), len(res.Segments))
	}
	wantFirst := filepath.Join(cfg.OutputDir(config.DirDiarized), "interview_speaker_SPEAKER_00.wav")
	if res.Outputs[0].Path != wantFirst || res.Outputs[0].SpeakerID != "SPEAKER_00" {
		t.Fatalf("unexpected first output: %+v", res.Outputs[0])
	}
	for _, seg := range res.Segments {
		if seg.StartTime != 0 || math.Abs(seg.EndTime-15) > 0.01 {
			t.Fatalf("segment %s spans %.3f-%.3f, want 0-15", seg.File, seg.StartTime, seg.EndTime)
		}
		if seg.Metadata["n_original_turns"] != 1 {
			t.Fatalf("expected one original turn, got %v", seg.Metadata["n_original_turns"])
		}
		if got := testsupport.ReadWAV(t, seg.File).Duration(); math.Abs(got-15) > 0.01 {
			t.Fatalf("written file %s lasts %.3f s", seg.File, got)
		}
	}

	stats := res.Details["speaker_stats"].(map[string]any)
	var total float64
	for _, v := range stats {
		total += v.(map[string]any)["percentage"].(float64)
	}
	if math.Abs(total-100) > 0.1 {
		t.Fatalf("speaker shares sum to %.2f%%", total)
	}
	if res.Details["n_speakers"] != 2 {
		t.Fatalf("unexpected n_speakers: %v", res.Details["n_speakers"])
	}
}

func TestTurnsAreConcatenatedChronologically(t *testing.T) {
	rate := 8000
	samples := slices.Concat(
		testsupport.Tone(200, 0.5, 1, rate),
		testsupport.Silence(1, rate),
		testsupport.Tone(200, 0.5, 1, rate),
	)
	src := testsupport.WriteWAV(t, filepath.Join(t.TempDir(), "talk.wav"), samples, rate)
	d, _ := newDiarizer(t, []diarize.Turn{
		{Start: 2, End: 3, Speaker: "A"},
		{Start: 0, End: 1, Speaker: "A"},
		{Start: 1.5, End: 1.5, Speaker: "B"},
	})

	res, err := d.Process(context.Background(), stage.Job{RecordID: "rec", Path: src})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Outputs) != 1 {
		t.Fatalf("zero-length turn must be ignored, got %d outputs", len(res.Outputs))
	}
	if got := res.Segments[0].EndTime; math.Abs(got-2) > 0.01 {
		t.Fatalf("gaps must not be preserved, got %.3f s", got)
	}
	if res.Segments[0].Metadata["n_original_turns"] != 2 {
		t.Fatalf("unexpected turn count %v", res.Segments[0].Metadata["n_original_turns"])
	}
}

func TestNoTurnsIsAValidationFailure(t *testing.T) {
	src := testsupport.WriteTone(t, filepath.Join(t.TempDir(), "a.wav"), 200, 0.5, 1, 16000)
	d, _ := newDiarizer(t, nil)
	_, err := d.Process(context.Background(), stage.Job{RecordID: "rec", Path: src})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func hubServer(t *testing.T, modelStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hf_good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/api/whoami-v2":
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/api/models/"):
			w.WriteHeader(modelStatus)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewVerifiesModelAccessOnce(t *testing.T) {
	tests := []struct {
		name        string
		token       string
		modelStatus int
		wantErr     error
	}{
		{"accepted", "hf_good", http.StatusOK, nil},
		{"missing token", "", http.StatusOK, services.ErrCredential},
		{"rejected token", "hf_bad", http.StatusOK, services.ErrCredential},
		{"license not accepted", "hf_good", http.StatusForbidden, services.ErrCredential},
		{"unknown model", "hf_good", http.StatusNotFound, services.ErrConfiguration},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := hubServer(t, tc.modelStatus)
			cfg := testsupport.NewConfig(t)
			cfg.Diarization.Enabled = true
			cfg.Diarization.VerifyToken = true
			cfg.Diarization.HubURL = srv.URL
			cfg.Diarization.HFToken = tc.token

			_, err := diarize.New(context.Background(), cfg, nil, diarize.WithHTTPClient(srv.Client()))
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if !services.IsSystemic(err) {
				t.Fatalf("model load failures must stop the run: %v", err)
			}
			if tc.wantErr == services.ErrCredential && !strings.Contains(err.Error(), "user conditions") {
				t.Fatalf("expected actionable causes in %q", err)
			}
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diarize.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecRunnerParsesTurns(t *testing.T) {
	script := writeScript(t, `echo '{"turns":[{"start":0,"end":1.5,"speaker":"SPEAKER_00"}]}'`)
	r := &diarize.ExecRunner{Command: []string{script}, Model: "m"}
	turns, err := r.Diarize(context.Background(), "in.wav", 1, 2)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(turns) != 1 || turns[0].Speaker != "SPEAKER_00" || turns[0].Duration() != 1.5 {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestExecRunnerReportsModelError(t *testing.T) {
	script := writeScript(t, `echo '{"error":"model exploded"}'; exit 1`)
	r := &diarize.ExecRunner{Command: []string{script}, Model: "m"}
	_, err := r.Diarize(context.Background(), "in.wav", 1, 2)
	if err == nil || !strings.Contains(err.Error(), "model exploded") {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestStatsAndGroup(t *testing.T) {
	labels, bySpeaker := diarize.Group([]diarize.Turn{
		{Start: 4, End: 6, Speaker: "b"},
		{Start: 0, End: 2, Speaker: "a"},
		{Start: 2, End: 4, Speaker: "b"},
	})
	if !slices.Equal(labels, []string{"a", "b"}) {
		t.Fatalf("unexpected labels %v", labels)
	}
	if bySpeaker["b"][0].Start != 2 {
		t.Fatalf("turns must be sorted by start: %+v", bySpeaker["b"])
	}
	stats := diarize.Stats(bySpeaker, 8)
	if stats["b"].TotalDuration != 4 || stats["b"].Percentage != 50 || stats["a"].Turns != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
