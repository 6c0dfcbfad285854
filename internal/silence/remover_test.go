package silence

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
	"audiocorpus/internal/testsupport"
)

func TestFramesToSpansAndMergeGaps(t *testing.T) {
	voiced := []bool{false, true, true, false, true, false, false, false, true}
	spans := framesToSpans(voiced, 10, 85)
	want := []dsp.Span{{Start: 10, End: 30}, {Start: 40, End: 50}, {Start: 80, End: 85}}
	if !slices.Equal(spans, want) {
		t.Fatalf("framesToSpans = %v, want %v", spans, want)
	}
	merged := mergeGaps(spans, 20)
	if !slices.Equal(merged, []dsp.Span{{Start: 10, End: 50}, {Start: 80, End: 85}}) {
		t.Fatalf("unexpected merge: %v", merged)
	}
}

func TestNearestVADRateAndRescale(t *testing.T) {
	cases := map[int]int{22050: 16000, 44100: 48000, 8000: 8000, 11025: 8000, 24000: 32000}
	for in, want := range cases {
		if got := nearestVADRate(in); got != want {
			t.Fatalf("nearestVADRate(%d) = %d, want %d", in, got, want)
		}
	}
	spans := rescale([]dsp.Span{{Start: 16000, End: 32000}}, 16000, 44100, 88200)
	if spans[0].Start != 44100 || spans[0].End != 88200 {
		t.Fatalf("unexpected rescale: %v", spans)
	}
}

func energyRemover(t *testing.T) *Remover {
	cfg := testsupport.NewConfig(t)
	cfg.Silence.Method = MethodEnergy
	cfg.Silence.KeepSilenceMS = 100
	cfg.Silence.MinSilenceMS = 500
	return New(cfg, nil)
}

func TestEnergyRemovalKeepsPaddedSpeech(t *testing.T) {
	r := energyRemover(t)
	rate := 16000
	samples := slices.Concat(
		testsupport.Silence(1, rate),
		testsupport.Tone(300, 0.5, 2, rate),
		testsupport.Silence(2, rate),
		testsupport.Tone(300, 0.5, 1, rate),
		testsupport.Silence(1, rate),
	)
	out, report, err := r.Remove(audio.NewClip(samples, rate))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if report.Segments != 2 {
		t.Fatalf("expected two retained regions, got %d", report.Segments)
	}
	// 3 s of tone plus 100 ms of pad on both sides of each region.
	if math.Abs(out.Duration()-3.4) > 0.03 {
		t.Fatalf("unexpected retained duration %.3f", out.Duration())
	}
	if math.Abs(report.RemovedPercent-(100*(1-out.Duration()/7))) > 1e-9 {
		t.Fatalf("inconsistent removed percent %.3f", report.RemovedPercent)
	}
}

func TestShortPausesAreKept(t *testing.T) {
	r := energyRemover(t)
	rate := 16000
	samples := slices.Concat(
		testsupport.Tone(300, 0.5, 1, rate),
		testsupport.Silence(0.3, rate),
		testsupport.Tone(300, 0.5, 1, rate),
	)
	out, report, err := r.Remove(audio.NewClip(samples, rate))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if report.Segments != 1 || out.Len() != len(samples) {
		t.Fatalf("pause below min silence must be kept: %d segments, %d/%d samples", report.Segments, out.Len(), len(samples))
	}
}

func TestProcessFailsOnSilence(t *testing.T) {
	r := energyRemover(t)
	src := testsupport.WriteSilence(t, filepath.Join(t.TempDir(), "quiet.wav"), 2, 16000)
	_, err := r.Process(context.Background(), stage.Job{RecordID: "r", Path: src})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation failure for silent input, got %v", err)
	}
}

type spansDetector []dsp.Span

func (d spansDetector) Detect([]float64, int) ([]dsp.Span, error) { return d, nil }

func TestProcessWritesDetailsWithInjectedDetector(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Silence.KeepSilenceMS = 0
	cfg.Silence.MinSegmentSeconds = 0.5
	r := NewWithDetector(cfg, spansDetector{{Start: 0, End: 16000}, {Start: 20000, End: 22000}, {Start: 32000, End: 48000}}, nil)
	src := testsupport.WriteTone(t, filepath.Join(t.TempDir(), "talk.wav"), 200, 0.3, 4, 16000)

	res, err := r.Process(context.Background(), stage.Job{RecordID: "r", Path: src})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Details["n_segments"] != 2 {
		t.Fatalf("short blip should be dropped, details %v", res.Details)
	}
	if res.Details["processed_duration"] != 2.0 || res.Details["removed_percentage"] != 50.0 {
		t.Fatalf("unexpected durations: %v", res.Details)
	}
}
