package segment_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"audiocorpus/internal/config"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/segment"
	"audiocorpus/internal/services"
	"audiocorpus/internal/stage"
	"audiocorpus/internal/testsupport"
)

func TestFixedWindows(t *testing.T) {
	rate := 100
	p := segment.Params{Target: 8 * rate, MinLength: 2 * rate}
	tests := []struct {
		name    string
		seconds int
		want    []dsp.Span
	}{
		{"22s keeps 6s tail", 22, []dsp.Span{{Start: 0, End: 800}, {Start: 800, End: 1600}, {Start: 1600, End: 2200}}},
		{"17s drops 1s tail", 17, []dsp.Span{{Start: 0, End: 800}, {Start: 800, End: 1600}}},
		{"exact multiple", 16, []dsp.Span{{Start: 0, End: 800}, {Start: 800, End: 1600}}},
		{"shorter than min", 1, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := segment.Fixed(tc.seconds*rate, p)
			if !slices.Equal(got, tc.want) {
				t.Fatalf("Fixed = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFixedFullWindowCount(t *testing.T) {
	p := segment.Params{Target: 700, MinLength: 0}
	for _, n := range []int{0, 699, 700, 4321, 10000} {
		spans := segment.Fixed(n, p)
		full, total := 0, 0
		for _, s := range spans {
			if s.Len() == p.Target {
				full++
			}
			total += s.Len()
		}
		if full != n/p.Target || total > n {
			t.Fatalf("n=%d: %d full windows, %d samples", n, full, total)
		}
	}
}

func TestAdaptiveMergesAndSplits(t *testing.T) {
	p := segment.Params{Target: 80, MinLength: 20, MaxLength: 150, MinSilence: 10}
	speech := []dsp.Span{
		{Start: 0, End: 30},
		{Start: 40, End: 70},   // gap 10 < 20: merged
		{Start: 100, End: 130}, // merged span is 70 < target, gap 30: not merged
		{Start: 200, End: 400}, // longer than max: split
	}
	got, fallback := segment.Adaptive(speech, 500, p)
	if fallback {
		t.Fatal("unexpected fixed fallback")
	}
	want := []dsp.Span{
		{Start: 0, End: 70},
		{Start: 100, End: 130},
		{Start: 200, End: 266},
		{Start: 266, End: 333},
		{Start: 333, End: 400},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Adaptive = %v, want %v", got, want)
	}
}

func TestAdaptivePadsOnlyOuterEdgesOfSplitSpans(t *testing.T) {
	p := segment.Params{Target: 100, MinLength: 20, MaxLength: 150, Pad: 20}
	got, _ := segment.Adaptive([]dsp.Span{{Start: 100, End: 400}}, 1000, p)
	want := []dsp.Span{
		{Start: 80, End: 165},
		{Start: 165, End: 250},
		{Start: 250, End: 335},
		{Start: 335, End: 420},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Adaptive = %v, want %v", got, want)
	}
	for i, s := range got {
		if s.Len() > p.Target {
			t.Fatalf("chunk %d is %d samples, over target %d", i, s.Len(), p.Target)
		}
		if i > 0 && s.Start < got[i-1].End {
			t.Fatalf("chunks %d and %d overlap: %v %v", i-1, i, got[i-1], s)
		}
	}
}

func TestAdaptiveFallsBackToFixed(t *testing.T) {
	p := segment.Params{Target: 100, MinLength: 10, MaxLength: 200}
	got, fallback := segment.Adaptive(nil, 250, p)
	if !fallback || len(got) != 3 {
		t.Fatalf("expected fixed fallback with 3 windows, got %v (%v)", got, fallback)
	}
}

func TestFromSpeechPadsAndFilters(t *testing.T) {
	p := segment.Params{MinLength: 50, Pad: 10}
	got := segment.FromSpeech([]dsp.Span{{Start: 5, End: 60}, {Start: 100, End: 120}}, 200, p)
	if !slices.Equal(got, []dsp.Span{{Start: 0, End: 70}}) {
		t.Fatalf("unexpected spans %v", got)
	}
}

func TestProcessFixedTwentyTwoSeconds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Segmentation.Method = segment.MethodFixed
	cfg.Segmentation.TargetLength = 8
	cfg.Segmentation.MinSegmentLength = 2
	s := segment.New(cfg, nil)
	src := testsupport.WriteTone(t, filepath.Join(t.TempDir(), "clip_speaker_B.wav"), 220, 0.3, 22, 8000)

	res, err := s.Process(context.Background(), stage.Job{RecordID: "rec", Path: src, SpeakerID: "B"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(res.Segments))
	}
	wantTimes := [][2]float64{{0, 8}, {8, 16}, {16, 22}}
	for i, seg := range res.Segments {
		if math.Abs(seg.StartTime-wantTimes[i][0]) > 1e-9 || math.Abs(seg.EndTime-wantTimes[i][1]) > 1e-9 {
			t.Fatalf("segment %d spans %.2f-%.2f", i, seg.StartTime, seg.EndTime)
		}
		if seg.SpeakerID != "B" || seg.Metadata["segment_index"] != i+1 || seg.Metadata["method"] != "fixed" {
			t.Fatalf("unexpected segment metadata %+v", seg)
		}
	}
	want := filepath.Join(cfg.OutputDir(config.DirSegmented), "clip_speaker_B_seg003.wav")
	if res.Outputs[2].Path != want {
		t.Fatalf("unexpected output path %s", res.Outputs[2].Path)
	}
	if got := testsupport.ReadWAV(t, want).Duration(); math.Abs(got-6) > 1e-3 {
		t.Fatalf("last clip lasts %.3f s", got)
	}
}

func TestProcessAdaptiveOnSpeechBursts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Segmentation.Method = segment.MethodAdaptive
	rate := 16000
	samples := slices.Concat(
		testsupport.Tone(250, 0.4, 3, rate),
		testsupport.Silence(2, rate),
		testsupport.Tone(250, 0.4, 4, rate),
	)
	src := testsupport.WriteWAV(t, filepath.Join(t.TempDir(), "bursts.wav"), samples, rate)

	res, err := segment.New(cfg, nil).Process(context.Background(), stage.Job{RecordID: "rec", Path: src})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected the 2 s pause to separate two clips, got %d", len(res.Segments))
	}
	if res.Segments[0].SpeakerID != "unknown" {
		t.Fatalf("missing speaker should be recorded as unknown, got %q", res.Segments[0].SpeakerID)
	}
	if math.Abs(res.Segments[1].StartTime-4.8) > 0.02 {
		t.Fatalf("second clip starts at %.3f, want 4.8 (5 s minus 200 ms pad)", res.Segments[1].StartTime)
	}
}

func TestProcessRejectsTooShortInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Segmentation.Method = segment.MethodFixed
	src := testsupport.WriteTone(t, filepath.Join(t.TempDir(), "tiny.wav"), 220, 0.3, 1, 8000)
	_, err := segment.New(cfg, nil).Process(context.Background(), stage.Job{RecordID: "rec", Path: src})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
