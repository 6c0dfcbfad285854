package normalize_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/normalize"
	"audiocorpus/internal/stage"
	"audiocorpus/internal/testsupport"
)

func TestEBUNormalizationReachesTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	n := normalize.New(cfg, nil)

	clip := audio.NewClip(testsupport.Tone(440, 0.05, 5, 16000), 16000)
	before, after, gain, limited := n.Apply(clip)
	if gain <= 1 {
		t.Fatalf("quiet tone should be amplified, gain=%v", gain)
	}
	if limited != 0 {
		t.Fatalf("unexpected limiting: %d", limited)
	}
	if math.Abs(after.Loudness-cfg.Normalizer.TargetLoudness) > 0.1 {
		t.Fatalf("loudness %.2f not within 0.1 of target (before %.2f)", after.Loudness, before.Loudness)
	}
}

func TestSilentInputGetsUnityGain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	n := normalize.New(cfg, nil)

	clip := audio.NewClip(testsupport.Silence(3, 16000), 16000)
	_, _, gain, _ := n.Apply(clip)
	if gain != 1 {
		t.Fatalf("expected unity gain for silence, got %v", gain)
	}
	if g, applied := n.Gain(-75); applied || g != 1 {
		t.Fatalf("level below floor must not be amplified, got %v", g)
	}
}

func TestRMSMethodAndLimiter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Normalizer.Method = normalize.MethodRMS
	cfg.Normalizer.TargetLoudness = -3
	n := normalize.New(cfg, nil)

	clip := audio.NewClip(testsupport.Tone(300, 0.5, 2, 16000), 16000)
	_, after, _, limited := n.Apply(clip)
	if limited == 0 {
		t.Fatal("expected limiter to engage for a -3 dB RMS target")
	}
	if after.Peak > cfg.Normalizer.PeakCeiling+1e-12 {
		t.Fatalf("peak %.4f exceeds ceiling", after.Peak)
	}
}

func TestProcessWritesDetails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := testsupport.WriteTone(t, filepath.Join(cfg.OutputDir("uniformized"), "talk.wav"), 440, 0.05, 4, 16000)

	res, err := normalize.New(cfg, nil).Process(context.Background(), stage.Job{RecordID: "r", Path: src})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Details["peak_limited"] != false {
		t.Fatalf("unexpected peak_limited: %v", res.Details["peak_limited"])
	}
	after, ok := res.Details["after"].(map[string]any)
	if !ok {
		t.Fatalf("missing after metrics: %v", res.Details)
	}
	if lufs := after["integrated_lufs"].(float64); math.Abs(lufs+23) > 0.2 {
		t.Fatalf("unexpected after loudness %.2f", lufs)
	}
	clip := testsupport.ReadWAV(t, res.Outputs[0].Path)
	if got := dsp.IntegratedLoudness(clip.Samples, clip.SampleRate, 0.4); math.Abs(got+23) > 0.2 {
		t.Fatalf("written file loudness %.2f", got)
	}
}
