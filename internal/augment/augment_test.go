package augment_test

import (
	"context"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/augment"
	"audiocorpus/internal/config"
	"audiocorpus/internal/dsp"
	"audiocorpus/internal/stage"
	"audiocorpus/internal/testsupport"
)

func TestSelectAlwaysPicksOne(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Augmentation.ProbTempo = 0
	cfg.Augmentation.ProbPitch = 0
	cfg.Augmentation.ProbNoise = 0
	cfg.Augmentation.ProbMasking = 0
	a := augment.New(cfg, nil)
	for i := range 20 {
		got := a.Select(a.Rand("clip.wav", i), 0)
		if len(got) != 1 || got[0] == augment.TransformBackground {
			t.Fatalf("index %d: unexpected selection %v", i, got)
		}
	}
}

func TestSelectUsesPoolOnlyWhenAvailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Augmentation.ProbNoise = 1
	cfg.Augmentation.ProbBackground = 1
	a := augment.New(cfg, nil)
	if got := a.Select(a.Rand("x.wav", 1), 3); !slices.Contains(got, augment.TransformBackground) {
		t.Fatalf("expected background with a populated pool, got %v", got)
	}
	if got := a.Select(a.Rand("x.wav", 1), 0); !slices.Contains(got, augment.TransformNoise) || slices.Contains(got, augment.TransformBackground) {
		t.Fatalf("expected gaussian noise with an empty pool, got %v", got)
	}
}

func TestMixAtSNR(t *testing.T) {
	rate := 16000
	signal := testsupport.Tone(300, 0.5, 1, rate)
	noise := testsupport.Noise(0.3, 0.25, rate, 3)
	mixed := slices.Clone(signal)
	augment.MixAtSNR(mixed, noise, 10)

	added := make([]float64, len(mixed))
	for i := range mixed {
		added[i] = mixed[i] - signal[i]
	}
	snr := 10 * math.Log10(dsp.Power(signal)/dsp.Power(added))
	if math.Abs(snr-10) > 0.01 {
		t.Fatalf("mixed at %.3f dB, want 10", snr)
	}
}

func TestAugmentIsReproducible(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Augmentation.ProbMasking = 1
	a := augment.New(cfg, nil)
	clip := audio.NewClip(testsupport.Tone(220, 0.3, 1, 16000), 16000)

	run := func() (*audio.Clip, map[string]any) {
		rng := a.Rand("seg_seg001.wav", 2)
		return a.Augment(clip, a.Select(rng, 0), rng)
	}
	first, p1 := run()
	second, p2 := run()
	if !slices.Equal(first.Samples, second.Samples) {
		t.Fatal("same seed, name and index must reproduce the same audio")
	}
	if !slices.Equal(p1["applied_augmentations"].([]string), p2["applied_augmentations"].([]string)) {
		t.Fatalf("parameters differ: %v vs %v", p1, p2)
	}
	if peak := audio.Peak(first.Samples); math.Abs(peak-0.99) > 1e-9 {
		t.Fatalf("output not peak normalized: %.4f", peak)
	}
	if _, ok := p1["freq_masks"]; !ok {
		t.Fatalf("masking parameters missing: %v", p1)
	}
}

func TestMaskSpectrumKeepsLength(t *testing.T) {
	samples := testsupport.Tone(500, 0.5, 0.5, 16000)
	cfg := testsupport.NewConfig(t)
	a := augment.New(cfg, nil)
	out, freq, times := augment.MaskSpectrum(samples, a.Rand("m.wav", 1))
	if len(out) != len(samples) || len(freq) != 2 || len(times) != 2 {
		t.Fatalf("unexpected mask result: %d samples, %d/%d masks", len(out), len(freq), len(times))
	}
}

func TestProcessWritesAugmentationsAndRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Augmentation.NAugmentationsPerSample = 3
	cfg.Augmentation.ProbTempo = 1
	cfg.Augmentation.ProbPitch = 0
	cfg.Augmentation.ProbNoise = 1
	cfg.Augmentation.ProbMasking = 0
	cfg.Augmentation.NoiseDir = t.TempDir()
	testsupport.WriteWAV(t, filepath.Join(cfg.Augmentation.NoiseDir, "hum.wav"), testsupport.Noise(0.2, 0.5, 8000, 9), 8000)
	cfg.Augmentation.ProbBackground = 1

	src := testsupport.WriteTone(t, filepath.Join(t.TempDir(), "a_seg002.wav"), 180, 0.4, 2, 16000)
	res, err := augment.New(cfg, nil).Process(context.Background(), stage.Job{RecordID: "rec", Path: src, SpeakerID: "S1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Outputs) != 3 || len(res.Augmentations) != 3 {
		t.Fatalf("expected 3 augmentations, got %d/%d", len(res.Outputs), len(res.Augmentations))
	}
	for i, aug := range res.Augmentations {
		want := filepath.Join(cfg.OutputDir(config.DirAugmented), "a_seg002_aug"+string(rune('1'+i))+".wav")
		if aug.AugmentedFile != want || res.Outputs[i].SpeakerID != "S1" {
			t.Fatalf("unexpected augmentation %d: %+v", i, aug)
		}
		if aug.Type != "tempo_background" {
			t.Fatalf("unexpected type %q", aug.Type)
		}
		factor := aug.Parameters["tempo_factor"].(float64)
		if factor < 0.9 || factor > 1.1 {
			t.Fatalf("tempo factor %.3f outside range", factor)
		}
		if aug.Parameters["background_file"] != "hum.wav" {
			t.Fatalf("unexpected background file %v", aug.Parameters["background_file"])
		}
		clip := testsupport.ReadWAV(t, aug.AugmentedFile)
		if math.Abs(clip.Duration()-2/factor) > 0.01 {
			t.Fatalf("tempo %.3f should give %.3f s, got %.3f", factor, 2/factor, clip.Duration())
		}
	}
	if !strings.Contains(strings.Join(res.Details["types"].([]string), ","), "tempo_background") {
		t.Fatalf("unexpected details %v", res.Details)
	}
}
