package audio_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"audiocorpus/internal/audio"
)

func sine(freq float64, seconds float64, rate int, amp float64) []float64 {
	n := int(seconds * float64(rate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestWriteReadWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	clip := audio.NewClip(sine(440, 1.5, 16000, 0.5), 16000)

	if err := audio.WriteWAV(path, clip, 16); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	got, info, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitDepth != 16 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if got.Len() != clip.Len() {
		t.Fatalf("length changed: got %d want %d", got.Len(), clip.Len())
	}
	if math.Abs(got.Duration()-1.5) > 1e-9 {
		t.Fatalf("unexpected duration %v", got.Duration())
	}
	for i := 0; i < got.Len(); i += 97 {
		if math.Abs(got.Samples[i]-clip.Samples[i]) > 1e-3 {
			t.Fatalf("sample %d differs: %v vs %v", i, got.Samples[i], clip.Samples[i])
		}
	}

	probe, err := audio.ProbeWAV(path)
	if err != nil {
		t.Fatalf("ProbeWAV: %v", err)
	}
	if probe.SampleRate != 16000 || math.Abs(probe.Duration()-1.5) > 0.01 {
		t.Fatalf("unexpected probe: %+v", probe)
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := audio.ReadWAV(path); !errors.Is(err, audio.ErrUnsupportedWAV) {
		t.Fatalf("expected ErrUnsupportedWAV, got %v", err)
	}
}

func TestDownmixAverages(t *testing.T) {
	got := audio.Downmix([]float64{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float64{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("unexpected length %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestResamplePreservesDuration(t *testing.T) {
	cases := []struct{ from, to int }{
		{44100, 16000},
		{8000, 16000},
		{48000, 32000},
	}
	for _, tc := range cases {
		in := sine(200, 2.0, tc.from, 0.5)
		out := audio.Resample(in, tc.from, tc.to)
		inDur := float64(len(in)) / float64(tc.from)
		outDur := float64(len(out)) / float64(tc.to)
		if math.Abs(inDur-outDur) > 1.0/float64(tc.to) {
			t.Fatalf("%d->%d: duration %v became %v", tc.from, tc.to, inDur, outDur)
		}
		// A 200 Hz tone survives resampling with roughly the same RMS.
		if r := rms(out[len(out)/4 : 3*len(out)/4]); math.Abs(r-0.5/math.Sqrt2) > 0.02 {
			t.Fatalf("%d->%d: rms %v", tc.from, tc.to, r)
		}
	}
}

func TestResampleAttenuatesAboveNyquist(t *testing.T) {
	in := sine(12000, 1.0, 44100, 0.5)
	out := audio.Resample(in, 44100, 16000)
	if r := rms(out[len(out)/4 : 3*len(out)/4]); r > 0.05 {
		t.Fatalf("expected aliasing tone to be filtered, rms=%v", r)
	}
}

func TestLimitAndPeakNormalize(t *testing.T) {
	samples := []float64{0.2, -1.4, 1.2, 0.5}
	if n := audio.Limit(samples, 0.99); n != 2 {
		t.Fatalf("expected 2 clipped samples, got %d", n)
	}
	if audio.Peak(samples) != 0.99 {
		t.Fatalf("unexpected peak %v", audio.Peak(samples))
	}
	gain := audio.PeakNormalize(samples, 0.5)
	if math.Abs(audio.Peak(samples)-0.5) > 1e-12 || gain >= 1 {
		t.Fatalf("unexpected normalize result gain=%v peak=%v", gain, audio.Peak(samples))
	}
	silent := []float64{0, 0}
	if audio.PeakNormalize(silent, 0.9) != 1 {
		t.Fatal("silence should get unity gain")
	}
}

func TestSliceClampsBounds(t *testing.T) {
	clip := audio.NewClip(make([]float64, 16000), 16000)
	part := clip.Slice(0.5, 3)
	if part.Len() != 8000 {
		t.Fatalf("expected 8000 samples, got %d", part.Len())
	}
	if clip.Slice(0.8, 0.2).Len() != 0 {
		t.Fatal("inverted range should be empty")
	}
}

func TestPCM16(t *testing.T) {
	b := audio.PCM16([]float64{1, -1, 0})
	if len(b) != 6 {
		t.Fatalf("unexpected length %d", len(b))
	}
	if b[0] != 0xff || b[1] != 0x7f {
		t.Fatalf("unexpected max encoding % x", b[:2])
	}
}

func rms(samples []float64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
