package testsupport

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"audiocorpus/internal/audio"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Tone returns a sine wave at freq Hz with the given amplitude.
func Tone(freq, amplitude, seconds float64, rate int) []float64 {
	n := int(math.Round(seconds * float64(rate)))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

// Silence returns seconds of digital silence.
func Silence(seconds float64, rate int) []float64 {
	return make([]float64, int(math.Round(seconds*float64(rate))))
}

// Noise returns seeded uniform white noise with the given peak amplitude.
func Noise(amplitude, seconds float64, rate int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, int(math.Round(seconds*float64(rate))))
	for i := range out {
		out[i] = amplitude * (2*rng.Float64() - 1)
	}
	return out
}

// WriteWAV writes samples as a mono 16-bit WAV file, creating parent
// directories.
func WriteWAV(t testing.TB, path string, samples []float64, rate int) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := audio.WriteWAV(path, audio.NewClip(samples, rate), 16); err != nil {
		t.Fatalf("write wav %s: %v", path, err)
	}
	return path
}

// WriteTone writes a sine tone WAV file.
func WriteTone(t testing.TB, path string, freq, amplitude, seconds float64, rate int) string {
	t.Helper()
	return WriteWAV(t, path, Tone(freq, amplitude, seconds, rate), rate)
}

// WriteSilence writes a silent WAV file.
func WriteSilence(t testing.TB, path string, seconds float64, rate int) string {
	t.Helper()
	return WriteWAV(t, path, Silence(seconds, rate), rate)
}

// ReadWAV loads a WAV file written by the pipeline.
func ReadWAV(t testing.TB, path string) *audio.Clip {
	t.Helper()
	clip, _, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatalf("read wav %s: %v", path, err)
	}
	return clip
}
