package stage

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/services"
)

// Stem returns the basename of path without its extension. Any extension
// other than ".wav" stays in the stem as "_<ext>", so talk.mp3, talk.WAV and
// talk.wav derive distinct artifact names.
func Stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" || ext == ".wav" || stem == "" {
		return stem
	}
	return stem + "_" + ext[1:]
}

// OutputPath returns dir/<stem of input><suffix>.wav.
func OutputPath(dir, input, suffix string) string {
	return filepath.Join(dir, Stem(input)+suffix+".wav")
}

// LoadClip decodes a pipeline WAV file. Failures carry services.ErrDecode.
func LoadClip(stageName, path string) (*audio.Clip, error) {
	clip, _, err := audio.ReadWAV(path)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, stageName, "read audio", filepath.Base(path), err)
	}
	if clip.Len() == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "read audio", "no samples in "+filepath.Base(path), nil)
	}
	return clip, nil
}

// WriteClip writes clip as mono PCM at bits, creating the parent directory.
func WriteClip(stageName, path string, clip *audio.Clip, bits int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "create output dir", filepath.Dir(path), err)
	}
	if err := audio.WriteWAV(path, clip, bits); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "write audio", filepath.Base(path), err)
	}
	return nil
}

// Round rounds v to the given number of decimal places for details documents.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
