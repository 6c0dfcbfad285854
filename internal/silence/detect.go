package silence

import (
	"errors"
	"math"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/dsp"
)

// ErrDetectorUnavailable reports a detector that cannot run in this build.
var ErrDetectorUnavailable = errors.New("voice activity detector unavailable")

// Detector finds voiced spans in samples at the given rate.
type Detector interface {
	Detect(samples []float64, sampleRate int) ([]dsp.Span, error)
}

// vadRates are the rates the WebRTC classifier accepts.
var vadRates = []int{8000, 16000, 32000, 48000}

// nearestVADRate picks the supported rate closest to rate, preferring the
// higher one on ties.
func nearestVADRate(rate int) int {
	best := vadRates[0]
	for _, r := range vadRates {
		if abs(r-rate) <= abs(best-rate) {
			best = r
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// framesToSpans turns per-frame voiced flags into sample spans.
func framesToSpans(voiced []bool, frame, n int) []dsp.Span {
	var spans []dsp.Span
	for i := 0; i < len(voiced); {
		if !voiced[i] {
			i++
			continue
		}
		j := i
		for j < len(voiced) && voiced[j] {
			j++
		}
		spans = append(spans, dsp.Span{Start: i * frame, End: min(j*frame, n)})
		i = j
	}
	return spans
}

// mergeGaps joins spans separated by fewer than maxGap samples, so pauses
// shorter than the minimum silence are kept.
func mergeGaps(spans []dsp.Span, maxGap int) []dsp.Span {
	var out []dsp.Span
	for _, s := range spans {
		if len(out) > 0 && s.Start-out[len(out)-1].End < maxGap {
			out[len(out)-1].End = s.End
			continue
		}
		out = append(out, s)
	}
	return out
}

// rescale maps spans from one sample rate to another.
func rescale(spans []dsp.Span, from, to, n int) []dsp.Span {
	if from == to {
		return spans
	}
	ratio := float64(to) / float64(from)
	out := make([]dsp.Span, 0, len(spans))
	for _, s := range spans {
		start := int(math.Floor(float64(s.Start) * ratio))
		end := min(n, int(math.Ceil(float64(s.End)*ratio)))
		if end > start {
			out = append(out, dsp.Span{Start: start, End: end})
		}
	}
	return out
}

// resampleFor returns samples converted to rate.
func resampleFor(samples []float64, from, to int) []float64 {
	if from == to {
		return samples
	}
	return audio.Resample(samples, from, to)
}

// EnergyDetector splits on RMS level.
type EnergyDetector struct {
	ThresholdDB  float64
	MinSilenceMS int
}

// Detect implements Detector.
func (d EnergyDetector) Detect(samples []float64, sampleRate int) ([]dsp.Span, error) {
	return dsp.NonSilent(samples, sampleRate, dsp.SilenceParams{
		ThresholdDB:  d.ThresholdDB,
		MinSilenceMS: d.MinSilenceMS,
	}), nil
}
