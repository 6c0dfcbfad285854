package augment

import (
	"math"
	"math/rand/v2"

	"audiocorpus/internal/dsp"
)

// Transform names, in application order.
const (
	TransformTempo      = "tempo"
	TransformPitch      = "pitch"
	TransformNoise      = "noise"
	TransformBackground = "background"
	TransformMasking    = "masking"
)

const (
	maskFFTSize = 512
	maskHop     = 160
	maskCount   = 2
	maxFreqMask = 10
	maxTimeMask = 10
)

// AddGaussian adds zero-mean Gaussian noise with standard deviation level.
func AddGaussian(samples []float64, level float64, rng *rand.Rand) {
	for i := range samples {
		samples[i] += rng.NormFloat64() * level
	}
}

// MixAtSNR adds noise, looped to the clip length, scaled so the clip to
// noise power ratio equals snrDB. Silent noise leaves samples unchanged.
func MixAtSNR(samples, noise []float64, snrDB float64) {
	if len(noise) == 0 || len(samples) == 0 {
		return
	}
	looped := make([]float64, len(samples))
	for i := range looped {
		looped[i] = noise[i%len(noise)]
	}
	signal := dsp.Power(samples)
	noisePower := dsp.Power(looped)
	if noisePower == 0 {
		return
	}
	gain := math.Sqrt(signal / (noisePower * math.Pow(10, snrDB/10)))
	for i := range samples {
		samples[i] += looped[i] * gain
	}
}

// Mask describes a zeroed band: [Start, Start+Width) bins or frames.
type Mask struct {
	Start int `json:"start"`
	Width int `json:"width"`
}

// MaskSpectrum zeroes maskCount random frequency bands and maskCount random
// time spans of the clip's spectrogram and resynthesizes it.
func MaskSpectrum(samples []float64, rng *rand.Rand) ([]float64, []Mask, []Mask) {
	stft := dsp.NewSTFT(maskFFTSize, maskHop)
	frames := stft.Forward(samples)
	if len(frames) == 0 {
		return samples, nil, nil
	}
	bins := stft.Bins()
	freq := make([]Mask, 0, maskCount)
	for range maskCount {
		m := randomMask(bins, maxFreqMask, rng)
		for _, spectrum := range frames {
			for k := m.Start; k < m.Start+m.Width; k++ {
				spectrum[k] = 0
			}
		}
		freq = append(freq, m)
	}
	times := make([]Mask, 0, maskCount)
	for range maskCount {
		m := randomMask(len(frames), maxTimeMask, rng)
		for t := m.Start; t < m.Start+m.Width; t++ {
			clear(frames[t])
		}
		times = append(times, m)
	}
	return stft.Inverse(frames, len(samples)), freq, times
}

// randomMask draws a width in [0, maxWidth] and a start so the mask fits
// in size.
func randomMask(size, maxWidth int, rng *rand.Rand) Mask {
	width := min(rng.IntN(maxWidth+1), size)
	start := 0
	if size-width > 0 {
		start = rng.IntN(size - width + 1)
	}
	return Mask{Start: start, Width: width}
}

// uniform draws from [lo, hi].
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

// uniformInt draws from [lo, hi].
func uniformInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}
