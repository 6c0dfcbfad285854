package dsp

import (
	"gonum.org/v1/gonum/floats"
)

const (
	featureFrameSize = 2048
	featureHop       = 512
	rolloffPercent   = 0.85
)

// SpectralFeatures are frame-averaged descriptors of a clip.
type SpectralFeatures struct {
	Centroid float64
	Rolloff  float64
	Flux     float64
}

// Spectral computes mean spectral centroid (Hz), 85% rolloff (Hz) and flux
// (mean squared frame-to-frame magnitude difference). ok is false for clips
// too short to analyze.
func Spectral(samples []float64, sampleRate int) (SpectralFeatures, bool) {
	size := featureFrameSize
	for size > 256 && len(samples) < size {
		size /= 2
	}
	if len(samples) <= size/2 {
		return SpectralFeatures{}, false
	}
	stft := NewSTFT(size, size/4)
	mags := Magnitudes(stft.Forward(samples))
	if len(mags) == 0 {
		return SpectralFeatures{}, false
	}

	freqs := make([]float64, stft.Bins())
	for k := range freqs {
		freqs[k] = stft.BinFrequency(k, sampleRate)
	}

	var centroidSum, rolloffSum float64
	cumulative := make([]float64, stft.Bins())
	for _, row := range mags {
		total := floats.Sum(row)
		if total > 0 {
			centroidSum += floats.Dot(freqs, row) / total
		}
		floats.CumSum(cumulative, row)
		threshold := rolloffPercent * cumulative[len(cumulative)-1]
		for k, c := range cumulative {
			if c >= threshold {
				rolloffSum += freqs[k]
				break
			}
		}
	}

	var flux float64
	if len(mags) > 1 {
		diff := make([]float64, stft.Bins())
		var sum float64
		for t := 1; t < len(mags); t++ {
			floats.SubTo(diff, mags[t], mags[t-1])
			sum += floats.Dot(diff, diff)
		}
		flux = sum / float64((len(mags)-1)*stft.Bins())
	}

	n := float64(len(mags))
	return SpectralFeatures{
		Centroid: centroidSum / n,
		Rolloff:  rolloffSum / n,
		Flux:     flux,
	}, true
}
