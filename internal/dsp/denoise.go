package dsp

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// NoiseReduction configures spectral gating.
type NoiseReduction struct {
	// Stationary estimates one noise threshold per frequency bin for the
	// whole clip; otherwise the threshold tracks a smoothed per-bin
	// magnitude over time.
	Stationary bool
	// Strength in [0, 1] is the proportion by which gated bins are reduced.
	Strength float64
	// ThresholdStd is how many standard deviations above the noise mean a
	// bin must be to pass.
	ThresholdStd float64
	// SmoothingSeconds is the time constant of the non-stationary noise
	// tracker.
	SmoothingSeconds float64
}

// DefaultNoiseReduction returns gating parameters suited to speech.
func DefaultNoiseReduction(stationary bool, strength float64) NoiseReduction {
	return NoiseReduction{Stationary: stationary, Strength: strength, ThresholdStd: 1.5, SmoothingSeconds: 2}
}

// Reduce returns samples with noise-dominated time-frequency bins
// attenuated. The output has the same length as the input.
func (nr NoiseReduction) Reduce(samples []float64, sampleRate int) []float64 {
	size := 1024
	if sampleRate <= 16000 {
		size = 512
	}
	if len(samples) < size {
		return slices.Clone(samples)
	}
	stft := NewSTFT(size, size/4)
	frames := stft.Forward(samples)
	mags := Magnitudes(frames)
	bins := stft.Bins()

	dbs := make([][]float64, len(mags))
	for t, row := range mags {
		dbs[t] = make([]float64, bins)
		for k, m := range row {
			dbs[t][k] = AmplitudeDB(m + 1e-12)
		}
	}

	var thresholdAt func(t, k int) float64
	if nr.Stationary {
		thresholds := nr.stationaryThresholds(dbs, bins)
		thresholdAt = func(_, k int) float64 { return thresholds[k] }
	} else {
		smoothed := nr.smoothedNoise(mags, bins, float64(stft.Hop)/float64(sampleRate))
		thresholdAt = func(t, k int) float64 { return smoothed[t][k] }
	}

	strength := max(0, min(1, nr.Strength))
	mask := make([][]float64, len(frames))
	for t := range frames {
		mask[t] = make([]float64, bins)
		for k := range bins {
			if dbs[t][k] > thresholdAt(t, k) {
				mask[t][k] = 1
			} else {
				mask[t][k] = 1 - strength
			}
		}
	}
	smoothMask(mask)

	for t, spectrum := range frames {
		for k := range spectrum {
			spectrum[k] *= complex(mask[t][k], 0)
		}
	}
	return stft.Inverse(frames, len(samples))
}

// stationaryThresholds estimates the noise distribution per bin from the
// quietest fifth of frames.
func (nr NoiseReduction) stationaryThresholds(dbs [][]float64, bins int) []float64 {
	energies := make([]float64, len(dbs))
	for t, row := range dbs {
		energies[t] = floats.Sum(row)
	}
	order := make([]int, len(dbs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return energies[order[a]] < energies[order[b]] })
	quiet := order[:max(1, len(order)/5)]

	thresholds := make([]float64, bins)
	column := make([]float64, len(quiet))
	for k := range bins {
		for i, t := range quiet {
			column[i] = dbs[t][k]
		}
		mean := floats.Sum(column) / float64(len(column))
		variance := 0.0
		for _, v := range column {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(len(column)))
		thresholds[k] = mean + nr.ThresholdStd*std
	}
	return thresholds
}

// smoothedNoise tracks per-bin magnitude with a one-pole lowpass over time
// and returns its level in dB plus a fixed margin.
func (nr NoiseReduction) smoothedNoise(mags [][]float64, bins int, frameSeconds float64) [][]float64 {
	tau := nr.SmoothingSeconds
	if tau <= 0 {
		tau = 2
	}
	coeff := math.Exp(-frameSeconds / tau)
	margin := 3 * nr.ThresholdStd
	out := make([][]float64, len(mags))
	state := slices.Clone(mags[0])
	for t, row := range mags {
		out[t] = make([]float64, bins)
		for k, m := range row {
			// Track the floor: fall quickly, rise slowly.
			if m < state[k] {
				state[k] = m
			} else {
				state[k] = coeff*state[k] + (1-coeff)*m
			}
			out[t][k] = AmplitudeDB(state[k]+1e-12) + margin
		}
	}
	return out
}

// smoothMask averages each mask cell with its time and frequency neighbours
// to reduce musical noise.
func smoothMask(mask [][]float64) {
	if len(mask) == 0 {
		return
	}
	src := make([][]float64, len(mask))
	for t := range mask {
		src[t] = slices.Clone(mask[t])
	}
	bins := len(mask[0])
	for t := range mask {
		for k := range bins {
			sum, n := 0.0, 0
			for dt := -1; dt <= 1; dt++ {
				for dk := -1; dk <= 1; dk++ {
					tt, kk := t+dt, k+dk
					if tt < 0 || tt >= len(src) || kk < 0 || kk >= bins {
						continue
					}
					sum += src[tt][kk]
					n++
				}
			}
			mask[t][k] = sum / float64(n)
		}
	}
}
