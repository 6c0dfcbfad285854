package dsp

import (
	"math"
)

// Compressor is a feed-forward peak compressor.
type Compressor struct {
	ThresholdDB float64
	Ratio       float64
	Attack      float64 // seconds
	Release     float64 // seconds
}

// DefaultCompressor returns a -20 dB, 4:1 compressor with 5 ms attack and
// 50 ms release.
func DefaultCompressor() Compressor {
	return Compressor{ThresholdDB: -20, Ratio: 4, Attack: 0.005, Release: 0.05}
}

// Apply returns the compressed signal rescaled to the input's peak.
func (c Compressor) Apply(samples []float64, sampleRate int) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 || c.Ratio <= 1 {
		copy(out, samples)
		return out
	}
	attack := smoothingCoeff(c.Attack, sampleRate)
	release := smoothingCoeff(c.Release, sampleRate)

	env := 0.0
	inPeak, outPeak := 0.0, 0.0
	for i, s := range samples {
		level := math.Abs(s)
		inPeak = max(inPeak, level)
		if level > env {
			env = attack*env + (1-attack)*level
		} else {
			env = release*env + (1-release)*level
		}
		gain := 1.0
		if db := AmplitudeDB(env); db > c.ThresholdDB {
			reduction := (db - c.ThresholdDB) * (1 - 1/c.Ratio)
			gain = DBToAmplitude(-reduction)
		}
		out[i] = s * gain
		outPeak = max(outPeak, math.Abs(out[i]))
	}
	if outPeak > 0 {
		scale := inPeak / outPeak
		for i := range out {
			out[i] *= scale
		}
	}
	return out
}

func smoothingCoeff(seconds float64, sampleRate int) float64 {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1 / (seconds * float64(sampleRate)))
}
