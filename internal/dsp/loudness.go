package dsp

import (
	"math"
	"slices"
)

const (
	absoluteGateLUFS = -70.0
	relativeGateLU   = -10.0
	blockOverlap     = 0.75
)

// KWeighting returns the BS.1770 pre-filter (high shelf then RLB highpass)
// designed for sampleRate.
func KWeighting(sampleRate int) Cascade {
	fs := float64(sampleRate)

	// Stage 1: +4 dB high shelf at 1500 Hz.
	gain, q, fc := 4.0, 1/math.Sqrt2, 1500.0
	a := math.Pow(10, gain/40)
	w0 := 2 * math.Pi * fc / fs
	alpha := math.Sin(w0) / (2 * q)
	cosW := math.Cos(w0)
	sqrtA := math.Sqrt(a)
	shelf := newBiquad(
		a*((a+1)+(a-1)*cosW+2*sqrtA*alpha),
		-2*a*((a-1)+(a+1)*cosW),
		a*((a+1)+(a-1)*cosW-2*sqrtA*alpha),
		(a+1)-(a-1)*cosW+2*sqrtA*alpha,
		2*((a-1)-(a+1)*cosW),
		(a+1)-(a-1)*cosW-2*sqrtA*alpha,
	)

	// Stage 2: highpass at 38 Hz.
	q, fc = 0.5, 38.0
	w0 = 2 * math.Pi * fc / fs
	alpha = math.Sin(w0) / (2 * q)
	cosW = math.Cos(w0)
	highpass := newBiquad((1+cosW)/2, -(1 + cosW), (1+cosW)/2, 1+alpha, -2*cosW, 1-alpha)

	return Cascade{shelf, highpass}
}

// IntegratedLoudness measures gated integrated loudness in LUFS over blocks
// of blockSeconds with 75% overlap. It returns -Inf when every block falls
// below the absolute gate or the clip is shorter than one block.
func IntegratedLoudness(samples []float64, sampleRate int, blockSeconds float64) float64 {
	block := int(blockSeconds * float64(sampleRate))
	if block <= 0 || len(samples) < block {
		return math.Inf(-1)
	}
	weighted := slices.Clone(samples)
	KWeighting(sampleRate).Apply(weighted)

	step := max(1, int(float64(block)*(1-blockOverlap)))
	var powers []float64
	for start := 0; start+block <= len(weighted); start += step {
		powers = append(powers, Power(weighted[start:start+block]))
	}

	gated := gateMean(powers, func(z float64) bool { return blockLoudness(z) > absoluteGateLUFS })
	if math.IsNaN(gated) {
		return math.Inf(-1)
	}
	relative := blockLoudness(gated) + relativeGateLU
	final := gateMean(powers, func(z float64) bool {
		l := blockLoudness(z)
		return l > absoluteGateLUFS && l > relative
	})
	if math.IsNaN(final) {
		return math.Inf(-1)
	}
	return blockLoudness(final)
}

func blockLoudness(power float64) float64 {
	if power <= 0 {
		return math.Inf(-1)
	}
	return -0.691 + 10*math.Log10(power)
}

func gateMean(powers []float64, keep func(float64) bool) float64 {
	sum, n := 0.0, 0
	for _, p := range powers {
		if keep(p) {
			sum += p
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// LoudnessGain returns the linear gain moving current to target.
func LoudnessGain(current, target float64) float64 {
	return math.Pow(10, (target-current)/20)
}
