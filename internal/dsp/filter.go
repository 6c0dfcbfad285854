package dsp

import (
	"fmt"
	"math"
	"slices"
)

// Biquad is a second-order IIR section with a0 normalized to 1.
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

func newBiquad(b0, b1, b2, a0, a1, a2 float64) Biquad {
	return Biquad{B0: b0 / a0, B1: b1 / a0, B2: b2 / a0, A1: a1 / a0, A2: a2 / a0}
}

// Apply filters samples in place (transposed direct form II).
func (q Biquad) Apply(samples []float64) {
	var z1, z2 float64
	for i, x := range samples {
		y := q.B0*x + z1
		z1 = q.B1*x - q.A1*y + z2
		z2 = q.B2*x - q.A2*y
		samples[i] = y
	}
}

// Cascade is a series of sections applied in order.
type Cascade []Biquad

// Apply filters samples in place through every section.
func (c Cascade) Apply(samples []float64) {
	for _, section := range c {
		section.Apply(samples)
	}
}

// FiltFilt applies c forward and backward, cancelling the phase response,
// and returns a new slice of the same length. The signal is padded with an
// odd reflection at both ends to suppress start-up transients.
func (c Cascade) FiltFilt(samples []float64) []float64 {
	if len(samples) == 0 || len(c) == 0 {
		return slices.Clone(samples)
	}
	pad := min(3*(2*len(c)+1), len(samples)-1)
	ext := make([]float64, 0, len(samples)+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*samples[0]-samples[i])
	}
	ext = append(ext, samples...)
	last := samples[len(samples)-1]
	for i := 1; i <= pad; i++ {
		ext = append(ext, 2*last-samples[len(samples)-1-i])
	}

	c.Apply(ext)
	slices.Reverse(ext)
	c.Apply(ext)
	slices.Reverse(ext)
	return slices.Clone(ext[pad : pad+len(samples)])
}

// ButterworthLowpass designs an order-n lowpass at cutoff Hz.
func ButterworthLowpass(order int, cutoff float64, sampleRate int) (Cascade, error) {
	return butterworth(order, cutoff, sampleRate, false)
}

// ButterworthHighpass designs an order-n highpass at cutoff Hz.
func ButterworthHighpass(order int, cutoff float64, sampleRate int) (Cascade, error) {
	return butterworth(order, cutoff, sampleRate, true)
}

func butterworth(order int, cutoff float64, sampleRate int, highpass bool) (Cascade, error) {
	nyquist := float64(sampleRate) / 2
	if order < 1 {
		return nil, fmt.Errorf("butterworth order must be >= 1, got %d", order)
	}
	if cutoff <= 0 || cutoff >= nyquist {
		return nil, fmt.Errorf("butterworth cutoff %.1f Hz outside (0, %.1f)", cutoff, nyquist)
	}
	w0 := 2 * math.Pi * cutoff / float64(sampleRate)
	cosW, sinW := math.Cos(w0), math.Sin(w0)

	var sections Cascade
	for k := range order / 2 {
		q := 1 / (2 * math.Cos(math.Pi*float64(2*k+1)/float64(2*order)))
		alpha := sinW / (2 * q)
		if highpass {
			sections = append(sections, newBiquad((1+cosW)/2, -(1 + cosW), (1+cosW)/2, 1+alpha, -2*cosW, 1-alpha))
		} else {
			sections = append(sections, newBiquad((1-cosW)/2, 1-cosW, (1-cosW)/2, 1+alpha, -2*cosW, 1-alpha))
		}
	}
	if order%2 == 1 {
		// First-order section via the bilinear transform.
		k := math.Tan(w0 / 2)
		if highpass {
			sections = append(sections, newBiquad(1, -1, 0, 1+k, k-1, 0))
		} else {
			sections = append(sections, newBiquad(k, k, 0, 1+k, k-1, 0))
		}
	}
	return sections, nil
}
