package audio

import (
	"math"
)

// Clip is a mono buffer of normalized samples.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// NewClip wraps samples recorded at rate.
func NewClip(samples []float64, rate int) *Clip {
	return &Clip{Samples: samples, SampleRate: rate}
}

// Len returns the number of samples.
func (c *Clip) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Samples)
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Clone returns a deep copy.
func (c *Clip) Clone() *Clip {
	if c == nil {
		return nil
	}
	return &Clip{Samples: append([]float64(nil), c.Samples...), SampleRate: c.SampleRate}
}

// Index converts seconds to a sample index clamped to the clip bounds.
func (c *Clip) Index(seconds float64) int {
	idx := int(math.Round(seconds * float64(c.SampleRate)))
	return max(0, min(idx, len(c.Samples)))
}

// Slice returns the samples between start and end seconds as a new clip
// sharing no memory with c.
func (c *Clip) Slice(start, end float64) *Clip {
	lo, hi := c.Index(start), c.Index(end)
	if hi < lo {
		hi = lo
	}
	return &Clip{Samples: append([]float64(nil), c.Samples[lo:hi]...), SampleRate: c.SampleRate}
}

// Concat joins parts into one clip at rate.
func Concat(rate int, parts ...[]float64) *Clip {
	total := 0
	for _, part := range parts {
		total += len(part)
	}
	out := make([]float64, 0, total)
	for _, part := range parts {
		out = append(out, part...)
	}
	return &Clip{Samples: out, SampleRate: rate}
}

// Peak returns the largest absolute sample value.
func Peak(samples []float64) float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// Scale multiplies every sample by gain in place.
func Scale(samples []float64, gain float64) {
	for i := range samples {
		samples[i] *= gain
	}
}

// Limit hard-clips samples to [-ceiling, ceiling] in place and returns how
// many samples were clipped.
func Limit(samples []float64, ceiling float64) int {
	clipped := 0
	for i, s := range samples {
		switch {
		case s > ceiling:
			samples[i] = ceiling
			clipped++
		case s < -ceiling:
			samples[i] = -ceiling
			clipped++
		}
	}
	return clipped
}

// PeakNormalize scales samples so the peak equals target and returns the
// gain applied. Silent input is left unchanged with gain 1.
func PeakNormalize(samples []float64, target float64) float64 {
	peak := Peak(samples)
	if peak == 0 {
		return 1
	}
	gain := target / peak
	Scale(samples, gain)
	return gain
}

// Downmix averages interleaved frames of the given channel count into mono.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return append([]float64(nil), interleaved...)
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for f := range frames {
		sum := 0.0
		base := f * channels
		for ch := range channels {
			sum += interleaved[base+ch]
		}
		out[f] = sum / float64(channels)
	}
	return out
}

// PCM16 encodes samples as little-endian signed 16-bit PCM bytes.
func PCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(math.Round(clamp(s) * math.MaxInt16))
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

// Float32 converts samples to float32.
func Float32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s)
	}
	return out
}

func clamp(s float64) float64 {
	return max(-1, min(1, s))
}
