package audio

import (
	"math"
)

// sincZeroCrossings sets the half-width of the interpolation kernel in
// zero crossings of the (possibly widened) sinc.
const sincZeroCrossings = 16

// Resample converts samples from one rate to another with a Hann-windowed
// sinc interpolator. When downsampling, the kernel is widened so it also acts
// as the anti-aliasing filter. The output length is round(n*to/from), so the
// duration is preserved to within one sample.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return append([]float64(nil), samples...)
	}
	ratio := float64(to) / float64(from)
	outLen := int(math.Round(float64(len(samples)) * ratio))
	out := make([]float64, outLen)

	cutoff := math.Min(1, ratio)
	halfWidth := float64(sincZeroCrossings) / cutoff
	for n := range out {
		t := float64(n) / ratio
		lo := int(math.Ceil(t - halfWidth))
		hi := int(math.Floor(t + halfWidth))
		lo = max(lo, 0)
		hi = min(hi, len(samples)-1)

		sum, weight := 0.0, 0.0
		for k := lo; k <= hi; k++ {
			x := t - float64(k)
			w := cutoff * sinc(cutoff*x) * hann(x/halfWidth)
			sum += samples[k] * w
			weight += w
		}
		if weight != 0 {
			// Normalizing by the kernel sum keeps DC gain at unity near edges.
			out[n] = sum / weight
		}
	}
	return out
}

// ResampleClip returns c converted to rate; c is returned as is when the
// rate already matches.
func ResampleClip(c *Clip, rate int) *Clip {
	if c == nil || c.SampleRate == rate {
		return c
	}
	return &Clip{Samples: Resample(c.Samples, c.SampleRate, rate), SampleRate: rate}
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hann(x float64) float64 {
	if x <= -1 || x >= 1 {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*x))
}
