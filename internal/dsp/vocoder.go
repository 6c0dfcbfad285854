package dsp

import (
	"math"
	"math/cmplx"
	"slices"
)

const (
	vocoderSize = 1024
	vocoderHop  = 256
)

// TimeStretch changes tempo by rate (>1 faster, <1 slower) without
// changing pitch, using a phase vocoder. The output has about
// len(samples)/rate samples.
func TimeStretch(samples []float64, rate float64) []float64 {
	if rate <= 0 || rate == 1 || len(samples) < vocoderSize {
		return slices.Clone(samples)
	}
	stft := NewSTFT(vocoderSize, vocoderHop)
	frames := stft.Forward(samples)
	bins := stft.Bins()

	advance := make([]float64, bins)
	for k := range advance {
		advance[k] = 2 * math.Pi * float64(k) * float64(vocoderHop) / float64(vocoderSize)
	}
	// A trailing silent frame lets interpolation read one past the end.
	frames = append(frames, make([]complex128, bins))

	phase := make([]float64, bins)
	for k := range phase {
		phase[k] = cmplx.Phase(frames[0][k])
	}

	var out [][]complex128
	for step := 0.0; step < float64(len(frames)-1); step += rate {
		i := int(step)
		frac := step - float64(i)
		left, right := frames[i], frames[i+1]
		spectrum := make([]complex128, bins)
		for k := range bins {
			mag := (1-frac)*cmplx.Abs(left[k]) + frac*cmplx.Abs(right[k])
			spectrum[k] = cmplx.Rect(mag, phase[k])

			delta := cmplx.Phase(right[k]) - cmplx.Phase(left[k]) - advance[k]
			delta -= 2 * math.Pi * math.Round(delta/(2*math.Pi))
			phase[k] += advance[k] + delta
		}
		out = append(out, spectrum)
	}
	length := int(math.Round(float64(len(samples)) / rate))
	return stft.Inverse(out, length)
}

// PitchShift moves pitch by semitones while keeping the duration: the clip
// is stretched by the pitch ratio and then resampled back to its original
// length.
func PitchShift(samples []float64, semitones float64) []float64 {
	if semitones == 0 || len(samples) < vocoderSize {
		return slices.Clone(samples)
	}
	ratio := math.Pow(2, semitones/12)
	stretched := TimeStretch(samples, 1/ratio)
	return resampleLinear(stretched, len(samples))
}

func resampleLinear(samples []float64, length int) []float64 {
	out := make([]float64, length)
	if len(samples) == 0 || length == 0 {
		return out
	}
	if length == 1 {
		out[0] = samples[0]
		return out
	}
	scale := float64(len(samples)-1) / float64(length-1)
	for i := range out {
		pos := float64(i) * scale
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
