package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// STFT performs centered short-time Fourier analysis and overlap-add
// resynthesis with a periodic Hann window. An STFT holds FFT work buffers
// and must not be shared between goroutines.
type STFT struct {
	Size     int
	Hop      int
	window   []float64
	fft      *fourier.FFT
	invScale float64
}

// NewSTFT returns an analyzer with frames of size samples advanced by hop.
func NewSTFT(size, hop int) *STFT {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}
	fft := fourier.NewFFT(size)

	// Sequence does not normalize; measure its gain once.
	probe := make([]float64, size)
	probe[0] = 1
	back := fft.Sequence(nil, fft.Coefficients(nil, probe))
	invScale := 1.0
	if back[0] != 0 {
		invScale = 1 / back[0]
	}
	return &STFT{Size: size, Hop: hop, window: window, fft: fft, invScale: invScale}
}

// Bins returns the number of non-negative frequency bins per frame.
func (s *STFT) Bins() int {
	return s.Size/2 + 1
}

// BinFrequency returns the center frequency of bin k in Hz.
func (s *STFT) BinFrequency(k, sampleRate int) float64 {
	return float64(k) * float64(sampleRate) / float64(s.Size)
}

// Forward returns one spectrum per frame. The signal is zero padded by half
// a frame on each side so frame t is centered on sample t*Hop.
func (s *STFT) Forward(samples []float64) [][]complex128 {
	half := s.Size / 2
	padded := make([]float64, len(samples)+2*half)
	copy(padded[half:], samples)

	frames := 1 + (len(padded)-s.Size)/s.Hop
	if len(padded) < s.Size {
		frames = 0
	}
	out := make([][]complex128, frames)
	buf := make([]float64, s.Size)
	for t := range frames {
		start := t * s.Hop
		for i := range buf {
			buf[i] = padded[start+i] * s.window[i]
		}
		out[t] = s.fft.Coefficients(nil, buf)
	}
	return out
}

// Inverse resynthesizes frames produced by Forward (possibly modified) into
// a signal of the given length.
func (s *STFT) Inverse(frames [][]complex128, length int) []float64 {
	half := s.Size / 2
	total := s.Size + max(0, len(frames)-1)*s.Hop
	acc := make([]float64, total)
	norm := make([]float64, total)
	buf := make([]float64, s.Size)
	for t, spectrum := range frames {
		s.fft.Sequence(buf, spectrum)
		start := t * s.Hop
		for i, v := range buf {
			acc[start+i] += v * s.invScale * s.window[i]
			norm[start+i] += s.window[i] * s.window[i]
		}
	}
	out := make([]float64, length)
	for i := range out {
		j := i + half
		if j >= total {
			break
		}
		if norm[j] > 1e-10 {
			out[i] = acc[j] / norm[j]
		}
	}
	return out
}

// Magnitudes returns |X| for every frame and bin.
func Magnitudes(frames [][]complex128) [][]float64 {
	out := make([][]float64, len(frames))
	for t, spectrum := range frames {
		row := make([]float64, len(spectrum))
		for k, c := range spectrum {
			row[k] = cmplx.Abs(c)
		}
		out[t] = row
	}
	return out
}
