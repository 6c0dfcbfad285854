package segment

import (
	"math"

	"audiocorpus/internal/dsp"
)

// Methods.
const (
	MethodFixed    = "fixed"
	MethodSilence  = "silence"
	MethodAdaptive = "adaptive"
)

// Params are segmentation parameters in samples.
type Params struct {
	Target     int
	MinLength  int
	MaxLength  int
	MinSilence int
	Pad        int
}

// Fixed slices n samples into Target-length windows, dropping a trailing
// window shorter than MinLength.
func Fixed(n int, p Params) []dsp.Span {
	if p.Target <= 0 {
		return nil
	}
	var spans []dsp.Span
	for start := 0; start < n; start += p.Target {
		span := dsp.Span{Start: start, End: min(start+p.Target, n)}
		if span.Len() >= p.MinLength {
			spans = append(spans, span)
		}
	}
	return spans
}

// FromSpeech pads each speech span and drops those shorter than MinLength.
func FromSpeech(speech []dsp.Span, n int, p Params) []dsp.Span {
	var out []dsp.Span
	for _, s := range speech {
		if padded := pad(s, n, p.Pad); padded.Len() >= p.MinLength {
			out = append(out, padded)
		}
	}
	return out
}

func pad(s dsp.Span, n, by int) dsp.Span {
	return dsp.Span{Start: max(0, s.Start-by), End: min(n, s.End+by)}
}

// Adaptive merges speech spans shorter than Target into the next span when
// the gap between them is under twice MinSilence and pads the result. Padded
// spans longer than MaxLength are split into contiguous near-equal chunks of
// at most Target, so only the outer edges of a split span carry padding.
// Spans shorter than MinLength are dropped. With no speech at all it falls
// back to Fixed and reports fallback.
func Adaptive(speech []dsp.Span, n int, p Params) (spans []dsp.Span, fallback bool) {
	if len(speech) == 0 {
		return Fixed(n, p), true
	}

	merged := []dsp.Span{speech[0]}
	for _, next := range speech[1:] {
		cur := &merged[len(merged)-1]
		if cur.Len() < p.Target && next.Start-cur.End < 2*p.MinSilence {
			cur.End = next.End
			continue
		}
		merged = append(merged, next)
	}

	keep := func(s dsp.Span) {
		if s.Len() >= p.MinLength {
			spans = append(spans, s)
		}
	}
	for _, s := range merged {
		s = pad(s, n, p.Pad)
		if s.Len() <= p.MaxLength || p.Target <= 0 {
			keep(s)
			continue
		}
		chunks := int(math.Ceil(float64(s.Len()) / float64(p.Target)))
		size := float64(s.Len()) / float64(chunks)
		for i := range chunks {
			chunk := dsp.Span{
				Start: s.Start + int(float64(i)*size),
				End:   s.Start + int(float64(i+1)*size),
			}
			if i == chunks-1 {
				chunk.End = s.End
			}
			keep(chunk)
		}
	}
	return spans, false
}
