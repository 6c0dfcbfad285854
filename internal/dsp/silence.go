package dsp

// Span is a half-open sample range.
type Span struct {
	Start int
	End   int
}

// Len returns the number of samples covered.
func (s Span) Len() int {
	return s.End - s.Start
}

// Seconds converts the span to start and end times.
func (s Span) Seconds(sampleRate int) (float64, float64) {
	rate := float64(sampleRate)
	return float64(s.Start) / rate, float64(s.End) / rate
}

// SilenceParams configures energy-based silence detection.
type SilenceParams struct {
	ThresholdDB  float64
	MinSilenceMS int
	StepMS       int
}

// NonSilent returns the spans between silences. A silence is a run of at
// least MinSilenceMS during which the RMS level of each StepMS window stays
// below ThresholdDB (dBFS). A clip with no qualifying silence yields one
// span covering everything; an all-silent clip yields none.
func NonSilent(samples []float64, sampleRate int, p SilenceParams) []Span {
	step := max(1, p.StepMS*sampleRate/1000)
	if p.StepMS <= 0 {
		step = max(1, sampleRate/100)
	}
	minSilence := max(step, p.MinSilenceMS*sampleRate/1000)
	if len(samples) == 0 {
		return nil
	}

	// Mark silent windows, then keep only silent runs that are long enough.
	windows := (len(samples) + step - 1) / step
	silent := make([]bool, windows)
	for w := range windows {
		start := w * step
		end := min(start+step, len(samples))
		silent[w] = AmplitudeDB(RMS(samples[start:end])) < p.ThresholdDB
	}

	var silences []Span
	for w := 0; w < windows; {
		if !silent[w] {
			w++
			continue
		}
		run := w
		for run < windows && silent[run] {
			run++
		}
		span := Span{Start: w * step, End: min(run*step, len(samples))}
		if span.Len() >= minSilence {
			silences = append(silences, span)
		}
		w = run
	}

	var spans []Span
	cursor := 0
	for _, s := range silences {
		if s.Start > cursor {
			spans = append(spans, Span{Start: cursor, End: s.Start})
		}
		cursor = s.End
	}
	if cursor < len(samples) {
		spans = append(spans, Span{Start: cursor, End: len(samples)})
	}
	return spans
}

// Pad widens every span by padSamples on both sides, clamped to [0, n), and
// merges spans that come to overlap.
func Pad(spans []Span, padSamples, n int) []Span {
	var out []Span
	for _, s := range spans {
		padded := Span{Start: max(0, s.Start-padSamples), End: min(n, s.End+padSamples)}
		if len(out) > 0 && padded.Start <= out[len(out)-1].End {
			out[len(out)-1].End = max(out[len(out)-1].End, padded.End)
			continue
		}
		out = append(out, padded)
	}
	return out
}
