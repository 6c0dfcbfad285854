package quality

import (
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"audiocorpus/internal/fileutil"
)

// Report aggregates verdicts. The zero value is an empty report; Observe and
// Merge return new values and never modify their receivers.
type Report struct {
	Total    int
	Valid    int
	Invalid  int
	Reasons  map[string]int
	Measured int
	MeanSNR  float64
	MinSNR   float64
	MaxSNR   float64
	// MeanDuration averages measured clips.
	MeanDuration float64
}

// Observe folds one verdict into the report using the running mean
// new = ((n-1)*old + x) / n.
func (r Report) Observe(v Verdict) Report {
	out := r
	out.Reasons = maps.Clone(r.Reasons)
	if out.Reasons == nil {
		out.Reasons = map[string]int{}
	}
	out.Total++
	if v.Accepted() {
		out.Valid++
	} else {
		out.Invalid++
		for _, reason := range v.Reasons {
			out.Reasons[reason]++
		}
	}
	if !v.Measured {
		return out
	}
	snr := v.SNR
	out.Measured++
	n := float64(out.Measured)
	if out.Measured == 1 {
		out.MinSNR, out.MaxSNR = snr, snr
	} else {
		out.MinSNR = math.Min(out.MinSNR, snr)
		out.MaxSNR = math.Max(out.MaxSNR, snr)
	}
	out.MeanSNR = ((n-1)*r.MeanSNR + snr) / n
	out.MeanDuration = ((n-1)*r.MeanDuration + v.Duration) / n
	return out
}

// Merge combines two reports with count-weighted means.
func Merge(a, b Report) Report {
	out := Report{
		Total:    a.Total + b.Total,
		Valid:    a.Valid + b.Valid,
		Invalid:  a.Invalid + b.Invalid,
		Reasons:  map[string]int{},
		Measured: a.Measured + b.Measured,
	}
	for _, src := range []map[string]int{a.Reasons, b.Reasons} {
		for k, v := range src {
			out.Reasons[k] += v
		}
	}
	switch {
	case a.Measured == 0:
		out.MeanSNR, out.MinSNR, out.MaxSNR, out.MeanDuration = b.MeanSNR, b.MinSNR, b.MaxSNR, b.MeanDuration
	case b.Measured == 0:
		out.MeanSNR, out.MinSNR, out.MaxSNR, out.MeanDuration = a.MeanSNR, a.MinSNR, a.MaxSNR, a.MeanDuration
	default:
		wa, wb := float64(a.Measured), float64(b.Measured)
		out.MeanSNR = (wa*a.MeanSNR + wb*b.MeanSNR) / (wa + wb)
		out.MeanDuration = (wa*a.MeanDuration + wb*b.MeanDuration) / (wa + wb)
		out.MinSNR = math.Min(a.MinSNR, b.MinSNR)
		out.MaxSNR = math.Max(a.MaxSNR, b.MaxSNR)
	}
	return out
}

// ValidPercent returns the accepted share of all checked clips.
func (r Report) ValidPercent() float64 {
	return percent(r.Valid, r.Total)
}

// ReasonNames returns rejection reasons sorted by descending count.
func (r Report) ReasonNames() []string {
	names := slices.Collect(maps.Keys(r.Reasons))
	slices.SortFunc(names, func(a, b string) int {
		if r.Reasons[a] != r.Reasons[b] {
			return r.Reasons[b] - r.Reasons[a]
		}
		return strings.Compare(a, b)
	})
	return names
}

func percent(n, total int) float64 {
	return float64(n) / float64(max(1, total)) * 100
}

// Text renders the report as plain text.
func (r Report) Text() string {
	var b strings.Builder
	b.WriteString("Audio processing quality report\n")
	b.WriteString(strings.Repeat("=", 80) + "\n\n")
	fmt.Fprintf(&b, "Segments checked: %d\n", r.Total)
	fmt.Fprintf(&b, "Valid segments: %d (%.2f%%)\n", r.Valid, r.ValidPercent())
	fmt.Fprintf(&b, "Invalid segments: %d (%.2f%%)\n\n", r.Invalid, percent(r.Invalid, r.Total))
	b.WriteString("Rejection reasons:\n")
	for _, reason := range r.ReasonNames() {
		count := r.Reasons[reason]
		fmt.Fprintf(&b, "  - %s: %d segments (%.2f%% of rejects)\n", reason, count, percent(count, r.Invalid))
	}
	fmt.Fprintf(&b, "\nMean SNR: %.2f dB\n", r.MeanSNR)
	fmt.Fprintf(&b, "Minimum SNR: %.2f dB\n", r.MinSNR)
	fmt.Fprintf(&b, "Maximum SNR: %.2f dB\n", r.MaxSNR)
	fmt.Fprintf(&b, "Mean duration: %.2f s\n", r.MeanDuration)
	return b.String()
}

// WriteReport writes the report text to path atomically.
func WriteReport(path string, r Report) error {
	return fileutil.WriteAtomic(path, func(f *os.File) error {
		_, err := f.WriteString(r.Text())
		return err
	})
}

// Sample returns up to n exported files chosen with a generator seeded by
// seed, in draw order.
func Sample(files []string, n int, seed int64) []string {
	if n <= 0 || len(files) == 0 {
		return nil
	}
	sorted := slices.Sorted(slices.Values(files))
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(len(sorted))))
	perm := rng.Perm(len(sorted))
	out := make([]string, 0, min(n, len(sorted)))
	for _, idx := range perm[:min(n, len(sorted))] {
		out = append(out, sorted[idx])
	}
	return out
}

// WriteSampleReport writes the manual review list to path.
func WriteSampleReport(path string, sample []string) error {
	return fileutil.WriteAtomic(path, func(f *os.File) error {
		var b strings.Builder
		fmt.Fprintf(&b, "Random sample for manual review (%d files)\n", len(sample))
		b.WriteString(strings.Repeat("=", 80) + "\n\n")
		for i, file := range sample {
			fmt.Fprintf(&b, "%d. %s\n", i+1, file)
		}
		_, err := f.WriteString(b.String())
		return err
	})
}
