package metadata

import "math"

// SplitSummary describes one split.
type SplitSummary struct {
	Name          string   `json:"name"`
	Segments      int      `json:"n_segments"`
	Speakers      int      `json:"n_speakers"`
	TotalDuration float64  `json:"total_duration"`
	MeanDuration  float64  `json:"avg_segment_duration"`
	MinDuration   float64  `json:"min_segment_duration"`
	MaxDuration   float64  `json:"max_segment_duration"`
	MeanSNR       *float64 `json:"avg_snr,omitempty"`
	MinSNR        *float64 `json:"min_snr,omitempty"`
	MaxSNR        *float64 `json:"max_snr,omitempty"`
	SpeakerIDs    []string `json:"speakers"`
}

// Summarize computes per-split statistics in SplitNames order. SNR figures
// are present only when at least one row carries a measured SNR.
func Summarize(splits map[string][]Row) []SplitSummary {
	out := make([]SplitSummary, 0, len(SplitNames))
	for _, name := range SplitNames {
		out = append(out, summarize(name, splits[name]))
	}
	return out
}

func summarize(name string, rows []Row) SplitSummary {
	s := SplitSummary{Name: name, Segments: len(rows), SpeakerIDs: []string{}}
	seen := map[string]bool{}
	var snrSum float64
	snrCount := 0
	minSNR, maxSNR := math.Inf(1), math.Inf(-1)
	for i, row := range rows {
		if !seen[row.SpeakerID] {
			seen[row.SpeakerID] = true
			s.SpeakerIDs = append(s.SpeakerIDs, row.SpeakerID)
		}
		s.TotalDuration += row.Duration
		if i == 0 || row.Duration < s.MinDuration {
			s.MinDuration = row.Duration
		}
		if i == 0 || row.Duration > s.MaxDuration {
			s.MaxDuration = row.Duration
		}
		if row.SNR != nil {
			snrSum += *row.SNR
			snrCount++
			minSNR = math.Min(minSNR, *row.SNR)
			maxSNR = math.Max(maxSNR, *row.SNR)
		}
	}
	s.Speakers = len(s.SpeakerIDs)
	if len(rows) > 0 {
		s.MeanDuration = s.TotalDuration / float64(len(rows))
	}
	if snrCount > 0 {
		mean := snrSum / float64(snrCount)
		s.MeanSNR, s.MinSNR, s.MaxSNR = &mean, &minSNR, &maxSNR
	}
	return s
}
