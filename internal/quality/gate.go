package quality

import (
	"path/filepath"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/config"
	"audiocorpus/internal/dsp"
)

// Rejection reasons.
const (
	ReasonTooShort          = "too_short"
	ReasonTooLong           = "too_long"
	ReasonLowSNR            = "low_snr"
	ReasonMarkedProblematic = "marked_problematic"
	ReasonCheckError        = "error_during_check"
)

// Verdict is the gate decision for one clip.
type Verdict struct {
	File     string   `json:"file"`
	Duration float64  `json:"duration"`
	SNR      float64  `json:"snr"`
	Measured bool     `json:"measured"`
	Reasons  []string `json:"rejection_reasons"`
	Error    string   `json:"error,omitempty"`
}

// Accepted reports whether the clip has no rejection reason.
func (v Verdict) Accepted() bool { return len(v.Reasons) == 0 }

// Gate holds the acceptance thresholds.
type Gate struct {
	MinSNR      float64
	MinDuration float64
	MaxDuration float64
}

// NewGate returns the gate configured by cfg.
func NewGate(cfg config.Quality) Gate {
	return Gate{MinSNR: cfg.MinSNR, MinDuration: cfg.MinDuration, MaxDuration: cfg.MaxDuration}
}

// Evaluate applies every predicate and collects all failing reasons.
func (g Gate) Evaluate(file string, duration, snr float64, problematic bool) Verdict {
	v := Verdict{File: filepath.Base(file), Duration: duration, SNR: snr, Measured: true, Reasons: []string{}}
	switch {
	case duration < g.MinDuration:
		v.Reasons = append(v.Reasons, ReasonTooShort)
	case duration > g.MaxDuration:
		v.Reasons = append(v.Reasons, ReasonTooLong)
	}
	if snr < g.MinSNR {
		v.Reasons = append(v.Reasons, ReasonLowSNR)
	}
	if problematic {
		v.Reasons = append(v.Reasons, ReasonMarkedProblematic)
	}
	return v
}

// Check measures the clip at path and evaluates it. A clip that cannot be
// decoded is rejected with error_during_check.
func (g Gate) Check(path string, problematic bool) Verdict {
	clip, _, err := audio.ReadWAV(path)
	if err != nil {
		return Verdict{File: filepath.Base(path), Reasons: []string{ReasonCheckError}, Error: err.Error()}
	}
	return g.Evaluate(path, clip.Duration(), dsp.EstimateSNR(clip.Samples, clip.SampleRate), problematic)
}
