//go:build !cgo

package silence

import (
	"fmt"

	"audiocorpus/internal/dsp"
)

// SileroDetector is unavailable without cgo.
type SileroDetector struct {
	ModelPath    string
	Threshold    float64
	MinSilenceMS int
}

// Detect always fails without cgo.
func (SileroDetector) Detect([]float64, int) ([]dsp.Span, error) {
	return nil, fmt.Errorf("%w: silero requires cgo", ErrDetectorUnavailable)
}
