//go:build !cgo

package silence

import (
	"fmt"

	"audiocorpus/internal/dsp"
)

// WebRTCDetector is unavailable without cgo.
type WebRTCDetector struct {
	Mode         int
	FrameMS      int
	MinSilenceMS int
}

// Detect always fails without cgo.
func (WebRTCDetector) Detect([]float64, int) ([]dsp.Span, error) {
	return nil, fmt.Errorf("%w: webrtcvad requires cgo", ErrDetectorUnavailable)
}
