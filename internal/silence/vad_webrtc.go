//go:build cgo

package silence

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/dsp"
)

// WebRTCDetector classifies fixed frames with the WebRTC VAD.
type WebRTCDetector struct {
	Mode         int
	FrameMS      int
	MinSilenceMS int
}

// Detect implements Detector. Inputs at unsupported rates are resampled to
// the nearest supported rate for classification only.
func (d WebRTCDetector) Detect(samples []float64, sampleRate int) ([]dsp.Span, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create webrtc vad: %w", err)
	}
	if err := vad.SetMode(d.Mode); err != nil {
		return nil, fmt.Errorf("set vad mode: %w", err)
	}

	rate := nearestVADRate(sampleRate)
	work := resampleFor(samples, sampleRate, rate)
	frame := rate * d.FrameMS / 1000
	if !vad.ValidRateAndFrameLength(rate, frame) {
		return nil, fmt.Errorf("vad rejects %d Hz with %d ms frames", rate, d.FrameMS)
	}

	pcm := audio.PCM16(work)
	frames := len(work) / frame
	voiced := make([]bool, frames)
	for i := range frames {
		active, err := vad.Process(rate, pcm[i*frame*2:(i+1)*frame*2])
		if err != nil {
			return nil, fmt.Errorf("vad frame %d: %w", i, err)
		}
		voiced[i] = active
	}
	spans := framesToSpans(voiced, frame, len(work))
	spans = mergeGaps(spans, d.MinSilenceMS*rate/1000)
	return rescale(spans, rate, sampleRate, len(samples)), nil
}
