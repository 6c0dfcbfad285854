//go:build cgo

package silence

import (
	"fmt"
	"math"

	"github.com/streamer45/silero-vad-go/speech"

	"audiocorpus/internal/audio"
	"audiocorpus/internal/dsp"
)

const sileroRate = 16000

// SileroDetector runs the Silero ONNX model.
type SileroDetector struct {
	ModelPath    string
	Threshold    float64
	MinSilenceMS int
}

// Detect implements Detector.
func (d SileroDetector) Detect(samples []float64, sampleRate int) ([]dsp.Span, error) {
	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            d.ModelPath,
		SampleRate:           sileroRate,
		Threshold:            float32(d.Threshold),
		MinSilenceDurationMs: d.MinSilenceMS,
		SpeechPadMs:          0,
		LogLevel:             speech.LogLevelError,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create silero detector: %w", ErrDetectorUnavailable, err)
	}
	defer detector.Destroy()

	work := resampleFor(samples, sampleRate, sileroRate)
	segments, err := detector.Detect(audio.Float32(work))
	if err != nil {
		return nil, fmt.Errorf("silero detect: %w", err)
	}
	total := float64(len(work)) / sileroRate
	spans := make([]dsp.Span, 0, len(segments))
	for _, seg := range segments {
		end := seg.SpeechEndAt
		if end <= 0 {
			end = total
		}
		start := int(math.Floor(seg.SpeechStartAt * sileroRate))
		stop := min(len(work), int(math.Ceil(end*sileroRate)))
		if stop > start {
			spans = append(spans, dsp.Span{Start: start, End: stop})
		}
	}
	return rescale(spans, sileroRate, sampleRate, len(samples)), nil
}
