package dsp

import (
	"math"
)

// FloorDB is reported for levels of digital silence.
const FloorDB = -100.0

// SNRCeilingDB is reported when the estimated noise floor is exactly zero.
const SNRCeilingDB = 100.0

// SNRFrameSeconds is the frame length used to find the noise floor.
const SNRFrameSeconds = 0.1

// Power returns the mean square of samples.
func Power(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return sum / float64(len(samples))
}

// RMS returns the root mean square of samples.
func RMS(samples []float64) float64 {
	return math.Sqrt(Power(samples))
}

// AmplitudeDB converts a linear amplitude to decibels, returning FloorDB for
// zero.
func AmplitudeDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return FloorDB
	}
	return 20 * math.Log10(amplitude)
}

// DBToAmplitude converts decibels to a linear amplitude.
func DBToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

// EstimateSNR returns the signal-to-noise ratio in dB. Signal power is the
// mean square of the whole clip; noise power is the lowest mean square among
// non-overlapping 100 ms frames. Clips shorter than one frame use a tenth of
// the signal power as noise (10 dB), and a zero noise floor yields
// SNRCeilingDB.
//
// The estimator is biased upward for clips that contain any near-silent
// frame and is kept as is because quality thresholds are tuned against it.
func EstimateSNR(samples []float64, sampleRate int) float64 {
	signal := Power(samples)
	frame := int(SNRFrameSeconds * float64(sampleRate))
	var noise float64
	if frame <= 0 || len(samples) < frame {
		noise = signal * 0.1
	} else {
		noise = math.Inf(1)
		for start := 0; start+frame <= len(samples); start += frame {
			if p := Power(samples[start : start+frame]); p < noise {
				noise = p
			}
		}
	}
	if noise <= 0 {
		return SNRCeilingDB
	}
	return 10 * math.Log10(signal/noise)
}
