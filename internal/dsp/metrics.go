package dsp

import (
	"math"
)

// Metrics is a quality snapshot of one clip.
type Metrics struct {
	SNR              float64
	RMS              float64
	RMSDB            float64
	Peak             float64
	PeakDB           float64
	SpectralCentroid float64
	SpectralRolloff  float64
	SpectralFlux     float64
	LoudnessLUFS     float64
	HasSpectral      bool
}

// Measure computes SNR, level, spectral and loudness metrics.
func Measure(samples []float64, sampleRate int) Metrics {
	m := Metrics{
		SNR: EstimateSNR(samples, sampleRate),
		RMS: RMS(samples),
	}
	m.RMSDB = AmplitudeDB(m.RMS)
	for _, s := range samples {
		m.Peak = math.Max(m.Peak, math.Abs(s))
	}
	m.PeakDB = AmplitudeDB(m.Peak)
	if features, ok := Spectral(samples, sampleRate); ok {
		m.HasSpectral = true
		m.SpectralCentroid = features.Centroid
		m.SpectralRolloff = features.Rolloff
		m.SpectralFlux = features.Flux
		m.LoudnessLUFS = IntegratedLoudness(samples, sampleRate, 0.4)
	}
	return m
}

// Map renders the snapshot as a details document. Non-finite values are
// replaced by FloorDB so the document stays JSON-encodable.
func (m Metrics) Map() map[string]any {
	out := map[string]any{
		"snr":     finite(m.SNR),
		"rms":     m.RMS,
		"rms_db":  m.RMSDB,
		"peak":    m.Peak,
		"peak_db": m.PeakDB,
	}
	if m.HasSpectral {
		out["spectral_centroid"] = finite(m.SpectralCentroid)
		out["spectral_rolloff"] = finite(m.SpectralRolloff)
		out["spectral_flux"] = finite(m.SpectralFlux)
		out["loudness_lufs"] = finite(m.LoudnessLUFS)
	}
	return out
}

// Finite replaces NaN and infinities with FloorDB.
func Finite(v float64) float64 {
	return finite(v)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return FloorDB
	}
	return v
}
