package dsp_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"audiocorpus/internal/dsp"
)

const rate = 16000

func tone(freq, seconds, amp float64, sampleRate int) []float64 {
	out := make([]float64, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func noise(seconds, amp float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, int(seconds*rate))
	for i := range out {
		out[i] = amp * rng.NormFloat64()
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestEstimateSNR(t *testing.T) {
	withGap := concat(tone(440, 0.4, 0.5, rate), make([]float64, rate/10))
	if got := dsp.EstimateSNR(withGap, rate); got != dsp.SNRCeilingDB {
		t.Fatalf("silent frame should yield ceiling, got %v", got)
	}

	steady := tone(500, 1, 0.5, rate)
	if got := dsp.EstimateSNR(steady, rate); math.Abs(got) > 0.1 {
		t.Fatalf("steady tone should be about 0 dB, got %v", got)
	}

	short := tone(500, 0.05, 0.5, rate)
	if got := dsp.EstimateSNR(short, rate); math.Abs(got-10) > 1e-9 {
		t.Fatalf("sub-frame clip should be 10 dB, got %v", got)
	}
}

func TestIntegratedLoudnessReachesTargetAfterGain(t *testing.T) {
	samples := tone(1000, 3, 0.1, rate)
	before := dsp.IntegratedLoudness(samples, rate, 0.4)
	if math.IsInf(before, 0) {
		t.Fatal("expected finite loudness for a tone")
	}
	gain := dsp.LoudnessGain(before, -23)
	for i := range samples {
		samples[i] *= gain
	}
	after := dsp.IntegratedLoudness(samples, rate, 0.4)
	if math.Abs(after+23) > 0.01 {
		t.Fatalf("expected -23 LUFS after gain, got %v", after)
	}
}

func TestIntegratedLoudnessFullScaleSine(t *testing.T) {
	got := dsp.IntegratedLoudness(tone(997, 2, 1, 48000), 48000, 0.4)
	if math.Abs(got+3.01) > 0.5 {
		t.Fatalf("full scale 997 Hz sine should read about -3 LUFS, got %v", got)
	}
}

func TestIntegratedLoudnessSilenceAndShortClips(t *testing.T) {
	if got := dsp.IntegratedLoudness(make([]float64, rate), rate, 0.4); !math.IsInf(got, -1) {
		t.Fatalf("silence should be -Inf, got %v", got)
	}
	if got := dsp.IntegratedLoudness(tone(440, 0.2, 0.5, rate), rate, 0.4); !math.IsInf(got, -1) {
		t.Fatalf("clip shorter than a block should be -Inf, got %v", got)
	}
}

func middleRMS(samples []float64) float64 {
	q := len(samples) / 4
	return dsp.RMS(samples[q : len(samples)-q])
}

func TestButterworthLowpass(t *testing.T) {
	lp, err := dsp.ButterworthLowpass(4, 1000, rate)
	if err != nil {
		t.Fatalf("ButterworthLowpass: %v", err)
	}
	pass := tone(200, 1, 0.5, rate)
	filtered := lp.FiltFilt(pass)
	if ratio := middleRMS(filtered) / middleRMS(pass); math.Abs(ratio-1) > 0.02 {
		t.Fatalf("passband should be preserved, ratio %v", ratio)
	}
	stop := tone(4000, 1, 0.5, rate)
	filtered = lp.FiltFilt(stop)
	if db := dsp.AmplitudeDB(middleRMS(filtered) / middleRMS(stop)); db > -30 {
		t.Fatalf("stopband attenuation too small: %v dB", db)
	}
}

func TestButterworthHighpassRemovesRumble(t *testing.T) {
	hp, err := dsp.ButterworthHighpass(3, 300, rate)
	if err != nil {
		t.Fatalf("ButterworthHighpass: %v", err)
	}
	rumble := tone(40, 1, 0.5, rate)
	out := hp.FiltFilt(rumble)
	if db := dsp.AmplitudeDB(middleRMS(out) / middleRMS(rumble)); db > -30 {
		t.Fatalf("rumble should be attenuated, got %v dB", db)
	}
}

func TestButterworthRejectsBadCutoff(t *testing.T) {
	if _, err := dsp.ButterworthLowpass(4, 8000, rate); err == nil {
		t.Fatal("expected error for cutoff at nyquist")
	}
	if _, err := dsp.ButterworthHighpass(4, 0, rate); err == nil {
		t.Fatal("expected error for zero cutoff")
	}
}

func TestSTFTReconstructsSignal(t *testing.T) {
	signal := noise(0.5, 0.3, 7)
	stft := dsp.NewSTFT(512, 128)
	back := stft.Inverse(stft.Forward(signal), len(signal))
	if len(back) != len(signal) {
		t.Fatalf("length mismatch: %d vs %d", len(back), len(signal))
	}
	for i := range signal {
		if math.Abs(back[i]-signal[i]) > 1e-9 {
			t.Fatalf("sample %d differs: %v vs %v", i, back[i], signal[i])
		}
	}
}

func TestSpectralFeaturesOfTone(t *testing.T) {
	features, ok := dsp.Spectral(tone(1000, 1, 0.5, rate), rate)
	if !ok {
		t.Fatal("expected features for a 1 s clip")
	}
	if math.Abs(features.Centroid-1000) > 100 {
		t.Fatalf("centroid should sit near 1 kHz, got %v", features.Centroid)
	}
	if math.Abs(features.Rolloff-1000) > 100 {
		t.Fatalf("rolloff should sit near 1 kHz, got %v", features.Rolloff)
	}
	if _, ok := dsp.Spectral(make([]float64, 100), rate); ok {
		t.Fatal("expected no features for a tiny clip")
	}
}

func TestNonSilentFindsSpeechIslands(t *testing.T) {
	samples := concat(tone(300, 1, 0.5, rate), make([]float64, rate), tone(300, 1, 0.5, rate))
	spans := dsp.NonSilent(samples, rate, dsp.SilenceParams{ThresholdDB: -32, MinSilenceMS: 500, StepMS: 10})
	want := []dsp.Span{{Start: 0, End: rate}, {Start: 2 * rate, End: 3 * rate}}
	if len(spans) != len(want) {
		t.Fatalf("expected %d spans, got %+v", len(want), spans)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Fatalf("span %d: got %+v want %+v", i, spans[i], want[i])
		}
	}

	short := concat(tone(300, 1, 0.5, rate), make([]float64, rate/5), tone(300, 1, 0.5, rate))
	if spans := dsp.NonSilent(short, rate, dsp.SilenceParams{ThresholdDB: -32, MinSilenceMS: 500}); len(spans) != 1 {
		t.Fatalf("short gap should not split, got %+v", spans)
	}
	if spans := dsp.NonSilent(make([]float64, rate), rate, dsp.SilenceParams{ThresholdDB: -32, MinSilenceMS: 500}); len(spans) != 0 {
		t.Fatalf("silence should yield no spans, got %+v", spans)
	}
}

func TestPadMergesOverlaps(t *testing.T) {
	spans := dsp.Pad([]dsp.Span{{Start: 100, End: 200}, {Start: 250, End: 300}, {Start: 900, End: 990}}, 30, 1000)
	want := []dsp.Span{{Start: 70, End: 330}, {Start: 870, End: 1000}}
	if len(spans) != len(want) {
		t.Fatalf("got %+v", spans)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Fatalf("span %d: got %+v want %+v", i, spans[i], want[i])
		}
	}
}

func TestCompressorReducesDynamicRange(t *testing.T) {
	quiet := tone(300, 0.5, 0.05, rate)
	loud := tone(300, 0.5, 0.9, rate)
	in := concat(quiet, loud)
	out := dsp.DefaultCompressor().Apply(in, rate)

	peakIn, peakOut := 0.0, 0.0
	for i := range in {
		peakIn = math.Max(peakIn, math.Abs(in[i]))
		peakOut = math.Max(peakOut, math.Abs(out[i]))
	}
	if math.Abs(peakIn-peakOut) > 1e-9 {
		t.Fatalf("peak should be restored: in %v out %v", peakIn, peakOut)
	}
	n := len(quiet)
	before := dsp.RMS(in[n:]) / dsp.RMS(in[:n])
	after := dsp.RMS(out[n+rate/10:]) / dsp.RMS(out[:n])
	if after >= before/2 {
		t.Fatalf("expected loud/quiet ratio to shrink: before %v after %v", before, after)
	}
}

func TestStationaryNoiseReduction(t *testing.T) {
	hiss := noise(1, 0.01, 3)
	speech := tone(440, 1, 0.5, rate)
	mixed := concat(hiss, speech)
	for i, v := range noise(1, 0.01, 4) {
		mixed[rate+i] += v
	}

	out := dsp.DefaultNoiseReduction(true, 0.8).Reduce(mixed, rate)
	if len(out) != len(mixed) {
		t.Fatalf("length changed: %d vs %d", len(out), len(mixed))
	}
	region := func(s []float64) float64 { return dsp.RMS(s[rate/10 : rate-rate/10]) }
	if region(out) > 0.6*region(mixed) {
		t.Fatalf("noise-only region not reduced: %v -> %v", region(mixed), region(out))
	}
	toneIn := dsp.RMS(mixed[rate+rate/10 : 2*rate-rate/10])
	toneOut := dsp.RMS(out[rate+rate/10 : 2*rate-rate/10])
	if toneOut < 0.8*toneIn {
		t.Fatalf("tone should survive gating: %v -> %v", toneIn, toneOut)
	}
}

func TestTimeStretchAndPitchShiftLengths(t *testing.T) {
	samples := tone(300, 2, 0.5, rate)
	stretched := dsp.TimeStretch(samples, 1.25)
	if want := int(math.Round(float64(len(samples)) / 1.25)); len(stretched) != want {
		t.Fatalf("stretch length: got %d want %d", len(stretched), want)
	}
	shifted := dsp.PitchShift(samples, 2)
	if len(shifted) != len(samples) {
		t.Fatalf("pitch shift must keep length: got %d want %d", len(shifted), len(samples))
	}
	if dsp.RMS(shifted) < 0.1 {
		t.Fatalf("pitch shifted clip unexpectedly quiet: %v", dsp.RMS(shifted))
	}
}

func TestMeasureMap(t *testing.T) {
	full := dsp.Measure(tone(440, 1, 0.5, rate), rate).Map()
	for _, key := range []string{"snr", "rms", "rms_db", "peak", "peak_db", "spectral_centroid", "spectral_rolloff", "spectral_flux", "loudness_lufs"} {
		if _, ok := full[key]; !ok {
			t.Fatalf("missing %q in %v", key, full)
		}
	}
	tiny := dsp.Measure(tone(440, 0.005, 0.5, rate), rate).Map()
	if _, ok := tiny["spectral_centroid"]; ok {
		t.Fatalf("tiny clip should skip spectral metrics: %v", tiny)
	}
	silent := dsp.Measure(make([]float64, rate), rate)
	if silent.RMSDB != dsp.FloorDB || silent.PeakDB != dsp.FloorDB {
		t.Fatalf("silence should read the dB floor: %+v", silent)
	}
}
