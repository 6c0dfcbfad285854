// Package dsp implements the signal measurements and transforms used by the
// pipeline stages: level and SNR estimation, ITU-R BS.1770 integrated
// loudness, Butterworth filtering, STFT-based spectral features, spectral
// gating noise reduction, phase-vocoder time stretching, dynamic range
// compression and energy-based silence detection.
//
// All functions work on mono float64 samples in [-1, 1]. Transforms return
// new slices and leave their input untouched unless documented otherwise.
package dsp
