// Package audio holds mono float64 sample buffers and the WAV I/O,
// downmixing, resampling and level helpers shared by every stage.
//
// Samples are normalized to [-1, 1]. ReadWAV decodes integer PCM through
// go-audio/wav and averages channels into mono; WriteWAV encodes integer PCM
// atomically so a stage never leaves a truncated artifact behind.
package audio
