// Package loader uniformizes source audio: it decodes any supported input,
// downmixes to mono, resamples to the target rate and writes integer PCM WAV
// files into the uniformized directory.
//
// Native PCM WAV decoding is tried first. Anything it rejects is converted
// by ffmpeg into a temporary 16-bit WAV at the source's own rate and channel
// layout, which then goes through the same downmix and resample path.
package loader
