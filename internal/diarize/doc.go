// Package diarize splits a recording into one file per detected speaker.
//
// Turns come from an external diarization model runner (pyannote by
// default) that prints JSON on stdout. The model hub credential is verified
// once when the Diarizer is built so a bad token stops the run before any
// file is touched. Each speaker's turns are concatenated in chronological
// order without the gaps between them.
package diarize
