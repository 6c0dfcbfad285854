// Package silence removes non-speech regions from normalized audio.
//
// Three detectors are available: the WebRTC frame classifier, the Silero
// neural VAD and an energy threshold splitter. Each yields voiced spans in
// the clip's own timeline; the remover pads them, concatenates the padded
// spans and records how much audio was dropped. The two VAD detectors need
// cgo; builds without it report them as unavailable.
package silence
