// Package segment cuts a recording into short clips.
//
// Three strategies share one output contract: fixed windows, silence
// splitting, and an adaptive mode that merges short speech runs and splits
// long ones. Every clip carries its start and end on the input timeline.
package segment
