// Package quality decides which clips enter the final dataset.
//
// A clip is accepted only when it has no rejection reason: duration within
// bounds, estimated SNR at or above the floor, and no external problematic
// flag. The corpus-wide Report is an immutable value folded one verdict at a
// time and merged across workers.
package quality
