// Package provenance maps derived audio files back to the ProcessingRecord of
// the original source file that produced them.
//
// Fan-out stages register every artifact they write with Register, so later
// stages resolve owners through the index instead of parsing file names.
// Resolve falls back to the progress store (exact record key, then recorded
// segment file) and finally to stripping "_"-separated suffixes from the file
// stem; that last path logs a warning because it is ambiguous for arbitrary
// original names.
package provenance
