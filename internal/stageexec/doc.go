// Package stageexec runs a stage handler over a working set of files and
// applies the progress-record bookkeeping shared by every stage.
package stageexec
