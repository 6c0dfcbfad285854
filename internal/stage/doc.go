// Package stage defines the contract every audio processing stage implements
// and small helpers shared by the stage packages.
package stage
