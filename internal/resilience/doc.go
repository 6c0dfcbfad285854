// Package resilience provides the run-wide failure breaker and the retry
// helper used for flaky external calls.
//
// A Breaker counts consecutive systemic failures (credential and
// configuration errors that would repeat for every item) and opens once the
// configured budget is spent. The batch driver checks it before each file and
// stops scheduling work when it is open. Item failures never trip it.
//
// Retry runs an operation with a fixed attempt budget and linear backoff
// (attempt × base delay), giving up immediately on systemic errors.
package resilience
