// Package debounce owns "the current pending archive job".
//
// Every accepted submission receives a fresh generation token and overwrites
// the current token under a single mutex. The submission's delayed action
// runs once the grace period has elapsed and archives only if its token is
// still current at that moment; otherwise it records a cancellation and
// exits. After the archival call the action clears the current token with a
// compare-and-clear, so a job that finishes late can never erase the token of
// a newer submission accepted while it was in flight.
//
// Tokens are plain integers compared by value. Nothing depends on the
// identity of the goroutine or timer that runs the action.
//
// No network call and no event log write ever happens while the mutex is
// held.
package debounce
