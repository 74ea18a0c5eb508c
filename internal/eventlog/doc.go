// Package eventlog keeps the bounded, in-memory rolling log rendered by the
// status page.
//
// Every appended line is stamped, echoed synchronously to the process logger
// and stored in a fixed-size ring. Once the ring is full the oldest line is
// overwritten, so a Log never holds more than its capacity (1000 by default).
// Snapshot copies the ring under the same lock Append uses, so readers see
// either the state before or after any given append, never a torn entry.
package eventlog
