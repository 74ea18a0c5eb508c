// Package progress provides the lifecycle event primitives, the non-blocking
// hub and the emitter interface the debouncer uses to report what happened to
// each submission. Events are batched on a background goroutine and fanned
// out to pluggable sinks such as Prometheus metrics, structured logs or the
// outcome notifier.
package progress
