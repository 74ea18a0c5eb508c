// Package sinks implements concrete progress consumers: Prometheus metrics,
// structured logging and outcome notifications. Each sink satisfies the
// progress.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
