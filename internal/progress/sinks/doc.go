// Package sinks implements concrete progress consumers: structured logging,
// Prometheus metrics, and observation notifications through a publisher. Each
// sink satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
