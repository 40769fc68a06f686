// Package progress holds the worker's live Snapshot and the non-blocking event
// hub used to report run milestones. The Hub batches events on a background
// goroutine and fans them out to pluggable sinks such as structured logs,
// Prometheus metrics, or a Pub/Sub publisher.
package progress
