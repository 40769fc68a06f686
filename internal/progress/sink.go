package progress

import "context"

// Sink receives delivered events in batches, in emit order. Consume is called
// from a single goroutine; ctx carries the per-sink delivery deadline.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter is what the worker reports to. Hub implements it.
type Emitter interface {
	Emit(evt Event)
}
