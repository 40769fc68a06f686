package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config tunes the Hub. Zero values select the defaults below.
type Config struct {
	// BufferSize bounds the number of events waiting for the delivery goroutine.
	BufferSize int
	// MaxBatchEvents triggers a flush once this many probe events are pending.
	MaxBatchEvents int
	// MaxBatchWait bounds how long a partial batch waits before it is flushed.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Sink.Consume call.
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 256
	defaultMaxBatchEvents = 26
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropWarnEvery         = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Stats counts what the Hub did with emitted events.
type Stats struct {
	Delivered  int64
	Dropped    int64
	SinkErrors int64
}

// Hub delivers run events to sinks from a single goroutine. Emit never blocks:
// an event that does not fit in the buffer is dropped and counted. A terminal
// event flushes the pending batch immediately so sinks see the end of a run
// without waiting for the batch timer.
type Hub struct {
	cfg    Config
	sinks  []Sink
	queue  chan Event
	quit   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	closed     atomic.Bool
	delivered  atomic.Int64
	dropped    atomic.Int64
	sinkErrors atomic.Int64
	lastWarn   atomic.Int64

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts delivery to sinks. Nil sinks are ignored.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:    cfg,
		queue:  make(chan Event, cfg.BufferSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: cfg.Logger,
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.loop()
	return h
}

// Emit queues evt. Invalid events and events emitted after Close are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	select {
	case h.queue <- evt:
	default:
		n := h.dropped.Add(1)
		h.warnDropped(n)
	}
}

// Stats returns delivery counters.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{
		Delivered:  h.delivered.Load(),
		Dropped:    h.dropped.Load(),
		SinkErrors: h.sinkErrors.Load(),
	}
}

// Close stops accepting events, delivers what is queued, closes the sinks and
// waits for the delivery goroutine. It is safe to call more than once.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.quit)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for progress hub: %w", ctx.Err())
	}
}

func (h *Hub) loop() {
	defer close(h.done)

	var pending []Event
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	add := func(evt Event) {
		if len(pending) == 0 {
			timer.Reset(h.cfg.MaxBatchWait)
		}
		pending = append(pending, evt)
		if evt.Terminal() || len(pending) >= h.cfg.MaxBatchEvents {
			timer.Stop()
			h.deliver(pending)
			pending = pending[:0]
		}
	}

	for {
		select {
		case evt := <-h.queue:
			add(evt)
		case <-timer.C:
			h.deliver(pending)
			pending = pending[:0]
		case <-h.quit:
			timer.Stop()
			for {
				select {
				case evt := <-h.queue:
					add(evt)
					continue
				default:
				}
				break
			}
			h.deliver(pending)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	out := make([]Event, len(batch))
	copy(out, batch)
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		err := sink.Consume(ctx, out)
		cancel()
		if err != nil {
			h.sinkErrors.Add(1)
			h.logger.Warn("progress sink failed", zap.Int("events", len(out)), zap.Error(err))
		}
	}
	h.delivered.Add(int64(len(out)))
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("closing progress sink", zap.Error(err))
		}
	}
}

func (h *Hub) warnDropped(total int64) {
	now := time.Now().UnixNano()
	last := h.lastWarn.Load()
	if now-last < dropWarnEvery.Nanoseconds() || !h.lastWarn.CompareAndSwap(last, now) {
		return
	}
	h.logger.Warn("progress buffer full, dropping events", zap.Int64("dropped_total", total))
}
