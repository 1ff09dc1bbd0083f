package audit

import (
	"context"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit entries to a sink. The redis
// trail is written synchronously by the engine; the dispatcher only feeds
// the optional application sink.
type Dispatcher struct {
	sink    Sink
	queue   chan Entry
	quit    chan struct{}
	drained chan struct{}
	block   bool
	dropped atomic.Uint64
	stopped atomic.Bool
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan Entry, size),
		quit:    make(chan struct{}),
		drained: make(chan struct{}),
		block:   !cfg.DropIfFull,
	}
	go d.run()
	return d
}

// run is the single worker. On shutdown it flushes whatever is still
// buffered before signalling drained.
func (d *Dispatcher) run() {
	defer close(d.drained)

	for {
		select {
		case entry := <-d.queue:
			d.sink.Emit(context.Background(), entry)
		case <-d.quit:
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case entry := <-d.queue:
			d.sink.Emit(context.Background(), entry)
		default:
			return
		}
	}
}

// Emit enqueues one entry. A full buffer either drops the entry (counted) or
// blocks until the worker catches up, depending on configuration. Emitting
// after Close is a no-op.
func (d *Dispatcher) Emit(ctx context.Context, entry Entry) {
	if d == nil || d.stopped.Load() {
		return
	}

	if d.block {
		if ctx == nil {
			ctx = context.Background()
		}
		select {
		case d.queue <- entry:
		case <-ctx.Done():
		case <-d.quit:
		}
		return
	}

	select {
	case d.queue <- entry:
	case <-d.quit:
	default:
		d.dropped.Add(1)
	}
}

// Close stops intake and waits for the worker to drain the buffer. Safe to
// call more than once; every call returns only after the drain is complete.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	if d.stopped.CompareAndSwap(false, true) {
		close(d.quit)
	}
	<-d.drained
}

// Dropped reports how many entries were discarded because the buffer was
// full at emit time.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
