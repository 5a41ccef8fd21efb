package crossauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// queuedEvent keeps the emitting request's values (trace IDs, client metadata) while
// dropping its cancellation, so a sink sees the same context after the request ends.
type queuedEvent struct {
	ctx   context.Context
	event AuditEvent
}

// auditDispatcher hands events to the sink on a single goroutine so request paths
// never wait on sink I/O. A nil dispatcher discards everything.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool
	queue      chan queuedEvent

	// mu is held shared by senders and exclusively by Close, which closes queue.
	mu       sync.RWMutex
	closing  chan struct{}
	stopped  chan struct{}
	shutdown sync.Once

	dropped atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan queuedEvent, max(cfg.BufferSize, 1)),
		closing:    make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.run()
	return d
}

// run delivers until the queue is closed and empty.
func (d *auditDispatcher) run() {
	defer close(d.stopped)
	for q := range d.queue {
		d.sink.Emit(q.ctx, q.event)
	}
}

// Emit queues event. When DropIfFull is set a full queue drops the event and counts
// it. Otherwise Emit waits for room, for ctx to end, or for Close.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	select {
	case <-d.closing:
		return
	default:
	}

	q := queuedEvent{ctx: context.WithoutCancel(ctx), event: event}
	if d.dropIfFull {
		select {
		case d.queue <- q:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- q:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.closing:
	}
}

// Close rejects new events, delivers what is already queued and waits for the sink.
// It is idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.shutdown.Do(func() {
		close(d.closing)
		d.mu.Lock()
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.stopped
}

// Dropped reports events discarded because the queue was full or the emitting
// request ended first.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
