package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/domsense/domtrack/event"
)

// Async decouples a slow sink from the document loop. Send enqueues and
// returns at once; a single goroutine drains the queue in order. When the
// queue is full the detection is dropped and counted.
type Async struct {
	next    Sink
	queue   chan event.Detection
	logger  *slog.Logger
	dropped atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// NewAsync starts the drain goroutine. size <= 0 means 256.
func NewAsync(next Sink, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		next:   next,
		queue:  make(chan event.Detection, size),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *Async) drain() {
	defer close(a.done)
	for d := range a.queue {
		if err := a.next.Send(a.ctx, d); err != nil {
			a.logger.Warn("sink: async send failed", "id", d.ID, "error", err)
		}
	}
}

// Send enqueues d. It never blocks.
func (a *Async) Send(_ context.Context, d event.Detection) error {
	select {
	case a.queue <- d:
	default:
		n := a.dropped.Add(1)
		a.logger.Warn("sink: queue full, detection dropped", "id", d.ID, "dropped", n)
	}
	return nil
}

// Dropped returns how many detections were discarded.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Close drains what is queued, then closes the wrapped sink. Send must not
// be called after Close.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.queue) })
	<-a.done
	a.cancel()
	return a.next.Close()
}
