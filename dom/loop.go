package dom

import (
	"context"
	"time"
)

// Post schedules task on the goroutine running Run. It never blocks and is
// safe to call from any goroutine. Tasks posted before Run starts are kept
// until it does.
func (d *Document) Post(task func()) {
	if task == nil {
		return
	}
	d.tasksMu.Lock()
	d.tasks = append(d.tasks, task)
	d.tasksMu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Do runs task on the loop goroutine and waits for it to finish.
func (d *Document) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	d.Post(func() {
		defer close(done)
		task()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Document) takeTasks() []func() {
	d.tasksMu.Lock()
	defer d.tasksMu.Unlock()
	t := d.tasks
	d.tasks = nil
	return t
}

// Run drives the document until ctx is cancelled: it executes posted tasks,
// flushes records once the debounce window expires (or the buffer fills),
// and calls Settle when nothing has changed for the settle delay. Pending
// records are flushed before Run returns.
func (d *Document) Run(ctx context.Context) error {
	deb := newDebouncer(d.batching, d.Flush)
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	var settleC <-chan time.Time

	armSettle := func() {
		settle.Reset(d.batching.SettleAfter)
		settleC = settle.C
	}

	d.logger.Debug("dom: loop started", "window", d.batching.Window, "max_buffer", d.batching.MaxBuffer)
	for {
		select {
		case <-ctx.Done():
			deb.flush()
			settle.Stop()
			d.logger.Debug("dom: loop stopped")
			return ctx.Err()

		case <-d.wake:
			for _, task := range d.takeTasks() {
				d.safeCall("task", task)
			}
			if deb.note(d.Pending()) {
				armSettle()
			}

		case <-deb.timerC():
			deb.flush()
			armSettle()

		case <-settleC:
			settleC = nil
			d.Settle()
		}
	}
}
