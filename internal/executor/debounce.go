package executor

import (
	"context"
	"sync"
	"time"
)

// Debouncer runs the most recently scheduled function once no newer one has
// been scheduled for the delay. Scheduling again before the delay elapses
// replaces the pending function; if the previous one already started, its
// context is cancelled.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
	running sync.WaitGroup
}

// NewDebouncer returns a debouncer with the given quiet period. A zero delay
// still runs the function asynchronously.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule supersedes any pending or running function with fn.
func (d *Debouncer) Schedule(fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.supersede()
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.closed || gen != d.gen {
			d.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		d.running.Add(1)
		d.mu.Unlock()

		defer d.running.Done()
		defer cancel()
		fn(ctx)
	})
}

// supersede stops the pending timer and cancels a running function.
// Callers hold d.mu.
func (d *Debouncer) supersede() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Cancel drops the pending function and cancels a running one.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.supersede()
}

// Close cancels pending and running work and waits for the running function
// to return. Schedule after Close is a no-op.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.gen++
	d.supersede()
	d.mu.Unlock()
	d.running.Wait()
}
