// Package executor provides the scheduling primitives of the snapshot
// pipeline: a FIFO executor that serializes work per project, and a
// debouncer that coalesces bursts.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is the error of tasks that had not started when the executor
// was closed. It wraps context.Canceled.
var ErrClosed = fmt.Errorf("executor: closed: %w", context.Canceled)

// Task is the handle of one enqueued unit of work.
type Task struct {
	done chan struct{}
	err  error
}

// Done is closed when the task has finished or was cancelled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task result. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Sequential runs enqueued work one item at a time in enqueue order. Each
// task starts only after the previous one has finished.
type Sequential struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	tail   *Task
	closed bool
	wg     sync.WaitGroup
}

// NewSequential returns an executor whose work runs under a context derived
// from parent.
func NewSequential(parent context.Context) *Sequential {
	ctx, cancel := context.WithCancel(parent)
	return &Sequential{ctx: ctx, cancel: cancel}
}

// Enqueue schedules fn after all previously enqueued work. fn receives a
// context that is cancelled when the executor closes. A panic in fn is
// recovered and reported as the task error. Enqueue on a closed executor
// returns a task that has already failed with ErrClosed.
func (s *Sequential) Enqueue(fn func(ctx context.Context) error) *Task {
	t := &Task{done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.finish(ErrClosed)
		return t
	}
	prev := s.tail
	s.tail = t
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if prev != nil {
			<-prev.done
		}
		if s.ctx.Err() != nil {
			t.finish(ErrClosed)
			return
		}
		t.finish(run(s.ctx, fn))
	}()
	return t
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Close cancels the running task's context, fails every task that has not
// started with ErrClosed and waits for the running task to return. Close is
// idempotent.
func (s *Sequential) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// Closed reports whether Close has been called.
func (s *Sequential) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// IsClosed reports whether err is the cancellation of a task by Close.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }
