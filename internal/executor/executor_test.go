package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSequential(t *testing.T) *Sequential {
	t.Helper()
	s := NewSequential(context.Background())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSequential_FIFO(t *testing.T) {
	t.Parallel()
	s := newTestSequential(t)

	var mu sync.Mutex
	var order []int
	var tasks []*Task
	for i := range 50 {
		tasks = append(tasks, s.Enqueue(func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	require.NoError(t, tasks[len(tasks)-1].Wait(context.Background()))

	for i := range 50 {
		assert.Equal(t, i, order[i])
	}
}

func TestSequential_NeverConcurrent(t *testing.T) {
	t.Parallel()
	s := newTestSequential(t)

	var active, peak atomic.Int32
	var last *Task
	for range 20 {
		last = s.Enqueue(func(context.Context) error {
			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return nil
		})
	}
	require.NoError(t, last.Wait(context.Background()))
	assert.Equal(t, int32(1), peak.Load())
}

func TestSequential_ErrorsAndPanics(t *testing.T) {
	t.Parallel()
	s := newTestSequential(t)
	boom := errors.New("boom")

	failed := s.Enqueue(func(context.Context) error { return boom })
	panicked := s.Enqueue(func(context.Context) error { panic("bad item") })
	after := s.Enqueue(func(context.Context) error { return nil })

	assert.ErrorIs(t, failed.Wait(context.Background()), boom)
	err := panicked.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad item")
	assert.NoError(t, after.Wait(context.Background()), "later work still runs")
}

func TestSequential_CloseCancelsPending(t *testing.T) {
	t.Parallel()
	s := NewSequential(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	var ran atomic.Bool

	first := s.Enqueue(func(context.Context) error { return nil })
	second := s.Enqueue(func(ctx context.Context) error {
		close(started)
		<-release
		return ctx.Err()
	})
	third := s.Enqueue(func(context.Context) error {
		ran.Store(true)
		return nil
	})

	require.NoError(t, first.Wait(context.Background()))
	<-started

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	require.Eventually(t, s.Closed, time.Second, time.Millisecond)
	close(release)
	<-closed

	assert.ErrorIs(t, second.Err(), context.Canceled, "running task sees its context cancelled")
	assert.ErrorIs(t, third.Wait(context.Background()), ErrClosed)
	assert.ErrorIs(t, third.Err(), context.Canceled)
	assert.True(t, IsClosed(third.Err()))
	assert.False(t, ran.Load())

	late := s.Enqueue(func(context.Context) error { return nil })
	assert.ErrorIs(t, late.Err(), ErrClosed)
	assert.NoError(t, s.Close(), "close is idempotent")
}

func TestTask_WaitHonorsContext(t *testing.T) {
	t.Parallel()
	s := newTestSequential(t)
	block := make(chan struct{})
	defer close(block)
	task := s.Enqueue(func(context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, task.Err(), "unfinished task has no error yet")
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(20 * time.Millisecond)
	t.Cleanup(d.Close)

	var calls atomic.Int32
	var last atomic.Int32
	for i := range 5 {
		d.Schedule(func(context.Context) {
			calls.Add(1)
			last.Store(int32(i))
		})
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(4), last.Load())
}

func TestDebouncer_SupersedeCancelsRunning(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(0)
	t.Cleanup(d.Close)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	d.Schedule(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	<-started

	second := make(chan struct{})
	d.Schedule(func(context.Context) { close(second) })

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running function was not cancelled")
	}
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("superseding function did not run")
	}
}

func TestDebouncer_CancelAndClose(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(10 * time.Millisecond)

	var calls atomic.Int32
	d.Schedule(func(context.Context) { calls.Add(1) })
	d.Cancel()
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, calls.Load())

	d.Close()
	d.Schedule(func(context.Context) { calls.Add(1) })
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, calls.Load())
}
