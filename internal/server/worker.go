package server

import (
	"context"
	"sync/atomic"
	"time"
)

// WorkerState is the lifecycle state of a single worker goroutine
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerRunning
	WorkerStopRequested
	WorkerJoined
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerStopRequested:
		return "stop_requested"
	case WorkerJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// worker owns one goroutine running a loop until its context is cancelled.
// Completion is reported by closing done.
type worker struct {
	name   string
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

func newWorker(name string) *worker {
	return &worker{
		name: name,
		done: make(chan struct{}),
	}
}

// start launches run in its own goroutine with a context derived from parent
func (w *worker) start(parent context.Context, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.state.Store(int32(WorkerRunning))

	go func() {
		defer close(w.done)
		run(ctx)
	}()
}

// stop requests the worker to exit and waits at most timeout for it.
// It reports whether the worker joined. A worker that is abandoned keeps
// running until its loop notices the cancellation.
func (w *worker) stop(timeout time.Duration) bool {
	if w.State() == WorkerIdle {
		return true
	}

	w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerStopRequested))
	w.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		w.state.Store(int32(WorkerJoined))
		return true
	case <-timer.C:
		return false
	}
}

// State returns the current worker state
func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}
