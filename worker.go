//go:build linux

package fiberio

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"fiberio/pkg/mpsc"
	"fiberio/pkg/rtmetrics"
	"fiberio/pkg/wakeable"
)

// Worker is one of the N fixed OS threads fibers run on, N = logical CPU
// count (§5). Each worker pins itself to CPU = its index, drains its own
// intrusive MPSC run queue, and resumes whatever fibers land there until
// the runtime's alive counter reaches zero.
type Worker struct {
	index int

	queue mpsc.Queue
	event *wakeable.Event

	// assigned is read (plain load) by Spawn's choice-of-two policy and
	// incremented there; decremented on fiber termination per the design's
	// resolution of the "assigned never decrements" open question.
	assigned atomic.Int64
}

func newWorker(index int) (*Worker, error) {
	ev, err := wakeable.NewEvent()
	if err != nil {
		return nil, err
	}
	return &Worker{index: index, event: ev}, nil
}

// Index returns this worker's permanent index, also its pinned CPU id.
func (w *Worker) Index() int { return w.index }

// push enqueues a fiber's run-queue node and wakes the worker. Called by
// Spawn (first run) and by schedule_* (re-run after a wakeup), possibly
// from the event loop thread or from another worker's fibers.
func (w *Worker) push(f *Fiber) {
	w.queue.Push(&f.node)
	rtmetrics.WorkerQueueDepth(w.index).Update(rtmetrics.WorkerQueueDepth(w.index).Value() + 1)
	if err := w.event.Trigger(); err != nil {
		rtlogTriggerFailure(w.index, err)
	}
}

// run is the worker's main loop (§4.3). It must be started on a fresh
// goroutine that the caller has not yet called runtime.LockOSThread on;
// run does that itself so the CPU pin and any future thread-local state
// stay valid for its whole lifetime.
func (w *Worker) run(rt *Runtime) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := pinCPU(w.index); err != nil {
		rtlogPinFailure(w.index, err)
	}

	// The loop always blocks on wait_and_reset first and only reconsiders
	// alive after waking: a worker starts before the first Spawn, when
	// alive is legitimately 0, and must not mistake "nothing spawned yet"
	// for "time to shut down."
	for {
		if err := w.event.WaitAndReset(); err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}

		for {
			chain := w.queue.Drain()
			if chain == nil {
				break
			}
			mpsc.Walk(chain, func(n *mpsc.Node) {
				f := n.Value.(*Fiber)
				rtmetrics.WorkerQueueDepth(w.index).Update(rtmetrics.WorkerQueueDepth(w.index).Value() - 1)
				w.runFiber(rt, f)
			})
		}

		if rt.aliveCount() <= 0 {
			break
		}
	}

	// Shutdown: wake the next worker and let it notice alive == 0 too.
	_ = rt.terminateEvent.Trigger()
}

func (w *Worker) runFiber(rt *Runtime, f *Fiber) {
	// resume() blocks until the fiber parks or terminates on its own
	// goroutine; a panic inside the entry function unwinds that goroutine,
	// not this one, so recover has nothing to catch here. f.panicVal is how
	// run() hands the panic back across the doneCh handoff.
	f.resume()

	if f.State() == FiberTerminated {
		if f.panicVal != nil {
			rtlogFiberPanic(f, f.panicVal)
		}
		rt.fiberTerminated(w)
	}
}

// pinCPU pins the calling OS thread (the caller must already hold
// runtime.LockOSThread) to the given logical CPU.
func pinCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
