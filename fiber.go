package fiberio

import (
	"sync/atomic"

	uuid "github.com/satori/go.uuid"

	"fiberio/pkg/mpsc"
)

// FiberState is the lifecycle of a single fiber.
type FiberState int32

const (
	FiberRunnable FiberState = iota
	FiberRunning
	FiberParked
	FiberTerminated
)

// Fiber is a suspendable execution: an entry function, run cooperatively on
// exactly one worker's OS thread for its whole lifetime. The design treats
// the stack/context-switch primitive as an external collaborator ("assumed
// available... with yield and resume"); this runtime supplies that
// primitive itself using the substrate Go actually offers for it — one
// goroutine per fiber, gated by a pair of handoff channels so that only one
// of {the owning worker, the fiber itself} is ever runnable at a time. The
// goroutine plays the role of the pinned stack; the channels play the role
// of yield/resume.
type Fiber struct {
	id uuid.UUID

	entry func(f *Fiber)

	state atomic.Int32

	// node is this fiber's link on its owning worker's run queue. Wait lists
	// use separate waitqueue.Node records.
	node mpsc.Node

	// owner is the worker index assigned at spawn; immutable thereafter.
	owner int32

	// wakeFD is written by whoever wakes the fiber: the fd that became
	// ready, or a timer's fd on a timeout wake.
	wakeFD int32

	started  bool
	resumeCh chan struct{}
	doneCh   chan struct{}

	// offloadN/offloadErr carry a threadpool task's result back across a
	// park/resume handshake; only ever touched while f is parked, so no
	// additional synchronization is needed beyond what park/resume already
	// provide.
	offloadN   int
	offloadErr error

	// panicVal is set by run's recover if the entry function panicked;
	// observed by the worker after resume() returns, once doneCh confirms
	// the fiber is no longer running.
	panicVal any
}

// newFiber allocates a fiber bound to owner, ready to be pushed onto that
// worker's run queue.
func newFiber(owner int, entry func(f *Fiber)) *Fiber {
	f := &Fiber{
		id:       uuid.NewV4(),
		entry:    entry,
		owner:    int32(owner),
		resumeCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	f.state.Store(int32(FiberRunnable))
	f.node.Value = f
	return f
}

// ID returns the fiber's diagnostic identifier.
func (f *Fiber) ID() uuid.UUID { return f.id }

// Owner returns the index of the worker this fiber is permanently bound to.
func (f *Fiber) Owner() int { return int(f.owner) }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() FiberState { return FiberState(f.state.Load()) }

// WakeFD returns the fd that caused the most recent wake (the ready
// descriptor, or a timer's fd on a timeout).
func (f *Fiber) WakeFD() int { return int(atomic.LoadInt32(&f.wakeFD)) }

func (f *Fiber) setWakeFD(fd int) { atomic.StoreInt32(&f.wakeFD, int32(fd)) }

// resume is called by the owning worker. The first call starts the entry
// goroutine; subsequent calls wake a parked fiber. It blocks until the
// fiber either parks again or terminates — the worker is, from its own
// point of view, "in" the fiber for the duration, exactly as if it had
// switched stacks.
func (f *Fiber) resume() {
	f.state.Store(int32(FiberRunning))
	if !f.started {
		f.started = true
		go f.run()
	} else {
		f.resumeCh <- struct{}{}
	}
	<-f.doneCh
}

func (f *Fiber) run() {
	// entry runs on this goroutine, not the worker's: a panic here unwinds
	// this stack, never the worker blocked on doneCh in resume(). Recover
	// has to live here so the worker still gets a doneCh send and can treat
	// the fiber as terminated (§7), instead of the process crashing on an
	// unrecovered panic while the worker deadlocks forever.
	func() {
		defer func() {
			if r := recover(); r != nil {
				f.panicVal = r
			}
		}()
		f.entry(f)
	}()
	f.state.Store(int32(FiberTerminated))
	f.doneCh <- struct{}{}
}

// park suspends the calling fiber: it signals the owning worker that it has
// yielded, then blocks until some future resume() call (routed through a
// worker's run queue via schedule_*) wakes it back up.
func (f *Fiber) park() {
	f.state.Store(int32(FiberParked))
	f.doneCh <- struct{}{}
	<-f.resumeCh
}

// Yield cooperatively hands control back to the worker and is immediately
// rescheduled; exposed for fiber entry points that want an explicit
// suspension point outside of an intercepted syscall (§4.3, "explicit
// yield (if exposed)").
func (f *Fiber) Yield(rt *Runtime) {
	rt.scheduleFiber(f)
	f.park()
}
