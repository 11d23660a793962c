//go:build linux

package fiberio

import (
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"fiberio/pkg/descriptor"
	"fiberio/pkg/wakeable"
)

// osYield gives the scheduler a chance to run other goroutines while a
// caller spins waiting for a concurrent intercept_fd to finish; used only
// on intercept_fd's very short INITIALIZING window.
func osYield() {
	runtime.Gosched()
}

// rawPoll is the pass-through path for poll(2) used both for non-fiber
// callers and as the one-shot probe in §4.5 Poll step 1.
func rawPoll(fds []unix.PollFd, timeout time.Duration) (int, error) {
	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// pollTimer bundles a one-shot timerfd with its descriptor-table entry, so
// poll's slow path has somewhere to park a wait-node for the timeout.
type pollTimer struct {
	*wakeable.Timer
	entry *descriptor.Entry
}

func newArmedTimer(rt *Runtime, timeout time.Duration) (*pollTimer, error) {
	t, err := wakeable.NewTimer()
	if err != nil {
		return nil, err
	}
	if err := rt.epoll.AddEdgeTriggered(t.FD()); err != nil {
		_ = t.Dispose()
		return nil, err
	}
	e := rt.table.Get(t.FD())
	e.Reset(t.FD())
	// The timer's fd is already registered with epoll above and never goes
	// through interceptFD, so nothing else advances its lifecycle past
	// NOT_INITED. dispatchReadiness drops edges for anything but NONBLOCKING
	// — without this, a fired timer's edge is silently discarded and the
	// fiber parked on it never wakes.
	e.StoreLifecycle(descriptor.Nonblocking)
	if err := t.Arm(timeout); err != nil {
		_ = rt.epoll.Remove(t.FD())
		_ = t.Dispose()
		return nil, err
	}
	return &pollTimer{Timer: t, entry: e}, nil
}

func (pt *pollTimer) fd() int { return pt.FD() }

func (pt *pollTimer) disarmAndDrain() {
	_ = pt.Disarm()
	pt.Drain()
}

func (pt *pollTimer) dispose(rt *Runtime) {
	_ = rt.epoll.Remove(pt.FD())
	_ = pt.Dispose()
}
