//go:build linux

package fiberio

import (
	"fiberio/pkg/descriptor"
	"fiberio/pkg/epoll"
	"fiberio/pkg/rtlog"
	"fiberio/pkg/waitqueue"
)

// runEventLoop is the single dedicated OS thread of §4.4. It never runs user
// fibers and never yields; it is the sole consumer of the epoll set.
func (rt *Runtime) runEventLoop() {
	defer close(rt.loopDone)

	for {
		events, err := rt.epoll.Wait()
		if err != nil {
			rtlog.L().Error().Err(err).Msg("epoll_wait failed, event loop exiting")
			return
		}

		terminate := false
		for _, ev := range events {
			switch {
			case ev.Fd == rt.terminateEvent.FD():
				// An eventfd is always writable, so it reports EPOLLOUT on
				// registration; only EPOLLIN means it was triggered.
				if ev.In {
					terminate = true
				}
			case rt.signals != nil && ev.Fd == rt.signals.fd:
				rt.drainSignals()
			default:
				rt.dispatchReadiness(ev)
			}
		}

		if terminate {
			_ = rt.terminateEvent.WaitAndReset()
			for _, w := range rt.workers {
				_ = w.event.Trigger()
			}
			return
		}
	}
}

// dispatchReadiness runs the §4.2 transition tables for one fd's observed
// edges. Only fds whose lifecycle has reached NONBLOCKING are registered
// with the epoll set in the first place, but the lifecycle is re-checked
// here since a close() can race a still-in-flight epoll_wait batch.
func (rt *Runtime) dispatchReadiness(ev epoll.Events) {
	if !rt.table.InRange(ev.Fd) {
		return
	}
	e := rt.table.Get(ev.Fd)
	if e.Lifecycle() != descriptor.Nonblocking {
		return
	}
	if ev.In || ev.Err || ev.Hup {
		rt.transitionReaderOnEdge(e, ev.Fd)
	}
	if ev.Out || ev.Err || ev.Hup {
		rt.transitionWriterOnEdge(e, ev.Fd)
	}
}

// transitionReaderOnEdge implements the reader column of §4.2's event-loop
// transition table for one observed EPOLLIN edge.
func (rt *Runtime) transitionReaderOnEdge(e *descriptor.Entry, fd int) {
	for {
		switch e.ReaderState() {
		case descriptor.ReaderEmpty:
			if e.CASReaderState(descriptor.ReaderEmpty, descriptor.ReaderReady) {
				rt.scheduleReaders(e, fd)
				return
			}
		case descriptor.ReaderUncertain:
			if e.CASReaderState(descriptor.ReaderUncertain, descriptor.ReaderReady) {
				return
			}
		case descriptor.ReaderReading:
			if e.CASReaderState(descriptor.ReaderReading, descriptor.ReaderUncertain) {
				return
			}
			// The in-flight reader concluded EMPTY before we got here.
			if e.CASReaderState(descriptor.ReaderEmpty, descriptor.ReaderUncertain) {
				rt.scheduleReaders(e, fd)
			}
			return
		case descriptor.ReaderReady:
			// Idempotent: a previous edge was not yet consumed.
			rt.scheduleReaders(e, fd)
			return
		default:
			return
		}
	}
}

// transitionWriterOnEdge is the writer side, symmetric to the reader with
// FULL in place of EMPTY and WriterReady in place of ReaderReady.
func (rt *Runtime) transitionWriterOnEdge(e *descriptor.Entry, fd int) {
	for {
		switch e.WriterState() {
		case descriptor.WriterFull:
			if e.CASWriterState(descriptor.WriterFull, descriptor.WriterReady) {
				rt.scheduleWriters(e, fd)
				return
			}
		case descriptor.WriterUncertain:
			if e.CASWriterState(descriptor.WriterUncertain, descriptor.WriterReady) {
				return
			}
		case descriptor.WriterWriting:
			if e.CASWriterState(descriptor.WriterWriting, descriptor.WriterUncertain) {
				return
			}
			// The writer's in-flight syscall concluded FULL (parked) first;
			// symmetric to the reader's "concluded EMPTY" branch.
			if e.CASWriterState(descriptor.WriterFull, descriptor.WriterUncertain) {
				rt.scheduleWriters(e, fd)
			}
			return
		case descriptor.WriterReady:
			rt.scheduleWriters(e, fd)
			return
		default:
			return
		}
	}
}

// scheduleReaders implements schedule_readers(wake_fd) from §4.2: steal the
// whole reader wait list, then for each node steal its fiber handle (so a
// fiber parked on two lists at once is only ever scheduled by one winner)
// and push it onto its owning worker's queue.
func (rt *Runtime) scheduleReaders(e *descriptor.Entry, wakeFD int) {
	rt.scheduleWaitList(&e.ReaderWaiters, wakeFD)
}

// scheduleWriters is the writer-side counterpart of scheduleReaders.
func (rt *Runtime) scheduleWriters(e *descriptor.Entry, wakeFD int) {
	rt.scheduleWaitList(&e.WriterWaiters, wakeFD)
}

func (rt *Runtime) scheduleWaitList(list *waitqueue.List, wakeFD int) {
	chain := list.Steal()
	waitqueue.Walk(chain, func(node *waitqueue.Node) {
		handle := node.Steal()
		f, ok := handle.(*Fiber)
		if !ok || f == nil {
			return
		}
		f.setWakeFD(wakeFD)
		rt.scheduleFiber(f)
	})
}
