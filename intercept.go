//go:build linux

package fiberio

import (
	"time"

	"golang.org/x/sys/unix"

	"fiberio/pkg/descriptor"
	"fiberio/pkg/rtmetrics"
	"fiberio/pkg/threadpool"
	"fiberio/pkg/waitqueue"
)

// opKind classifies an intercepted operation by which direction's state
// machine and transition rules it drives (§4.5).
type opKind int

const (
	kindRead opKind = iota
	kindWrite
	kindAccept
)

func wouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// interceptFD is intercept_fd from §4.5 step 2. Idempotent per §8 invariant
// 6: a second call on an already-NONBLOCKING or THREADPOOL fd is a no-op.
func (rt *Runtime) interceptFD(fd int) (*descriptor.Entry, error) {
	if !rt.table.InRange(fd) {
		return nil, unix.EBADF
	}
	e := rt.table.Get(fd)

	switch e.Lifecycle() {
	case descriptor.Nonblocking, descriptor.Threadpool:
		return e, nil
	}

	if !e.CASLifecycle(descriptor.NotInited, descriptor.Initializing) {
		// Another fiber is concurrently initializing this fd; spin briefly
		// since intercept_fd's own body never parks.
		for e.Lifecycle() == descriptor.Initializing {
			osYield()
		}
		return e, nil
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		e.StoreLifecycle(descriptor.NotInited)
		return nil, err
	}

	if err := rt.epoll.AddEdgeTriggered(fd); err != nil {
		if err == unix.EPERM {
			e.StoreLifecycle(descriptor.Threadpool)
			return e, nil
		}
		e.StoreLifecycle(descriptor.NotInited)
		return nil, err
	}

	e.StoreLifecycle(descriptor.Nonblocking)
	return e, nil
}

// offload runs op on the threadpool and parks the caller until it
// completes, per §4.5 step 3 / §9's thread-pool fallback.
func (f *Fiber) offload(rt *Runtime, fd int, op func() (int, error)) (int, error) {
	rt.pool.Submit(threadpool.Task{
		Fd: fd,
		Op: op,
		Complete: func(n int, err error) {
			f.offloadN, f.offloadErr = n, err
			rt.scheduleFiber(f)
		},
	})
	f.park()
	return f.offloadN, f.offloadErr
}

// readDirection runs the reader-side protocol of §4.2/§4.5 for one
// operation. call performs the underlying syscall; requested is the
// caller's buffer length (ignored for accept). kind distinguishes accept's
// transition rules from read's.
func (f *Fiber) readDirection(rt *Runtime, fd int, kind opKind, requested int, call func() (int, error)) (int, error) {
	if f == nil {
		return call()
	}

	e, err := rt.interceptFD(fd)
	if err != nil {
		return -1, err
	}
	if e.Lifecycle() == descriptor.Threadpool {
		return f.offload(rt, fd, call)
	}

	for {
		switch e.ReaderState() {
		case descriptor.ReaderEmpty:
			var node waitqueue.Node
			node.Bind(f)
			e.ReaderWaiters.Enqueue(&node)
			if e.ReaderState() != descriptor.ReaderEmpty {
				rt.scheduleReaders(e, fd)
			}
			f.park()
			// Wait-node is dead the instant park() returns; re-check state.

		case descriptor.ReaderUncertain:
			e.CASReaderState(descriptor.ReaderUncertain, descriptor.ReaderReading)

		case descriptor.ReaderReady:
			e.CASReaderState(descriptor.ReaderReady, descriptor.ReaderReading)

		case descriptor.ReaderReading:
			n, callErr := call()

			if kind == kindAccept {
				if callErr == nil {
					e.CASReaderState(descriptor.ReaderReading, descriptor.ReaderUncertain)
					rtmetrics.Accepts.Inc(1)
					return n, nil
				}
				if wouldBlock(callErr) {
					e.CASReaderState(descriptor.ReaderReading, descriptor.ReaderEmpty)
					continue
				}
				return n, callErr
			}

			// kindRead (covers read/recv/recvfrom, §9's "recvfrom is
			// tagged read" decision).
			if callErr != nil {
				if wouldBlock(callErr) {
					e.CASReaderState(descriptor.ReaderReading, descriptor.ReaderEmpty)
					continue
				}
				return n, callErr
			}
			rtmetrics.Reads.Mark(int64(n))
			if n == requested {
				e.CASReaderState(descriptor.ReaderReading, descriptor.ReaderUncertain)
			} else {
				e.CASReaderState(descriptor.ReaderReading, descriptor.ReaderEmpty)
			}
			return n, nil

		default:
			return -1, unix.EINVAL
		}
	}
}

// writeDirection is the writer-side counterpart, symmetric to
// readDirection. wouldBlockErr lets connect override EAGAIN with
// EINPROGRESS per §4.5.
func (f *Fiber) writeDirection(rt *Runtime, fd int, requested int, wouldBlockErr func(error) bool, call func() (int, error)) (int, error) {
	if f == nil {
		return call()
	}

	e, err := rt.interceptFD(fd)
	if err != nil {
		return -1, err
	}
	if e.Lifecycle() == descriptor.Threadpool {
		return f.offload(rt, fd, call)
	}

	for {
		switch e.WriterState() {
		case descriptor.WriterFull:
			var node waitqueue.Node
			node.Bind(f)
			e.WriterWaiters.Enqueue(&node)
			if e.WriterState() != descriptor.WriterFull {
				rt.scheduleWriters(e, fd)
			}
			f.park()

		case descriptor.WriterUncertain:
			e.CASWriterState(descriptor.WriterUncertain, descriptor.WriterWriting)

		case descriptor.WriterReady:
			e.CASWriterState(descriptor.WriterReady, descriptor.WriterWriting)

		case descriptor.WriterWriting:
			n, callErr := call()

			if callErr != nil {
				if wouldBlockErr(callErr) {
					e.CASWriterState(descriptor.WriterWriting, descriptor.WriterFull)
					continue
				}
				return n, callErr
			}
			rtmetrics.Writes.Mark(int64(n))
			if n == requested {
				e.CASWriterState(descriptor.WriterWriting, descriptor.WriterUncertain)
			} else {
				e.CASWriterState(descriptor.WriterWriting, descriptor.WriterFull)
			}
			return n, nil

		default:
			return -1, unix.EINVAL
		}
	}
}

// Read is the intercepted read(2).
func (f *Fiber) Read(rt *Runtime, fd int, p []byte) (int, error) {
	return f.readDirection(rt, fd, kindRead, len(p), func() (int, error) {
		return unix.Read(fd, p)
	})
}

// Recv is the intercepted recv(2), folding flags into the raw call per
// §4.5 step 4's "msg" non-blocking-flag style.
func (f *Fiber) Recv(rt *Runtime, fd int, p []byte, flags int) (int, error) {
	return f.readDirection(rt, fd, kindRead, len(p), func() (int, error) {
		n, _, err := unix.Recvfrom(fd, p, flags)
		return n, err
	})
}

// RecvFrom is the intercepted recvfrom(2). Tagged kindRead per spec.md §9:
// "recvfrom's kind is tagged read... this is intentional and preserved."
func (f *Fiber) RecvFrom(rt *Runtime, fd int, p []byte, flags int) (n int, from unix.Sockaddr, err error) {
	_, err = f.readDirection(rt, fd, kindRead, len(p), func() (int, error) {
		var innerErr error
		n, from, innerErr = unix.Recvfrom(fd, p, flags)
		return n, innerErr
	})
	return n, from, err
}

// Write is the intercepted write(2).
func (f *Fiber) Write(rt *Runtime, fd int, p []byte) (int, error) {
	return f.writeDirection(rt, fd, len(p), wouldBlock, func() (int, error) {
		return unix.Write(fd, p)
	})
}

// SendTo is the intercepted sendto(2).
func (f *Fiber) SendTo(rt *Runtime, fd int, p []byte, flags int, to unix.Sockaddr) (int, error) {
	return f.writeDirection(rt, fd, len(p), wouldBlock, func() (int, error) {
		if err := unix.Sendto(fd, p, flags, to); err != nil {
			return 0, err
		}
		return len(p), nil
	})
}

// Accept is the intercepted accept(2).
func (f *Fiber) Accept(rt *Runtime, fd int) (int, unix.Sockaddr, error) {
	var peer unix.Sockaddr
	n, err := f.readDirection(rt, fd, kindAccept, 0, func() (int, error) {
		nfd, sa, acceptErr := unix.Accept(fd)
		peer = sa
		return nfd, acceptErr
	})
	return n, peer, err
}

// Accept4 is the intercepted accept4(2); flags are folded into the raw
// call per §4.5 step 4's "sock" non-blocking-flag style (SOCK_NONBLOCK is
// redundant once intercept_fd has already set O_NONBLOCK, but callers may
// still request SOCK_CLOEXEC).
func (f *Fiber) Accept4(rt *Runtime, fd int, flags int) (int, unix.Sockaddr, error) {
	var peer unix.Sockaddr
	n, err := f.readDirection(rt, fd, kindAccept, 0, func() (int, error) {
		nfd, sa, acceptErr := unix.Accept4(fd, flags)
		peer = sa
		return nfd, acceptErr
	})
	return n, peer, err
}

// Connect is the intercepted connect(2). Uses the writer state machine;
// EINPROGRESS is its "would block" errno (§4.5). A successful synchronous
// connect (err == nil) returns 0 of 0 requested bytes, so it is treated
// like a full-length write: WRITING→UNCERTAIN, not WRITING→FULL.
func (f *Fiber) Connect(rt *Runtime, fd int, addr unix.Sockaddr) (int, error) {
	connectWouldBlock := func(err error) bool {
		return err == unix.EINPROGRESS || wouldBlock(err)
	}
	return f.writeDirection(rt, fd, 0, connectWouldBlock, func() (int, error) {
		if err := unix.Connect(fd, addr); err != nil {
			return 0, err
		}
		return 0, nil
	})
}

// Close is the intercepted close(2) (§4.5 "Close"). Resets both state
// machines, wakes any remaining waiters so their next syscall observes a
// closed fd, resets lifecycle, then issues the real close. The epoll set
// auto-removes the fd on final close.
func (f *Fiber) Close(rt *Runtime, fd int) (int, error) {
	if !rt.table.InRange(fd) {
		if err := unix.Close(fd); err != nil {
			return -1, err
		}
		return 0, nil
	}

	e := rt.table.Get(fd)
	// Wake parked waiters into each direction's non-parked state (READY),
	// not its parked state (EMPTY/FULL): a waiter resumed into EMPTY would
	// just re-enqueue and park again, with nothing left to ever wake it a
	// second time. READY drives the waiter straight to retry its syscall,
	// where the closed fd surfaces as an ordinary error.
	e.StoreReaderState(descriptor.ReaderReady)
	e.StoreWriterState(descriptor.WriterReady)
	rt.scheduleReaders(e, fd)
	rt.scheduleWriters(e, fd)
	e.StoreLifecycle(descriptor.NotInited)

	if err := unix.Close(fd); err != nil {
		return -1, err
	}
	return 0, nil
}

// Poll is the intercepted poll(2) (§4.5 "Poll"), the most intricate
// non-state-machine operation.
func (f *Fiber) Poll(rt *Runtime, fds []unix.PollFd, timeout time.Duration) (int, error) {
	if f == nil {
		return rawPoll(fds, timeout)
	}
	if len(fds) == 0 {
		return f.pollTimerOnly(rt, timeout)
	}

	// Register every polled fd with the epoll set, so that its readiness
	// edges reach the descriptor entries scanned and parked on below.
	for i := range fds {
		_, _ = rt.interceptFD(int(fds[i].Fd))
	}

	readyCount, conclusive := scanPollFast(rt, fds)
	if conclusive {
		if readyCount > 0 {
			return readyCount, nil
		}
	} else {
		n, err := rawPoll(fds, 0)
		if err != nil {
			return -1, err
		}
		if n > 0 {
			return n, nil
		}
	}

	if timeout <= 0 {
		return rawPoll(fds, 0)
	}
	return f.pollSlowPath(rt, fds, timeout)
}

// pollTimerOnly implements poll(nfds=0, timeout): arm a timer, park as a
// reader on the timer's own descriptor, return 0 on wake.
func (f *Fiber) pollTimerOnly(rt *Runtime, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, nil
	}
	timer, err := newArmedTimer(rt, timeout)
	if err != nil {
		return -1, err
	}
	defer timer.dispose(rt)

	var node waitqueue.Node
	node.Bind(f)
	timer.entry.ReaderWaiters.Enqueue(&node)
	f.park()
	return 0, nil
}

// scanPollFast implements §4.5 Poll step 1: scan once without syscalls.
// readyCount counts fds with at least one set revents bit; conclusive is
// true iff every requested direction observed a terminal state (READY or
// the parked state), i.e. none were UNCERTAIN/READING/WRITING.
func scanPollFast(rt *Runtime, fds []unix.PollFd) (readyCount int, conclusive bool) {
	conclusive = true
	for i := range fds {
		fds[i].Revents = 0
		if !rt.table.InRange(int(fds[i].Fd)) {
			continue
		}
		e := rt.table.Get(int(fds[i].Fd))

		if fds[i].Events&unix.POLLIN != 0 {
			switch e.ReaderState() {
			case descriptor.ReaderReady:
				fds[i].Revents |= unix.POLLIN
			case descriptor.ReaderEmpty:
			default:
				conclusive = false
			}
		}
		if fds[i].Events&unix.POLLOUT != 0 {
			switch e.WriterState() {
			case descriptor.WriterReady:
				fds[i].Revents |= unix.POLLOUT
			case descriptor.WriterFull:
			default:
				conclusive = false
			}
		}
	}
	for i := range fds {
		if fds[i].Revents != 0 {
			readyCount++
		}
	}
	return readyCount, conclusive
}

// pollSlowPath implements §4.5 Poll step 3: park on every requested
// direction plus a timer, then resolve what woke the fiber.
func (f *Fiber) pollSlowPath(rt *Runtime, fds []unix.PollFd, timeout time.Duration) (int, error) {
	timer, err := newArmedTimer(rt, timeout)
	if err != nil {
		return -1, err
	}
	defer timer.dispose(rt)

	nodes := make([]waitqueue.Node, 0, 2*len(fds)+1)
	enqueue := func(list *waitqueue.List) {
		nodes = append(nodes, waitqueue.Node{})
		n := &nodes[len(nodes)-1]
		n.Bind(f)
		list.Enqueue(n)
	}

	for _, pfd := range fds {
		if !rt.table.InRange(int(pfd.Fd)) {
			continue
		}
		e := rt.table.Get(int(pfd.Fd))
		if pfd.Events&unix.POLLIN != 0 {
			enqueue(&e.ReaderWaiters)
		}
		if pfd.Events&unix.POLLOUT != 0 {
			enqueue(&e.WriterWaiters)
		}
	}
	enqueue(&timer.entry.ReaderWaiters)

	f.park()

	timedOut := f.WakeFD() == timer.fd()
	timer.disarmAndDrain()
	timer.entry.ReaderWaiters.Steal()

	if timedOut {
		for i := range fds {
			fds[i].Revents = 0
		}
		return 0, nil
	}

	n, _ := scanPollFast(rt, fds)
	return n, nil
}
