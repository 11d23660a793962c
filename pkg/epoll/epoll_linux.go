//go:build linux

// Package epoll wraps the raw epoll(7) instance the event loop (C5) drives.
// Adapted from the teacher's pkg/poller.Epoll: that type registered
// level-triggered POLLIN/POLLHUP for a connection-oriented reactor and
// returned two plain fd slices. This runtime needs edge-triggered
// IN|OUT registration for the fd's entire NONBLOCKING lifetime (§4.2
// invariant 4) and structured per-event flags so the event loop can run the
// reader/writer transition tables independently.
package epoll

import (
	"golang.org/x/sys/unix"
)

// Events is the decoded set of epoll flags the event loop cares about for a
// single fd in one epoll_wait batch.
type Events struct {
	Fd  int
	In  bool
	Out bool
	Err bool
	Hup bool
}

// Epoll owns one epoll instance plus the event buffer epoll_wait fills in.
type Epoll struct {
	fd     int
	events []unix.EpollEvent
}

// New creates an epoll instance with room for maxEvents per Wait call.
func New(maxEvents int) (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if maxEvents <= 0 {
		maxEvents = 500 // §4.4's default batch size
	}
	return &Epoll{fd: fd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

// FD returns the underlying epoll fd, so it can itself be added to another
// epoll set if ever needed, and for diagnostics.
func (e *Epoll) FD() int { return e.fd }

// AddEdgeTriggered registers fd for EPOLLIN|EPOLLOUT in edge-triggered mode,
// for the fd's entire NONBLOCKING lifetime (§4.2 invariant 4). Returns the
// raw error so callers can distinguish EPERM (non-pollable fd, §4.5 step 2)
// from other failures.
func (e *Epoll) AddEdgeTriggered(fd int) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET,
		Fd:     int32(fd),
	})
}

// Remove drops fd from the epoll set. Typically a no-op call site, since the
// kernel auto-removes a fd on its final close, but harmless to call
// explicitly and useful in tests that don't actually close the fd.
func (e *Epoll) Remove(fd int) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks in epoll_wait (retrying internally on EINTR) and returns the
// decoded events for this batch.
func (e *Epoll) Wait() ([]Events, error) {
	var n int
	for {
		var err error
		n, err = unix.EpollWait(e.fd, e.events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	out := make([]Events, 0, n)
	for i := 0; i < n; i++ {
		ev := e.events[i]
		out = append(out, Events{
			Fd:  int(ev.Fd),
			In:  ev.Events&unix.EPOLLIN != 0,
			Out: ev.Events&unix.EPOLLOUT != 0,
			Err: ev.Events&unix.EPOLLERR != 0,
			Hup: ev.Events&unix.EPOLLHUP != 0,
		})
	}
	return out, nil
}

// Close releases the epoll fd.
func (e *Epoll) Close() error {
	return unix.Close(e.fd)
}
