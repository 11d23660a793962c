//go:build linux

// Package wakeable provides the two raw, process-local kernel primitives the
// runtime builds everything else on top of: a binary eventfd-backed signal
// and a one-shot timerfd-backed timer. Neither primitive knows anything
// about fibers, descriptors or workers — they are the leaves of the system.
package wakeable

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Event is a binary event backed by an eventfd initialized to 0. Trigger
// sets the counter to (at least) 1; WaitAndReset blocks until the counter is
// non-zero, then atomically reads and resets it. There are no spurious
// wakes: a goroutine unblocked by WaitAndReset is guaranteed to have
// observed a Trigger that happened-after the previous WaitAndReset.
type Event struct {
	fd int
}

// NewEvent creates an eventfd initialized to 0, blocking and close-on-exec.
func NewEvent() (*Event, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Event{fd: fd}, nil
}

// FD returns the underlying eventfd, for registration with epoll.
func (e *Event) FD() int {
	return e.fd
}

// Trigger writes an 8-byte counter increment of 1, retrying on EINTR.
func (e *Event) Trigger() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(e.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// WaitAndReset blocks (via a blocking read on the eventfd) until the counter
// is non-zero, then resets it to 0 and returns. The read is what both
// observes and resets the trigger.
func (e *Event) WaitAndReset() error {
	var buf [8]byte
	for {
		_, err := unix.Read(e.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// Dispose closes the underlying eventfd.
func (e *Event) Dispose() error {
	return unix.Close(e.fd)
}
