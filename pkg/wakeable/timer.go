//go:build linux

package wakeable

import (
	"time"

	"golang.org/x/sys/unix"
)

// Timer wraps a CLOCK_MONOTONIC, non-blocking timerfd. Armed timers are
// registered with the event loop's epoll set like any other descriptor;
// when they fire, the event loop routes the expiry through the normal
// readiness machinery for the timer's own fd (it becomes readable).
type Timer struct {
	fd int
}

// NewTimer creates a disarmed, non-blocking, close-on-exec timerfd on
// CLOCK_MONOTONIC.
func NewTimer() (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &Timer{fd: fd}, nil
}

// FD returns the underlying timerfd, for registration with epoll.
func (t *Timer) FD() int {
	return t.fd
}

// Arm sets a one-shot expiry d from now, with zero interval.
func (t *Timer) Arm(d time.Duration) error {
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(d.Nanoseconds()),
	}
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// Disarm cancels any pending expiry.
func (t *Timer) Disarm() error {
	var spec unix.ItimerSpec
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// Drain consumes the 8-byte expiration counter so the timerfd re-arms for
// edge-triggered epoll. Safe to call even if the timer hasn't fired: the
// read then fails with EAGAIN, which Drain ignores.
func (t *Timer) Drain() {
	var buf [8]byte
	_, _ = unix.Read(t.fd, buf[:])
}

// Dispose closes the underlying timerfd.
func (t *Timer) Dispose() error {
	return unix.Close(t.fd)
}
