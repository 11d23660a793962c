//go:build linux

package fiberio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := StartLoop(WithWorkers(2), WithMaxEvents(32), WithThreadPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = rt.StopLoop()
	})
	return rt
}

// TestRoundTrip covers §8 invariant 5: writer and reader fibers moving an
// arbitrary byte sequence across a pipe reproduce it byte for byte.
func TestRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	rfd, wfd := fds[0], fds[1]

	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan []byte, 1)
	errs := make(chan error, 2)

	rt.Spawn(func(f *Fiber) {
		got := make([]byte, 0, len(payload))
		buf := make([]byte, 4096)
		for len(got) < len(payload) {
			n, err := f.Read(rt, rfd, buf)
			if err != nil {
				errs <- err
				return
			}
			got = append(got, buf[:n]...)
		}
		_, _ = f.Close(rt, rfd)
		done <- got
	})

	rt.Spawn(func(f *Fiber) {
		sent := 0
		for sent < len(payload) {
			n, err := f.Write(rt, wfd, payload[sent:])
			if err != nil {
				errs <- err
				return
			}
			sent += n
		}
		_, _ = f.Close(rt, wfd)
	})

	select {
	case got := <-done:
		require.Equal(t, payload, got)
	case err := <-errs:
		t.Fatalf("round trip failed: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("round trip timed out")
	}
}

// TestPollTimeout covers S3: poll with nfds=0 and a timeout returns 0 after
// roughly the requested duration.
func TestPollTimeout(t *testing.T) {
	rt := newTestRuntime(t)

	result := make(chan time.Duration, 1)
	rt.Spawn(func(f *Fiber) {
		start := time.Now()
		n, err := f.Poll(rt, nil, 50*time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, 0, n)
		result <- time.Since(start)
	})

	select {
	case elapsed := <-result:
		require.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
		require.Less(t, elapsed, 500*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("poll timeout test did not complete")
	}
}

// TestPollWakeupBeforeTimeout covers S4: a pipe becoming readable wakes a
// poller parked with a much longer timeout.
func TestPollWakeupBeforeTimeout(t *testing.T) {
	rt := newTestRuntime(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	rfd, wfd := fds[0], fds[1]

	result := make(chan int, 1)
	rt.Spawn(func(f *Fiber) {
		pollFds := []unix.PollFd{{Fd: int32(rfd), Events: unix.POLLIN}}
		n, err := f.Poll(rt, pollFds, time.Second)
		require.NoError(t, err)
		if n > 0 {
			require.NotZero(t, pollFds[0].Revents&unix.POLLIN)
		}
		result <- n
	})

	rt.Spawn(func(f *Fiber) {
		time.Sleep(10 * time.Millisecond)
		_, _ = f.Write(rt, wfd, []byte{1})
	})

	select {
	case n := <-result:
		require.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("poll wakeup test did not complete")
	}
}

// TestCloseWakesParkedReader covers S5: closing a descriptor a fiber is
// blocked reading wakes it with an error instead of hanging forever.
func TestCloseWakesParkedReader(t *testing.T) {
	rt := newTestRuntime(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	rfd, wfd := fds[0], fds[1]

	woke := make(chan struct{}, 1)
	rt.Spawn(func(f *Fiber) {
		buf := make([]byte, 16)
		_, _ = f.Read(rt, rfd, buf)
		woke <- struct{}{}
	})

	rt.Spawn(func(f *Fiber) {
		time.Sleep(20 * time.Millisecond)
		_, _ = f.Close(rt, rfd)
	})
	defer unix.Close(wfd)

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("closing fd did not wake the parked reader")
	}
}

// TestGracefulShutdown covers S6: once every spawned fiber returns,
// StopLoop returns and alive is back to zero.
func TestGracefulShutdown(t *testing.T) {
	rt, err := StartLoop(WithWorkers(2))
	require.NoError(t, err)

	const n = 20
	for i := 0; i < n; i++ {
		rt.Spawn(func(f *Fiber) {
			_, _ = f.Poll(rt, nil, 10*time.Millisecond)
		})
	}

	doneCh := make(chan struct{})
	go func() {
		_ = rt.StopLoop()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		require.Equal(t, int64(0), rt.aliveCount())
	case <-time.After(5 * time.Second):
		t.Fatal("graceful shutdown did not complete")
	}
}
