//go:build linux

package fiberio

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"fiberio/pkg/epoll"
	"fiberio/pkg/rtlog"
	"fiberio/pkg/rtmetrics"
)

// aioSignal is SIGNAL (42) in §4.6/§6: reserved for AIO completion routing,
// blocked process-wide and consumed exclusively via signalfd.
const aioSignal = unix.Signal(42)

// signalBridge is C7: a signalfd registered with the event loop's epoll
// set, plus the token table that stands in for "interpret ssi_ptr as a
// fiber handle." Real io_submit/io_uring completion plumbing is out of
// scope (§1's externalized thread-pool/AIO submission path); what this
// runtime owns is the receiving half — given a token handed out by
// Register, resolve it back to the parked fiber and schedule it.
type signalBridge struct {
	fd int

	mu      sync.Mutex
	handles map[uintptr]*Fiber
	next    atomic.Uintptr
}

func newSignalBridge(ep *epoll.Epoll) (*signalBridge, error) {
	var set unix.Sigset_t
	addSignal(&set, aioSignal)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return nil, err
	}

	fd, err := unix.Signalfd(-1, &set, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	if err := ep.AddEdgeTriggered(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	installSIGTERMHandler()

	return &signalBridge{fd: fd, handles: make(map[uintptr]*Fiber)}, nil
}

// Register hands out a token for an AIO submission's sigev_value.sival_ptr.
// The caller is responsible for actually submitting the AIO request with
// sigev_signo = 42 and this token as sival_ptr; on completion the kernel's
// signal is routed back here by the event loop.
func (b *signalBridge) Register(f *Fiber) uintptr {
	tok := b.next.Add(1)
	b.mu.Lock()
	b.handles[tok] = f
	b.mu.Unlock()
	return tok
}

func (b *signalBridge) resolve(tok uintptr) *Fiber {
	b.mu.Lock()
	f := b.handles[tok]
	delete(b.handles, tok)
	b.mu.Unlock()
	return f
}

var signalfdSiginfoSize = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))

// drainSignals reads up to 20 signalfd_siginfo records (§4.4 step 2) and
// schedules the fiber named by each aioSignal completion.
func (rt *Runtime) drainSignals() {
	buf := make([]byte, 20*signalfdSiginfoSize)
	n, err := unix.Read(rt.signals.fd, buf)
	if err != nil {
		return
	}
	for off := 0; off+signalfdSiginfoSize <= n; off += signalfdSiginfoSize {
		info := (*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[off]))
		if unix.Signal(info.Signo) != aioSignal {
			continue
		}
		f := rt.signals.resolve(uintptr(info.Ptr))
		if f == nil {
			continue
		}
		f.setWakeFD(-1)
		rt.scheduleFiber(f)
	}
}

// addSignal sets sig's bit in set, mirroring unix.Sigset_t's layout (an
// array of 64-bit words, signal N in bit (N-1)%64 of word (N-1)/64).
func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	bit := uint(sig) - 1
	set.Val[bit/64] |= 1 << (bit % 64)
}

// SubmitAIO registers f as the completion target for an AIO request the
// caller is about to submit with sigev_signo = 42, returning the token to
// pass as sigev_value.sival_ptr. Call immediately before submission, then
// park f (e.g. via Fiber.Yield) until the event loop schedules it back.
func (rt *Runtime) SubmitAIO(f *Fiber) uintptr {
	return rt.signals.Register(f)
}

// installSIGTERMHandler installs the §4.6 SIGTERM path. Go's runtime owns
// every OS thread's signal mask and routes terminal signals through its own
// handler; os/signal.Notify is the idiomatic substitute for a raw sigaction
// SIGTERM handler here, not a raw signal handler installed by this package.
func installSIGTERMHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM)
	go func() {
		<-ch
		rtlog.L().Info().Interface("stats", rtmetrics.Snap()).Msg("SIGTERM received")
		os.Exit(9)
	}()
}
