// Package descriptor implements the per-file-descriptor readiness state
// machines (§4.2 of the design) and the fixed-size table that holds one
// entry per fd. This package is deliberately mechanical: it knows how to
// CAS a state, and how to steal a wait list, but nothing about fibers,
// workers or epoll. The event loop and syscall interceptor (in the
// top-level fiberio package) drive the actual transition tables using these
// primitives.
package descriptor

import "sync/atomic"

// Lifecycle tracks how far a descriptor has progressed through
// intercept_fd. It advances monotonically except for the reset on Close.
type Lifecycle int32

const (
	NotInited Lifecycle = iota
	Initializing
	Nonblocking
	Threadpool
)

func (l Lifecycle) String() string {
	switch l {
	case NotInited:
		return "NOT_INITED"
	case Initializing:
		return "INITIALIZING"
	case Nonblocking:
		return "NONBLOCKING"
	case Threadpool:
		return "THREADPOOL"
	default:
		return "UNKNOWN"
	}
}

// ReaderState is the reader-side belief about kernel readiness.
type ReaderState int32

const (
	ReaderEmpty ReaderState = iota // parked: runtime believes kernel has nothing
	ReaderUncertain                // try once and find out
	ReaderReading                  // a syscall is (or was just) in flight
	ReaderReady                    // an edge arrived, unconsumed
)

func (s ReaderState) String() string {
	switch s {
	case ReaderEmpty:
		return "EMPTY"
	case ReaderUncertain:
		return "UNCERTAIN"
	case ReaderReading:
		return "READING"
	case ReaderReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// WriterState is the writer-side belief about kernel buffer space. Note
// that WriterFull is the parked state, symmetric to ReaderEmpty; WriterReady
// is the writable state, symmetric to ReaderReady.
type WriterState int32

const (
	WriterReady WriterState = iota // can write
	WriterUncertain
	WriterWriting
	WriterFull // parked
)

func (s WriterState) String() string {
	switch s {
	case WriterReady:
		return "READY"
	case WriterUncertain:
		return "UNCERTAIN"
	case WriterWriting:
		return "WRITING"
	case WriterFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// atomicLifecycle, atomicReaderState and atomicWriterState are thin CAS
// wrappers over atomic.Int32, kept as named types purely for readability at
// call sites in entry.go.
type atomicLifecycle struct{ v atomic.Int32 }

func (a *atomicLifecycle) Load() Lifecycle { return Lifecycle(a.v.Load()) }
func (a *atomicLifecycle) Store(l Lifecycle) { a.v.Store(int32(l)) }
func (a *atomicLifecycle) CAS(from, to Lifecycle) bool {
	return a.v.CompareAndSwap(int32(from), int32(to))
}

type atomicReaderState struct{ v atomic.Int32 }

func (a *atomicReaderState) Load() ReaderState { return ReaderState(a.v.Load()) }
func (a *atomicReaderState) Store(s ReaderState) { a.v.Store(int32(s)) }
func (a *atomicReaderState) CAS(from, to ReaderState) bool {
	return a.v.CompareAndSwap(int32(from), int32(to))
}

type atomicWriterState struct{ v atomic.Int32 }

func (a *atomicWriterState) Load() WriterState { return WriterState(a.v.Load()) }
func (a *atomicWriterState) Store(s WriterState) { a.v.Store(int32(s)) }
func (a *atomicWriterState) CAS(from, to WriterState) bool {
	return a.v.CompareAndSwap(int32(from), int32(to))
}
