package descriptor

import "fiberio/pkg/waitqueue"

// Entry is one descriptor's worth of state: the lifecycle CAS, the two
// independent 4-state machines, and their two wait lists. Exactly one Entry
// exists per fd for the lifetime of the process (see Table).
type Entry struct {
	Fd int

	lifecycle atomicLifecycle

	readerState atomicReaderState
	writerState atomicWriterState

	ReaderWaiters waitqueue.List
	WriterWaiters waitqueue.List
}

// Reset returns the entry to its initial, just-allocated state: lifecycle
// NOT_INITED, reader EMPTY, writer READY (the writer's ready-to-accept
// state, symmetric to the reader's initial EMPTY). The wait lists are not
// touched: Reset does not steal or clear any residual nodes.
func (e *Entry) Reset(fd int) {
	e.Fd = fd
	e.lifecycle.Store(NotInited)
	e.readerState.Store(ReaderEmpty)
	e.writerState.Store(WriterReady)
}

func (e *Entry) Lifecycle() Lifecycle                      { return e.lifecycle.Load() }
func (e *Entry) StoreLifecycle(l Lifecycle)                 { e.lifecycle.Store(l) }
func (e *Entry) CASLifecycle(from, to Lifecycle) bool        { return e.lifecycle.CAS(from, to) }

func (e *Entry) ReaderState() ReaderState                         { return e.readerState.Load() }
func (e *Entry) StoreReaderState(s ReaderState)                   { e.readerState.Store(s) }
func (e *Entry) CASReaderState(from, to ReaderState) bool          { return e.readerState.CAS(from, to) }

func (e *Entry) WriterState() WriterState                         { return e.writerState.Load() }
func (e *Entry) StoreWriterState(s WriterState)                   { e.writerState.Store(s) }
func (e *Entry) CASWriterState(from, to WriterState) bool          { return e.writerState.CAS(from, to) }
