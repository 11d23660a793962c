package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryResetDefaults(t *testing.T) {
	var e Entry
	e.Reset(7)

	require.Equal(t, 7, e.Fd)
	require.Equal(t, NotInited, e.Lifecycle())
	require.Equal(t, ReaderEmpty, e.ReaderState())
	require.Equal(t, WriterReady, e.WriterState())
	require.True(t, e.ReaderWaiters.IsEmpty())
	require.True(t, e.WriterWaiters.IsEmpty())
}

func TestLifecycleMonotonic(t *testing.T) {
	var e Entry
	e.Reset(1)

	require.True(t, e.CASLifecycle(NotInited, Initializing))
	require.False(t, e.CASLifecycle(NotInited, Initializing), "NOT_INITED -> INITIALIZING must not be reachable twice")
	require.True(t, e.CASLifecycle(Initializing, Nonblocking))
	require.Equal(t, Nonblocking, e.Lifecycle())

	// close() is the only path back to NOT_INITED.
	e.StoreLifecycle(NotInited)
	require.Equal(t, NotInited, e.Lifecycle())
}

func TestReaderStateTransitionsMatchEventLoopTable(t *testing.T) {
	var e Entry
	e.Reset(1)

	// EMPTY -> READY on an observed edge.
	require.True(t, e.CASReaderState(ReaderEmpty, ReaderReady))
	require.Equal(t, ReaderReady, e.ReaderState())

	// READY -> READING when a fiber attempts the syscall.
	require.True(t, e.CASReaderState(ReaderReady, ReaderReading))

	// Full-length read result: READING -> UNCERTAIN.
	require.True(t, e.CASReaderState(ReaderReading, ReaderUncertain))

	// UNCERTAIN -> READING on next attempt, then a partial read drains it.
	require.True(t, e.CASReaderState(ReaderUncertain, ReaderReading))
	require.True(t, e.CASReaderState(ReaderReading, ReaderEmpty))
	require.Equal(t, ReaderEmpty, e.ReaderState())
}

func TestWriterStateIsSymmetricToReader(t *testing.T) {
	var e Entry
	e.Reset(1)

	require.Equal(t, WriterReady, e.WriterState(), "writer starts READY, the mirror of reader's EMPTY")

	require.True(t, e.CASWriterState(WriterReady, WriterWriting))
	// Partial write: WRITING -> FULL, the writer's parked state.
	require.True(t, e.CASWriterState(WriterWriting, WriterFull))
	require.Equal(t, WriterFull, e.WriterState())

	// An observed EPOLLOUT edge moves FULL -> READY, symmetric to EMPTY -> READY.
	require.True(t, e.CASWriterState(WriterFull, WriterReady))
}

func TestCASFailsOnStaleFrom(t *testing.T) {
	var e Entry
	e.Reset(1)

	require.False(t, e.CASReaderState(ReaderReady, ReaderReading), "current state is EMPTY, not READY")
	require.False(t, e.CASWriterState(WriterFull, WriterReady), "current state is READY, not FULL")
}
