//go:build linux

package fiberio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestWorkers(t *testing.T, n int) []*Worker {
	t.Helper()
	workers := make([]*Worker, n)
	for i := range workers {
		w, err := newWorker(i)
		require.NoError(t, err)
		workers[i] = w
	}
	return workers
}

func TestPickTwoDistinctAreDistinct(t *testing.T) {
	for i := 0; i < 1000; i++ {
		a, b := pickTwoDistinct(5)
		require.NotEqual(t, a, b)
		require.True(t, a >= 0 && a < 5)
		require.True(t, b >= 0 && b < 5)
	}
}

func TestChooseWorkerSingleWorker(t *testing.T) {
	rt := &Runtime{workers: newTestWorkers(t, 1)}
	require.Same(t, rt.workers[0], rt.chooseWorker())
}

func TestChooseWorkerPicksLessLoaded(t *testing.T) {
	rt := &Runtime{workers: newTestWorkers(t, 8)}
	for i, w := range rt.workers {
		w.assigned.Store(int64(i))
	}

	// Worker 0 has the lowest load; with 8 workers, choice-of-two should
	// eventually land on it across enough trials even though it's not
	// guaranteed every trial.
	sawZero := false
	for i := 0; i < 500; i++ {
		if rt.chooseWorker().Index() == 0 {
			sawZero = true
			break
		}
	}
	require.True(t, sawZero)
}

func TestChooseWorkerNeverPicksTheMostLoadedWorker(t *testing.T) {
	rt := &Runtime{workers: newTestWorkers(t, 16)}
	maxLoad := int64(len(rt.workers) - 1)
	for i, w := range rt.workers {
		w.assigned.Store(int64(i))
	}

	for i := 0; i < 2000; i++ {
		picked := rt.chooseWorker()
		require.Less(t, picked.assigned.Load(), maxLoad, "the single most-loaded worker should never win a choice-of-two draw against any other worker")
	}
}
