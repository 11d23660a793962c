//go:build linux

package fiberio

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"fiberio/pkg/descriptor"
	"fiberio/pkg/epoll"
	"fiberio/pkg/rtlog"
	"fiberio/pkg/rtmetrics"
	"fiberio/pkg/threadpool"
	"fiberio/pkg/wakeable"
)

// Runtime bundles the process-wide singletons the design calls out in §3:
// the descriptor table, the worker array, `alive`, `terminate_event`, the
// epoll set and the signal bridge. Exactly one Runtime is created by
// StartLoop and torn down by StopLoop.
type Runtime struct {
	conf *Config

	table   *descriptor.Table
	workers []*Worker
	pool    *threadpool.Pool

	epoll          *epoll.Epoll
	terminateEvent *wakeable.Event
	signals        *signalBridge

	alive atomic.Int64

	loopDone chan struct{}
}

// StartLoop initializes the descriptor table, epoll set, signal bridge,
// termination event and worker queues, and starts the event-loop thread.
// Call once.
func StartLoop(opts ...Option) (*Runtime, error) {
	conf := defaultConfig()
	for _, opt := range opts {
		opt(conf)
	}
	if conf.Workers <= 0 {
		conf.Workers = 1
	}

	table, err := descriptor.NewTable()
	if err != nil {
		return nil, err
	}

	ep, err := epoll.New(conf.MaxEvents)
	if err != nil {
		return nil, err
	}

	terminateEvent, err := wakeable.NewEvent()
	if err != nil {
		_ = ep.Close()
		return nil, err
	}
	if err := ep.AddEdgeTriggered(terminateEvent.FD()); err != nil {
		_ = ep.Close()
		_ = terminateEvent.Dispose()
		return nil, err
	}

	rt := &Runtime{
		conf:           conf,
		table:          table,
		epoll:          ep,
		terminateEvent: terminateEvent,
		pool:           threadpool.New(conf.ThreadPoolSize),
		loopDone:       make(chan struct{}),
	}

	bridge, err := newSignalBridge(ep)
	if err != nil {
		_ = ep.Close()
		_ = terminateEvent.Dispose()
		return nil, err
	}
	rt.signals = bridge

	rt.workers = make([]*Worker, conf.Workers)
	for i := range rt.workers {
		w, err := newWorker(i)
		if err != nil {
			_ = ep.Close()
			_ = terminateEvent.Dispose()
			return nil, err
		}
		rt.workers[i] = w
	}

	go rt.runEventLoop()

	for _, w := range rt.workers {
		go w.run(rt)
	}

	if conf.Debug {
		rtlog.SetLevel(zerolog.DebugLevel)
	}

	return rt, nil
}

// StopLoop joins the event-loop thread. Shutdown is actually driven by
// `alive` reaching 0 (§4.3/§4.4): once the last fiber terminates, the event
// loop notices via the termination path and every worker exits in turn.
// StopLoop simply blocks until that has happened.
func (rt *Runtime) StopLoop() error {
	<-rt.loopDone
	rt.pool.Close()
	if err := rt.terminateEvent.Dispose(); err != nil {
		return err
	}
	return rt.epoll.Close()
}

// Spawn schedules a new fiber; no result. Increments `alive`.
func (rt *Runtime) Spawn(entry func(f *Fiber)) {
	rt.alive.Add(1)
	w := rt.chooseWorker()
	w.assigned.Add(1)
	f := newFiber(w.Index(), entry)
	w.push(f)
	rtmetrics.Alive.Update(rt.alive.Load())
}

func (rt *Runtime) aliveCount() int64 {
	return rt.alive.Load()
}

// fiberTerminated is called by a worker right after a fiber's entry
// function returns (or panics, per §7 treated identically). It decrements
// `alive` (invariant 5) and, per the design's resolution of the "assigned
// never decrements" open question, gives back the owning worker's load
// credit.
//
// Workers only check alive==0 after waking from wait_and_reset and draining
// their queue (§4.3), so nothing re-checks it once a worker's queue goes
// quiet. The
// worker whose fiber happens to be the last one standing is therefore
// responsible for kicking off the shutdown cascade itself: it triggers
// terminate_event, which the event loop observes and relays to every
// worker's own eventfd (§4.4), waking them all out of wait_and_reset to
// re-check alive and exit.
func (rt *Runtime) fiberTerminated(w *Worker) {
	remaining := rt.alive.Add(-1)
	w.assigned.Add(-1)
	rtmetrics.Alive.Update(remaining)
	if remaining == 0 {
		_ = rt.terminateEvent.Trigger()
	}
}

// scheduleFiber pushes a fiber back onto its owning worker's queue and
// wakes that worker. Used by Fiber.Yield and by schedule_readers/
// schedule_writers in eventloop.go and intercept.go.
func (rt *Runtime) scheduleFiber(f *Fiber) {
	w := rt.workers[f.Owner()]
	w.push(f)
}

// Stats returns a point-in-time snapshot of the runtime's counters, used by
// the SIGTERM handler's optional stats dump and by embedders that want a
// periodic health line.
func (rt *Runtime) Stats() rtmetrics.Snapshot {
	return rtmetrics.Snap()
}
