// Package rtmetrics exposes the runtime's counters through a dedicated
// github.com/rcrowley/go-metrics registry, kept separate from the global
// default registry so embedding applications don't get surprise series.
package rtmetrics

import (
	"strconv"

	metrics "github.com/rcrowley/go-metrics"

	"fiberio/pkg/system"
)

// Registry is the process-wide registry for every counter this runtime
// maintains. It is intentionally not metrics.DefaultRegistry, so a host
// application's own metrics aren't polluted by ours.
var Registry = metrics.NewRegistry()

var (
	// Alive mirrors the `alive` singleton: fibers spawned minus fibers
	// terminated.
	Alive = metrics.NewRegisteredGauge("runtime.alive", Registry)
	// Accepts counts successful accept() completions across all
	// descriptors.
	Accepts = metrics.NewRegisteredCounter("runtime.accepts", Registry)
	// Reads and Writes are meters over descriptor read/write syscalls that
	// actually transferred bytes (i.e. not the EAGAIN probes).
	Reads  = metrics.NewRegisteredMeter("descriptor.reads", Registry)
	Writes = metrics.NewRegisteredMeter("descriptor.writes", Registry)
)

// WorkerQueueDepth returns (creating if necessary) the gauge tracking a
// single worker's run-queue depth.
func WorkerQueueDepth(worker int) metrics.Gauge {
	name := "worker." + strconv.Itoa(worker) + ".queue_depth"
	return metrics.GetOrRegisterGauge(name, Registry)
}

// Snapshot is a point-in-time view of the counters a SIGTERM stats dump or
// Runtime.Stats() would want to print.
type Snapshot struct {
	Alive      int64
	Accepts    int64
	Reads      int64
	Writes     int64
	SysBytes   uint64
	Goroutines int
}

// Snap takes a consistent-enough snapshot of the headline counters plus the
// Go runtime's own resource usage.
func Snap() Snapshot {
	usage := system.Snapshot()
	return Snapshot{
		Alive:      Alive.Value(),
		Accepts:    Accepts.Count(),
		Reads:      Reads.Count(),
		Writes:     Writes.Count(),
		SysBytes:   usage.SysBytes,
		Goroutines: usage.Goroutines,
	}
}
