// Package system reports process-level resource usage the SIGTERM stats
// dump and Runtime.Stats() surface alongside the fiber-runtime counters in
// pkg/rtmetrics.
package system

import "runtime"

// Usage is a point-in-time read of the Go runtime's own resource counters.
type Usage struct {
	SysBytes   uint64
	Goroutines int
}

// Snapshot reads the current process resource usage.
func Snapshot() Usage {
	var memStat runtime.MemStats
	runtime.ReadMemStats(&memStat)
	return Usage{
		SysBytes:   memStat.Sys,
		Goroutines: runtime.NumGoroutine(),
	}
}
