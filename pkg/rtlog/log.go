// Package rtlog holds the runtime's single process-wide zerolog.Logger,
// mirroring the retrieval pack's logiface-zerolog backend: one logger
// constructed at startup, structured fields instead of formatted strings,
// level checks guarding anything on a hot path.
package rtlog

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var logger atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	logger.Store(&l)
}

// L returns the current process-wide logger.
func L() *zerolog.Logger {
	return logger.Load()
}

// SetLevel adjusts the minimum level the process-wide logger emits.
func SetLevel(level zerolog.Level) {
	l := logger.Load().Level(level)
	logger.Store(&l)
}

// Replace swaps the process-wide logger wholesale, for embedders that want
// JSON output, a different sink, or extra base fields.
func Replace(l zerolog.Logger) {
	logger.Store(&l)
}
