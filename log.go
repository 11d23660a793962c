package fiberio

import "fiberio/pkg/rtlog"

func rtlogTriggerFailure(worker int, err error) {
	rtlog.L().Warn().Int("worker", worker).Err(err).Msg("failed to trigger worker eventfd")
}

func rtlogPinFailure(worker int, err error) {
	rtlog.L().Warn().Int("worker", worker).Err(err).Msg("failed to pin worker to cpu")
}

// rtlogFiberPanic logs an uncaught error inside a fiber's entry function.
// Per §7, this is treated as if the fiber had terminated normally: the
// caller still decrements alive.
func rtlogFiberPanic(f *Fiber, r any) {
	rtlog.L().Error().Stringer("fiber", f.ID()).Interface("panic", r).Msg("uncaught error in fiber entry")
}
