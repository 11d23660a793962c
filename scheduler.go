package fiberio

import (
	"github.com/bytedance/gopkg/lang/fastrand"
)

// pickTwoDistinct draws two distinct indices uniformly at random from
// [0, n). Requires n >= 2.
func pickTwoDistinct(n int) (int, int) {
	a := int(fastrand.Uint32n(uint32(n)))
	b := int(fastrand.Uint32n(uint32(n)))
	for b == a {
		b = int(fastrand.Uint32n(uint32(n)))
	}
	return a, b
}

// chooseWorker implements the choice-of-two-loads policy (§4.3): draw two
// distinct worker indices, plain-load each assigned counter, and return the
// less-loaded one. With a single worker, there's no choice to make.
func (rt *Runtime) chooseWorker() *Worker {
	if len(rt.workers) == 1 {
		return rt.workers[0]
	}
	i, j := pickTwoDistinct(len(rt.workers))
	wi, wj := rt.workers[i], rt.workers[j]
	if wi.assigned.Load() <= wj.assigned.Load() {
		return wi
	}
	return wj
}
