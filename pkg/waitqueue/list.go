// Package waitqueue implements the lock-free intrusive wait list used by
// each descriptor direction (§4.2 of the design). A Node is pushed by the
// fiber that parks and is later "stolen" — atomically swapped out — by
// whichever goroutine (the event loop, or another syscall caller) observes
// the direction becoming non-parked.
//
// A Node's lifetime runs from Enqueue to the parking call returning; the
// caller must not let the Node escape that window. This mirrors the
// spec's stack-bound wait-node, adapted to a garbage-collected runtime: we
// keep the same steal-then-schedule protocol even though Go's GC, not frame
// lifetime, is what actually keeps the Node alive.
package waitqueue

import "sync/atomic"

// Node is a single parked waiter. Callers own the zero value; Bind before
// reuse.
type Node struct {
	fiber atomic.Pointer[any]
	next  *Node
}

// Fiber types are opaque to this package; callers store whatever handle
// they like (normally *fiberio.Fiber) behind the any interface.

// Bind associates the node with the given fiber handle, ready for
// enqueueing. Must be called before Enqueue.
func (n *Node) Bind(fiber any) {
	n.next = nil
	n.fiber.Store(&fiber)
}

// Steal atomically claims this node's fiber handle, returning nil if it has
// already been stolen (by a concurrent waker on this or another list the
// same fiber happened to be queued on). Only one caller ever wins.
func (n *Node) Steal() any {
	p := n.fiber.Swap(nil)
	if p == nil {
		return nil
	}
	return *p
}

// List is a LIFO, CAS-driven singly-linked list of wait Nodes. The order of
// nodes within a direction is not observable by the spec, so LIFO push is
// sufficient — see §4.2.
type List struct {
	head atomic.Pointer[Node]
}

// Enqueue pushes node onto the head of the list. Always succeeds
// (internally retries the CAS against concurrent pushers).
func (l *List) Enqueue(node *Node) {
	for {
		old := l.head.Load()
		node.next = old
		if l.head.CompareAndSwap(old, node) {
			return
		}
	}
}

// Steal atomically detaches the entire list (CAS head -> nil) and returns
// its former head. The caller owns the returned chain exclusively; no other
// goroutine can observe or mutate it after this call returns.
func (l *List) Steal() *Node {
	return l.head.Swap(nil)
}

// IsEmpty reports whether the list currently has no queued nodes. Racy by
// nature — only useful for diagnostics/tests, never for correctness.
func (l *List) IsEmpty() bool {
	return l.head.Load() == nil
}

// Walk invokes fn for every node in a chain returned by Steal, in list
// (LIFO-push) order, i.e. most-recently-enqueued first.
func Walk(chain *Node, fn func(*Node)) {
	for n := chain; n != nil; {
		next := n.next
		fn(n)
		n = next
	}
}
