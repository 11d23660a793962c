// Package mpsc implements the per-worker intrusive run queue: many
// producers (spawners and the event loop) push runnable fibers, exactly one
// consumer (the owning worker) drains them. Pushes are lock-free; Drain
// reverses the push-order stack back into FIFO order in one pass, the same
// trick the retrieval pack's sleeper/waker queue uses for its asserted-waker
// list.
package mpsc

import "sync/atomic"

// Node is the intrusive link embedded in whatever the queue carries.
// Callers set Value themselves; this package only follows next.
type Node struct {
	next  *Node
	Value any
}

// Queue is a lock-free, multi-producer single-consumer stack that Drain
// turns into a FIFO-ordered chain of Nodes for the sole consumer to walk.
type Queue struct {
	head atomic.Pointer[Node]
}

// Push adds node to the queue. Safe for any number of concurrent callers.
func (q *Queue) Push(node *Node) {
	for {
		old := q.head.Load()
		node.next = old
		if q.head.CompareAndSwap(old, node) {
			return
		}
	}
}

// Drain atomically detaches the whole queue and returns its contents in
// FIFO (push-order) as a singly-linked chain via Node.next. Must only be
// called by the single designated consumer. Returns nil if the queue was
// empty.
func (q *Queue) Drain() *Node {
	v := q.head.Swap(nil)
	if v == nil {
		return nil
	}

	// v is in reverse-push (LIFO) order; reverse it in place to restore
	// FIFO order, the same interleaving fix the pack's sleeper applies to
	// its asserted-waker list.
	var prev *Node
	for v != nil {
		next := v.next
		v.next = prev
		prev = v
		v = next
	}
	return prev
}

// Walk invokes fn for every node in a chain returned by Drain, in order.
func Walk(chain *Node, fn func(*Node)) {
	for n := chain; n != nil; {
		next := n.next
		fn(n)
		n = next
	}
}
