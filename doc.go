// Package fiberio is a user-space M:N fiber runtime that turns blocking
// POSIX-shaped I/O into cooperative, edge-triggered-epoll-driven I/O.
//
// Call StartLoop to bring up the descriptor table, the epoll set, the
// signal bridge and the worker pool, Spawn to schedule fibers, and the
// methods on *Fiber (Read, Write, Accept, Connect, SendTo, RecvFrom, Poll,
// Close) from inside a fiber's entry function wherever blocking-shaped I/O
// is wanted. StopLoop joins the event-loop thread once every spawned fiber
// has returned.
package fiberio
