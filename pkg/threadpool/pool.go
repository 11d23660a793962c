// Package threadpool implements the fallback described only by interface in
// the design: "given (fd, syscall, args), perform the syscall on a
// non-fiber worker and return its result to the calling fiber." It is used
// for descriptors intercept_fd finds non-pollable (regular files, block
// devices — EPOLL_CTL_ADD returning EPERM), which the design tags with
// THREADPOOL lifecycle instead of NONBLOCKING.
//
// Grounded on the teacher's pkg/pool.WorkerPool/GoroutinePool: a bounded
// set of goroutines draining a task channel, generalized here to carry an
// arbitrary blocking operation plus a completion callback instead of a bare
// func().
package threadpool

// Task is one blocking operation to run off the fiber path.
type Task struct {
	Fd       int
	Op       func() (int, error)
	Complete func(n int, err error)
}

// Pool is a bounded pool of goroutines, each blocked in a real (kernel
// blocking) syscall on behalf of one Task at a time.
type Pool struct {
	tasks chan Task
	done  chan struct{}
}

// New starts a Pool with size worker goroutines. size mirrors the teacher's
// WorkerPool constructor argument.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan Task, size*4),
		done:  make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	for {
		select {
		case <-p.done:
			return
		case t := <-p.tasks:
			n, err := t.Op()
			t.Complete(n, err)
		}
	}
}

// Submit enqueues a task. Blocks if every worker is currently busy and the
// internal buffer is full, matching the teacher's WorkerPool.Take/Submit
// back-pressure behavior.
func (p *Pool) Submit(t Task) {
	p.tasks <- t
}

// Close stops all worker goroutines once their current task (if any)
// completes. In-flight tasks still run to completion; queued-but-unstarted
// tasks may or may not run, depending on which ready select case each
// worker picks.
func (p *Pool) Close() {
	close(p.done)
}
