//go:build linux

package descriptor

import "golang.org/x/sys/unix"

// Table is the process-wide array of Entry, indexed directly by fd and
// sized once at startup to RLIMIT_NOFILE. It is shared by every worker and
// the event loop; all access beyond the initial allocation is through
// Entry's own atomics, so Table itself needs no lock.
type Table struct {
	entries []Entry
}

// NewTable allocates a Table sized to the process's current RLIMIT_NOFILE
// soft limit, per §5 ("allocated once... and never resized").
func NewTable() (*Table, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return nil, err
	}
	size := int(rlim.Cur)
	if size <= 0 {
		size = 1024
	}
	t := &Table{entries: make([]Entry, size)}
	for i := range t.entries {
		t.entries[i].Reset(i)
	}
	return t, nil
}

// Len reports the table's fixed capacity.
func (t *Table) Len() int { return len(t.entries) }

// Get returns the Entry for fd. The caller is responsible for bounds —
// fds beyond the table's capacity fall outside what this runtime can
// intercept, matching the spec's "fixed-size array indexed by fd".
func (t *Table) Get(fd int) *Entry {
	return &t.entries[fd]
}

// InRange reports whether fd has a slot in the table.
func (t *Table) InRange(fd int) bool {
	return fd >= 0 && fd < len(t.entries)
}
