// Package streamid hands out locally-unique, non-zero 32-bit stream
// identifiers and recycles them once released.
package streamid

import "sync"

// Allocator produces ids starting at 1, monotonically, and recycles
// released ids onto a free list. Zero is never handed out.
//
// Correctness does not depend on monotonicity beyond "zero is reserved";
// the free list is a reuse optimization, not a requirement.
type Allocator struct {
	mu     sync.Mutex
	next   uint32
	free   []uint32
	inUse  map[uint32]struct{}
}

// New creates an allocator with no ids handed out.
func New() *Allocator {
	return &Allocator{next: 1, inUse: make(map[uint32]struct{})}
}

// Allocate returns a fresh, non-zero id not currently in use.
func (a *Allocator) Allocate() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var id uint32
	if n := len(a.free); n > 0 {
		id = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		id = a.next
		a.next++
	}

	a.inUse[id] = struct{}{}
	return id
}

// Release returns an id to the free list. The caller must have already
// removed the id from every table that references it (the dispatcher's
// streams and pendingOpens maps) — Release does not itself verify that,
// since the allocator has no visibility into those tables.
func (a *Allocator) Release(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.inUse[id]; !ok {
		return
	}
	delete(a.inUse, id)
	a.free = append(a.free, id)
}
