// Package pendingopen implements the one-shot rendezvous that correlates
// an outbound OPEN request to its eventual OKAY (success) or CLSE
// (rejection) reply.
package pendingopen

import "sync"

// Result is what a pending open eventually resolves to: either a remote
// id (success) or an error (the peer rejected the open).
type Result struct {
	RemoteID uint32
	Err      error
}

// Future is the consumer side of one pending open. It is handed back
// from Add and completed exactly once, by Resolve, Reject, or Table's
// bulk Abort.
type Future struct {
	ch chan Result
}

// Done returns a channel that receives exactly one Result when the
// pending open completes.
func (f *Future) Done() <-chan Result {
	return f.ch
}

// Table is a map of local ids to their in-flight Future, keyed the same
// way as the dispatcher's stream table so the two stay disjoint.
type Table struct {
	mu      sync.Mutex
	pending map[uint32]*Future
}

// New creates an empty pending-open table.
func New() *Table {
	return &Table{pending: make(map[uint32]*Future)}
}

// Add registers a new pending open for localID and returns the Future
// that will carry its resolution. localID must not already be pending;
// callers are expected to have just allocated it.
func (t *Table) Add(localID uint32) *Future {
	f := &Future{ch: make(chan Result, 1)}

	t.mu.Lock()
	t.pending[localID] = f
	t.mu.Unlock()

	return f
}

// Resolve completes a pending open with a remote id. It returns false,
// as a no-op, if localID was not pending — including the case where it
// was already resolved or rejected once (idempotent duplicate delivery).
func (t *Table) Resolve(localID uint32, remoteID uint32) bool {
	return t.complete(localID, Result{RemoteID: remoteID})
}

// Reject completes a pending open with an error. Same no-op semantics as
// Resolve for an absent or already-completed entry.
func (t *Table) Reject(localID uint32, err error) bool {
	return t.complete(localID, Result{Err: err})
}

func (t *Table) complete(localID uint32, res Result) bool {
	t.mu.Lock()
	f, ok := t.pending[localID]
	if ok {
		delete(t.pending, localID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	f.ch <- res
	return true
}

// Has reports whether localID currently has a pending open, without
// consuming it. Used by the dispatcher to keep invariant 1 (a localId is
// present in at most one of streams/pendingOpens) observable in tests.
func (t *Table) Has(localID uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[localID]
	return ok
}

// Abort rejects every still-pending open with err. Used by Dispose so no
// CreateStream caller is left blocked past transport loss.
func (t *Table) Abort(err error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[uint32]*Future)
	t.mu.Unlock()

	for _, f := range pending {
		f.ch <- Result{Err: err}
	}
}
