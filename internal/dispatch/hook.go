package dispatch

import "github.com/quaylabs/adbmux/internal/stream"

// IncomingEvent describes a peer-initiated OPEN. The stream is fully
// constructed and ready to Read/Write, but not yet registered with the
// dispatcher or acknowledged to the peer — nothing happens until the
// hook runs.
type IncomingEvent struct {
	// Service is the decoded service string the peer opened, e.g.
	// "shell:" or "sync:".
	Service string

	// Stream is the candidate LogicalStream for this open.
	Stream *stream.LogicalStream

	// Handled must be set true by the hook to accept the stream. If it
	// is left false, the dispatcher rejects the open with a bare CLSE
	// and the stream is discarded.
	Handled bool
}

// IncomingHook is invoked synchronously from the inbound dispatch loop
// for every peer-initiated OPEN. Hooks that need to do blocking work
// should hand the stream off to another goroutine after setting
// Handled, rather than blocking here — the inbound loop stalls for
// every other stream while a hook runs.
type IncomingHook func(*IncomingEvent)
