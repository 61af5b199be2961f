package dispatch

import (
	"errors"

	"github.com/quaylabs/adbmux/internal/stream"
)

var (
	// ErrTransportFailure wraps any error surfaced by the underlying
	// transport.Conn, and is also the error every live stream and
	// pending open is disposed with once the transport is gone.
	ErrTransportFailure = errors.New("dispatch: transport failure")

	// ErrPayloadTooLarge is returned when an outbound payload exceeds
	// Config.MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("dispatch: payload exceeds maximum size")

	// ErrOpenRejected is returned from CreateStream when the peer
	// refuses the open with a bare CLSE (remoteId 0) instead of OKAY.
	ErrOpenRejected = errors.New("dispatch: peer rejected open")

	// ErrStreamClosed is the error LogicalStream.Write returns for an
	// operation on a torn-down stream (Read reports io.EOF instead). It is
	// the same sentinel
	// stream.ErrClosed so callers going through either package's API see
	// one value with errors.Is.
	ErrStreamClosed = stream.ErrClosed

	// ErrProtocolViolation marks a packet that is well-formed at the
	// wire level but inconsistent with dispatcher state. The dispatcher
	// neither returns nor emits it: such packets (e.g. a WRTE naming a
	// localId that was never opened) are logged as stale and discarded.
	ErrProtocolViolation = errors.New("dispatch: protocol violation")

	// ErrDisposed names the dispatcher-disposed condition. No Dispatcher
	// method returns it: a send attempted after Dispose fails with the
	// closed transport's error wrapped in ErrTransportFailure.
	ErrDisposed = errors.New("dispatch: dispatcher disposed")
)
