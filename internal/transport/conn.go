// Package transport defines the duplex-channel interface the dispatcher
// consumes, plus reference implementations (TCP, WebRTC DataChannel).
// Per the dispatcher's scope, transports are external collaborators:
// framing, dialing, and handshakes live here, never protocol semantics.
package transport

import (
	"context"

	"github.com/quaylabs/adbmux/internal/wire"
)

// Conn is a framed duplex channel of ADB packets. Implementations must
// deliver ReadPacket results in the order they arrived on the wire —
// the dispatcher relies on in-order delivery per spec and does not
// reassemble or reorder at the application layer.
type Conn interface {
	// ReadPacket blocks until the next inbound packet is available, ctx
	// is cancelled, or the transport is closed/errors. A clean shutdown
	// returns io.EOF.
	ReadPacket(ctx context.Context) (*wire.Packet, error)

	// WritePacket sends one packet. Implementations must serialize
	// concurrent callers themselves if the underlying medium requires it;
	// the dispatcher is the only caller and serializes its own calls.
	WritePacket(ctx context.Context, pkt *wire.Packet) error

	// Close releases the underlying medium. Idempotent.
	Close() error
}
