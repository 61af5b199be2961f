// Package dispatch implements the single-connection packet dispatcher:
// it demultiplexes inbound ADB wire packets to per-stream sinks,
// arbitrates stream establishment in both directions, enforces
// stop-and-wait OKAY flow control, tears streams down, and propagates
// transport loss to every dependent stream.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/quaylabs/adbmux/internal/logx"
	"github.com/quaylabs/adbmux/internal/pendingopen"
	"github.com/quaylabs/adbmux/internal/stats"
	"github.com/quaylabs/adbmux/internal/stream"
	"github.com/quaylabs/adbmux/internal/streamid"
	"github.com/quaylabs/adbmux/internal/transport"
	"github.com/quaylabs/adbmux/internal/wire"
)

// StreamInfo is a point-in-time snapshot of one registered stream, for
// diagnostics and the CLI.
type StreamInfo struct {
	LocalID  uint32
	RemoteID uint32
	Service  string
}

// Dispatcher owns one transport.Conn and every LogicalStream
// multiplexed over it. There is exactly one inbound loop per
// Dispatcher; all state transitions it makes are serialized by that
// loop or by mu, so handlers never need to worry about concurrent
// peer-driven mutation of the same bookkeeping they're touching.
type Dispatcher struct {
	cfg      Config
	conn     transport.Conn
	ids      *streamid.Allocator
	pending  *pendingopen.Table
	counters *stats.Counters

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	streams map[uint32]*stream.LogicalStream

	sendMu sync.Mutex

	hookMu sync.Mutex
	hook   IncomingHook

	errMu        sync.Mutex
	errListeners []func(error)
	lastErr      error

	disconnected   chan struct{}
	disconnectOnce sync.Once
}

// New constructs a Dispatcher over conn and immediately starts its
// inbound loop in a background goroutine. parent governs the lifetime
// of that loop and of every blocking call the dispatcher makes on
// conn; cancelling it is equivalent to calling Dispose.
func New(parent context.Context, conn transport.Conn, cfg Config) *Dispatcher {
	ctx, cancel := context.WithCancel(parent)
	d := &Dispatcher{
		cfg:          cfg,
		conn:         conn,
		ids:          streamid.New(),
		pending:      pendingopen.New(),
		counters:     cfg.Counters,
		ctx:          ctx,
		cancel:       cancel,
		streams:      make(map[uint32]*stream.LogicalStream),
		disconnected: make(chan struct{}),
	}
	go d.run()
	return d
}

// OnIncomingStream registers the hook invoked for every peer-initiated
// OPEN. Only one hook is active at a time; registering a new one
// replaces the previous one. Must be called before the peer can send
// an OPEN the caller cares about catching — there's no queueing of
// opens that arrived before a hook was registered.
func (d *Dispatcher) OnIncomingStream(hook IncomingHook) {
	d.hookMu.Lock()
	d.hook = hook
	d.hookMu.Unlock()
}

// OnError registers a listener invoked for every error surfaced while
// reading or writing the transport. Listeners are invoked synchronously
// from the goroutine that hit the error (the inbound loop, or a caller
// whose send failed); they should not block.
func (d *Dispatcher) OnError(fn func(error)) {
	d.errMu.Lock()
	d.errListeners = append(d.errListeners, fn)
	d.errMu.Unlock()
}

// Disconnected returns a channel closed once the dispatcher has torn
// itself down, whether from an explicit Dispose, a clean transport
// EOF, or a transport error. Use Err to tell a transport error apart
// from the other two; it is nil for both of those.
func (d *Dispatcher) Disconnected() <-chan struct{} {
	return d.disconnected
}

// Err returns the last error surfaced by the transport, or nil if the
// dispatcher is still live or was disposed cleanly.
func (d *Dispatcher) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.lastErr
}

// Streams returns a snapshot of every currently registered stream.
func (d *Dispatcher) Streams() []StreamInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	infos := make([]StreamInfo, 0, len(d.streams))
	for _, s := range d.streams {
		infos = append(infos, StreamInfo{LocalID: s.LocalID(), RemoteID: s.RemoteID(), Service: s.Service()})
	}
	return infos
}

// CreateStream opens a new stream to service on the peer and blocks
// until the peer answers with OKAY (success) or CLSE (rejection), ctx
// is cancelled, or the dispatcher disconnects.
func (d *Dispatcher) CreateStream(ctx context.Context, service string) (*stream.LogicalStream, error) {
	localID := d.ids.Allocate()
	future := d.pending.Add(localID)

	pkt := wire.NewServicePacket(localID, service, d.cfg.AppendNullToServiceString)
	if err := d.sendPacket(ctx, pkt.Command, pkt.Arg0, pkt.Arg1, pkt.Payload); err != nil {
		d.pending.Reject(localID, err)
		d.ids.Release(localID)
		return nil, err
	}

	select {
	case res := <-future.Done():
		if res.Err != nil {
			d.ids.Release(localID)
			return nil, res.Err
		}
		s := stream.New(localID, res.RemoteID, service, true, d)
		d.mu.Lock()
		d.streams[localID] = s
		d.mu.Unlock()
		if d.counters != nil {
			d.counters.AddStreamOpened()
		}
		return s, nil

	case <-ctx.Done():
		d.pending.Reject(localID, ctx.Err())
		d.ids.Release(localID)
		return nil, ctx.Err()

	case <-d.disconnected:
		d.ids.Release(localID)
		return nil, ErrTransportFailure
	}
}

// Dispose tears the dispatcher down: every live stream is disposed
// with ErrTransportFailure, every pending open is rejected the same
// way, the transport is closed, and Disconnected resolves. Idempotent.
func (d *Dispatcher) Dispose() {
	d.disconnectOnce.Do(func() {
		d.cancel()

		d.mu.Lock()
		streams := d.streams
		d.streams = make(map[uint32]*stream.LogicalStream)
		d.mu.Unlock()

		for _, s := range streams {
			s.Dispose(ErrTransportFailure)
			d.ids.Release(s.LocalID())
			if d.counters != nil {
				d.counters.AddStreamClosed()
			}
		}
		d.pending.Abort(ErrTransportFailure)

		d.conn.Close()
		close(d.disconnected)
	})
}

// SendWrite implements stream.Sender, giving LogicalStream a narrow
// capability to push a WRTE without holding a reference back to the
// full Dispatcher.
func (d *Dispatcher) SendWrite(ctx context.Context, localID, remoteID uint32, payload []byte) error {
	return d.sendPacket(ctx, wire.CmdWrte, localID, remoteID, payload)
}

// CloseStream implements stream.Sender's close-notification half: it
// removes the stream from the table, releases its id, and sends
// CLSE(localId, remoteId) to the peer. Called once, by LogicalStream.Close,
// when the application side initiates teardown — the mirror image of
// handleClse's outbound reply when the peer initiates it.
func (d *Dispatcher) CloseStream(ctx context.Context, localID, remoteID uint32) error {
	d.mu.Lock()
	_, ok := d.streams[localID]
	if ok {
		delete(d.streams, localID)
	}
	d.mu.Unlock()

	if !ok {
		return nil
	}

	d.ids.Release(localID)
	if d.counters != nil {
		d.counters.AddStreamClosed()
	}

	return d.sendPacket(ctx, wire.CmdClse, localID, remoteID, nil)
}

func (d *Dispatcher) sendPacket(ctx context.Context, cmd wire.Command, arg0, arg1 uint32, payload []byte) error {
	if uint32(len(payload)) > d.cfg.maxPayloadSize() {
		return ErrPayloadTooLarge
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	pkt := &wire.Packet{Command: cmd, Arg0: arg0, Arg1: arg1, Payload: payload}
	if err := d.conn.WritePacket(ctx, pkt); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrTransportFailure, err)
		d.emitError(wrapped)
		return wrapped
	}

	if d.counters != nil && cmd == wire.CmdWrte {
		d.counters.AddSent(len(payload))
	}
	return nil
}

func (d *Dispatcher) emitError(err error) {
	d.errMu.Lock()
	d.lastErr = err
	listeners := append([]func(error){}, d.errListeners...)
	d.errMu.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}

func (d *Dispatcher) run() {
	for {
		pkt, err := d.conn.ReadPacket(d.ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				d.emitError(fmt.Errorf("%w: %v", ErrTransportFailure, err))
			}
			d.Dispose()
			return
		}
		d.dispatch(pkt)
	}
}

func (d *Dispatcher) dispatch(pkt *wire.Packet) {
	switch pkt.Command {
	case wire.CmdOkay:
		d.handleOkay(pkt)
	case wire.CmdClse:
		d.handleClse(pkt)
	case wire.CmdWrte:
		d.handleWrte(pkt)
	case wire.CmdOpen:
		d.handleOpen(pkt)
	default:
		logx.Debugf("dispatch: ignoring %s packet outside stream multiplexing scope", pkt.Command)
	}
}

// handleOkay processes a peer ACK. arg0 is the peer's own stream id
// (our remoteId), arg1 is the localId it's acknowledging.
func (d *Dispatcher) handleOkay(pkt *wire.Packet) {
	localID, remoteID := pkt.Arg1, pkt.Arg0

	if d.pending.Resolve(localID, remoteID) {
		return
	}

	d.mu.Lock()
	s, ok := d.streams[localID]
	d.mu.Unlock()
	if ok {
		s.Ack()
		return
	}

	logx.Debugf("dispatch: OKAY for unknown localId %d, replying CLSE to make peer forget", localID)
	if err := d.sendPacket(d.ctx, wire.CmdClse, 0, remoteID, nil); err != nil {
		logx.Debugf("dispatch: stale-OKAY CLSE reply failed: %v", err)
	}
}

// handleClse processes a peer-initiated teardown or open rejection.
// arg0 is the peer's stream id, arg1 is the localId being closed. A
// remoteId of 0 on a CLSE to a localId we have no stream for means the
// peer rejected our OPEN; that case is surfaced through the pending
// open table, not through streams.
func (d *Dispatcher) handleClse(pkt *wire.Packet) {
	localID, remoteID := pkt.Arg1, pkt.Arg0

	if remoteID == 0 && d.pending.Reject(localID, ErrOpenRejected) {
		return
	}

	d.mu.Lock()
	s, ok := d.streams[localID]
	if ok {
		delete(d.streams, localID)
	}
	d.mu.Unlock()

	if !ok {
		logx.Debugf("dispatch: CLSE for unknown localId %d, treating as stale", localID)
		return
	}

	if !s.Closed() {
		if err := d.sendPacket(d.ctx, wire.CmdClse, localID, remoteID, nil); err != nil {
			logx.Debugf("dispatch: CLSE reply for localId %d failed: %v", localID, err)
		}
	}

	s.Dispose(nil)
	d.ids.Release(localID)
	if d.counters != nil {
		d.counters.AddStreamClosed()
	}
}

// handleWrte enqueues an inbound payload onto its stream's read buffer
// and, once accepted, acknowledges with OKAY. If the stream closed
// concurrently while the enqueue was blocked on backpressure, the
// acknowledgment is skipped — the peer will resend nothing, because it
// is itself waiting on exactly this OKAY before it sends again, and the
// CLSE already in flight (or about to be) supersedes it.
func (d *Dispatcher) handleWrte(pkt *wire.Packet) {
	localID, remoteID := pkt.Arg1, pkt.Arg0

	d.mu.Lock()
	s, ok := d.streams[localID]
	d.mu.Unlock()
	if !ok {
		logx.Debugf("dispatch: WRTE for unknown localId %d, treating as stale", localID)
		return
	}

	if err := s.Enqueue(d.ctx, pkt.Payload); err != nil {
		return
	}

	if err := d.sendPacket(d.ctx, wire.CmdOkay, localID, remoteID, nil); err != nil {
		return
	}
	if d.counters != nil {
		d.counters.AddRecv(len(pkt.Payload))
	}
}

// handleOpen processes a peer-initiated OPEN: a localId is reserved,
// the requested stream is built and offered to the incoming-stream
// hook, and the hook's verdict decides whether we answer OKAY (accept)
// or CLSE (reject).
func (d *Dispatcher) handleOpen(pkt *wire.Packet) {
	remoteID := pkt.Arg0
	service := pkt.ServiceString()

	localID := d.ids.Allocate()
	// Reserve the id through the pending-open table too, so a
	// concurrent local CreateStream can never observe it as free; we
	// immediately resolve it ourselves since there is no CreateStream
	// caller awaiting this particular future.
	d.pending.Add(localID)
	d.pending.Resolve(localID, remoteID)

	s := stream.New(localID, remoteID, service, false, d)
	event := &IncomingEvent{Service: service, Stream: s}
	d.invokeHook(event)

	if !event.Handled {
		d.ids.Release(localID)
		if err := d.sendPacket(d.ctx, wire.CmdClse, 0, remoteID, nil); err != nil {
			logx.Debugf("dispatch: open-rejection CLSE for remoteId %d failed: %v", remoteID, err)
		}
		return
	}

	d.mu.Lock()
	d.streams[localID] = s
	d.mu.Unlock()

	if err := d.sendPacket(d.ctx, wire.CmdOkay, localID, remoteID, nil); err != nil {
		logx.Debugf("dispatch: open-accept OKAY for localId %d failed: %v", localID, err)
		return
	}
	if d.counters != nil {
		d.counters.AddStreamOpened()
	}
}

func (d *Dispatcher) invokeHook(ev *IncomingEvent) {
	d.hookMu.Lock()
	hook := d.hook
	d.hookMu.Unlock()
	if hook == nil {
		return
	}
	hook(ev)
}
