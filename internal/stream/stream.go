// Package stream implements LogicalStream, the per-stream state the
// dispatcher and the application share across two disjoint capability
// sets: Enqueue/Ack/Dispose (dispatcher-facing) and Read/Write/Close
// (application-facing).
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Write (and Enqueue) when the stream has already
// been torn down, by either side or by dispatcher loss. Read reports the
// same condition as io.EOF.
var ErrClosed = errors.New("stream: closed")

// readBufferSize bounds how many unconsumed WRTE payloads a stream will
// hold before Enqueue blocks, signalling backpressure to the dispatcher.
const readBufferSize = 16

// Sender is the narrow, non-owning handle a LogicalStream holds back to
// its dispatcher, used only to emit outbound WRTE packets and to report a
// locally-initiated close. Modelling it
// as an interface (rather than a *dispatch.Dispatcher pointer) avoids the
// cyclic ownership the design notes flag: the dispatcher owns streams,
// streams merely call back through this seam.
type Sender interface {
	// SendWrite transmits a WRTE for the given stream. It must enforce
	// maxPayloadSize and return ErrPayloadTooLarge-class errors itself;
	// LogicalStream does not interpret the error beyond propagating it.
	SendWrite(ctx context.Context, localID, remoteID uint32, payload []byte) error

	// CloseStream notifies the dispatcher of a locally-initiated close:
	// it must send CLSE(localId, remoteId) to the peer and remove the
	// stream from its table, releasing localId for reuse. Called at most
	// once per stream, by LogicalStream.Close.
	CloseStream(ctx context.Context, localID, remoteID uint32) error
}

// LogicalStream is one multiplexed ADB stream, identified by the pair
// (localID, remoteID).
type LogicalStream struct {
	localID  uint32
	remoteID uint32
	service  string
	local    bool

	sender Sender

	readCh chan []byte

	writeMu    sync.Mutex // serializes application Write calls (stop-and-wait is one in flight)
	ackMu      sync.Mutex
	pendingAck chan error // non-nil while a WRTE is awaiting its OKAY

	closeOnce sync.Once
	closeCh   chan struct{}
	closeErr  error
}

// New constructs a LogicalStream. It is not inserted into any dispatcher
// table by this call — the caller (the dispatcher) does that once it
// knows the stream is accepted.
func New(localID, remoteID uint32, service string, local bool, sender Sender) *LogicalStream {
	return &LogicalStream{
		localID:  localID,
		remoteID: remoteID,
		service:  service,
		local:    local,
		sender:   sender,
		readCh:   make(chan []byte, readBufferSize),
		closeCh:  make(chan struct{}),
	}
}

// LocalID returns this side's id for the stream.
func (s *LogicalStream) LocalID() uint32 { return s.localID }

// RemoteID returns the peer's id for the stream.
func (s *LogicalStream) RemoteID() uint32 { return s.remoteID }

// Service returns the ASCII request string that opened the stream.
func (s *LogicalStream) Service() string { return s.service }

// CreatedLocally reports which side originated the OPEN.
func (s *LogicalStream) CreatedLocally() bool { return s.local }

// ---------------------------------------------------------------------------
// Application-facing surface
// ---------------------------------------------------------------------------

// Read delivers the next queued payload, blocking if none is available.
// It returns io.EOF once the stream is closed and no buffered payload
// remains.
func (s *LogicalStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case chunk := <-s.readCh:
		return chunk, nil
	case <-s.closeCh:
		select {
		case chunk := <-s.readCh:
			return chunk, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write enqueues a payload for transmission and blocks until the peer has
// acknowledged it (stop-and-wait: only one write may be in flight).
func (s *LogicalStream) Write(ctx context.Context, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closeCh:
		return ErrClosed
	default:
	}

	ack := make(chan error, 1)
	s.ackMu.Lock()
	s.pendingAck = ack
	s.ackMu.Unlock()

	if err := s.sender.SendWrite(ctx, s.localID, s.remoteID, payload); err != nil {
		s.ackMu.Lock()
		s.pendingAck = nil
		s.ackMu.Unlock()
		return err
	}

	select {
	case err := <-ack:
		return err
	case <-s.closeCh:
		// teardown delivers its error to ack before closing closeCh.
		select {
		case err := <-ack:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close initiates teardown from the application side: it tells the
// dispatcher to send CLSE(localId, remoteId) and drop the stream from
// its table, then finishes local teardown. Idempotent.
func (s *LogicalStream) Close() {
	s.teardown(nil, true)
}

// ---------------------------------------------------------------------------
// Dispatcher-facing surface
// ---------------------------------------------------------------------------

// Enqueue is called by the dispatcher when a WRTE arrives for this
// stream. It may block — that blocking is how the core signals
// backpressure to the dispatcher; the dispatcher must not send the
// reciprocating OKAY until Enqueue returns.
func (s *LogicalStream) Enqueue(ctx context.Context, payload []byte) error {
	select {
	case s.readCh <- payload:
		return nil
	case <-s.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ack is called by the dispatcher on receiving OKAY for this stream; it
// unblocks one pending Write.
func (s *LogicalStream) Ack() {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()

	if s.pendingAck == nil {
		return
	}
	s.pendingAck <- nil
	s.pendingAck = nil
}

// Dispose forces teardown without notifying the peer: it signals
// end-of-stream to Read and fails any pending Write with err, or with
// ErrClosed when err is nil (a clean close). Used by the dispatcher itself, which has already sent or
// received whatever CLSE applies and only needs the stream's local state
// torn down. Safe to call more than once; only the first call (whether
// it's Dispose or Close) has effect.
func (s *LogicalStream) Dispose(err error) {
	s.teardown(err, false)
}

// teardown is the shared body of Close and Dispose: it runs at most
// once, optionally telling the dispatcher to notify the peer.
func (s *LogicalStream) teardown(err error, notifyPeer bool) {
	s.closeOnce.Do(func() {
		s.closeErr = err

		s.ackMu.Lock()
		if s.pendingAck != nil {
			if err != nil {
				s.pendingAck <- err
			} else {
				s.pendingAck <- ErrClosed
			}
			s.pendingAck = nil
		}
		s.ackMu.Unlock()

		close(s.closeCh)

		if notifyPeer {
			_ = s.sender.CloseStream(context.Background(), s.localID, s.remoteID)
		}
	})
}

// Closed reports whether the stream has been torn down.
func (s *LogicalStream) Closed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the stream is torn down, for callers
// that want to select on stream lifetime without blocking in Read/Write.
func (s *LogicalStream) Done() <-chan struct{} {
	return s.closeCh
}
