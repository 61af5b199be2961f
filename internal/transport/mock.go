package transport

import (
	"context"
	"io"
	"sync"

	"github.com/quaylabs/adbmux/internal/wire"
)

// MockPair returns two linked in-memory Conns that simulate a
// bidirectional link: packets written on one side are delivered to the
// other side's ReadPacket, in order, with no reordering or loss — the
// same ordering guarantee TCPConn and WebRTCConn (ordered mode) provide.
func MockPair() (a, b *MockConn) {
	a = &MockConn{inbox: make(chan *wire.Packet, 256), closed: make(chan struct{})}
	b = &MockConn{inbox: make(chan *wire.Packet, 256), closed: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// MockConn is a test double implementing Conn without any real network.
type MockConn struct {
	inbox  chan *wire.Packet
	peer   *MockConn
	once   sync.Once
	closed chan struct{}
}

func (m *MockConn) ReadPacket(ctx context.Context) (*wire.Packet, error) {
	select {
	case pkt, ok := <-m.inbox:
		if !ok {
			return nil, io.EOF
		}
		return pkt, nil
	case <-m.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MockConn) WritePacket(ctx context.Context, pkt *wire.Packet) error {
	select {
	case m.peer.inbox <- pkt:
		return nil
	case <-m.closed:
		return io.ErrClosedPipe
	case <-m.peer.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}
