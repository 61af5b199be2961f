package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quaylabs/adbmux/internal/wire"
)

// TCPConn is a reference Conn implementation over a plain net.Conn,
// framing each packet as a 24-byte header followed by its payload. It
// stands in for the USB bulk-transfer driver the real dispatcher expects
// — out of the dispatcher's scope, included here so the dispatcher is
// exercisable without device hardware.
type TCPConn struct {
	conn              net.Conn
	r                 *bufio.Reader
	calculateChecksum bool

	writeMu sync.Mutex
	closeMu sync.Once
}

// NewTCPConn wraps an already-connected net.Conn.
func NewTCPConn(conn net.Conn, calculateChecksum bool) *TCPConn {
	return &TCPConn{
		conn:              conn,
		r:                 bufio.NewReader(conn),
		calculateChecksum: calculateChecksum,
	}
}

// DialTCP connects to addr and returns a ready Conn.
func DialTCP(ctx context.Context, addr string, calculateChecksum bool) (*TCPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewTCPConn(conn, calculateChecksum), nil
}

func (c *TCPConn) ReadPacket(ctx context.Context) (*wire.Packet, error) {
	type result struct {
		pkt *wire.Packet
		err error
	}
	done := make(chan result, 1)

	go func() {
		header := make([]byte, wire.HeaderSize)
		if _, err := readFull(c.r, header); err != nil {
			done <- result{nil, err}
			return
		}

		cmd, arg0, arg1, dataLen, err := wire.DecodeHeader(header)
		if err != nil {
			done <- result{nil, err}
			return
		}

		var payload []byte
		if dataLen > 0 {
			payload = make([]byte, dataLen)
			if _, err := readFull(c.r, payload); err != nil {
				done <- result{nil, err}
				return
			}
		}

		done <- result{&wire.Packet{Command: cmd, Arg0: arg0, Arg1: arg1, Payload: payload}, nil}
	}()

	select {
	case res := <-done:
		return res.pkt, res.err
	case <-ctx.Done():
		c.conn.Close()
		return nil, ctx.Err()
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *TCPConn) WritePacket(ctx context.Context, pkt *wire.Packet) error {
	data := wire.Encode(pkt, c.calculateChecksum)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	_, err := c.conn.Write(data)
	return err
}

func (c *TCPConn) Close() error {
	var err error
	c.closeMu.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// ListenTCP starts a listener and invokes handle for each accepted
// connection in its own goroutine. It blocks until ctx is cancelled or
// Listen fails.
func ListenTCP(ctx context.Context, addr string, calculateChecksum bool, handle func(*TCPConn)) error {
	lc := net.ListenConfig{}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go handle(NewTCPConn(conn, calculateChecksum))
	}
}
