package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/quaylabs/adbmux/internal/logx"
	"github.com/quaylabs/adbmux/internal/wire"
)

const (
	webrtcHighWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	webrtcLowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
	webrtcSendBuffer    = 64
	webrtcReadBuffer    = 64
)

// WebRTCConn is a Conn implementation over a pion WebRTC DataChannel, for
// dispatching ADB over a NAT-traversed link instead of USB/TCP. Signaling
// (SDP/ICE exchange) is out of this type's scope — see the signaling
// subpackage — WebRTCConn only becomes usable once signaling has completed
// and Ready fires.
type WebRTCConn struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	calculateChecksum bool

	openSignal  chan struct{}
	openOnce    sync.Once
	drainSignal chan struct{}

	readCh    chan *wire.Packet
	readErrCh chan error
	sendCh    chan *wire.Packet

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewWebRTCConn creates a WebRTCConn backed by a new PeerConnection and a
// pre-negotiated, ordered DataChannel. The caller drives signaling (see the
// signaling subpackage) using the exposed CreateOffer/CreateAnswer/
// SetLocalDescription/SetRemoteDescription/OnICECandidate/AddICECandidate
// methods, then waits on Ready before using it as a Conn.
func NewWebRTCConn(ctx context.Context, calculateChecksum bool) (*WebRTCConn, error) {
	pc, err := newWebRTCPeerConnection()
	if err != nil {
		return nil, err
	}

	dc, err := newOrderedDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	cCtx, cancel := context.WithCancel(ctx)
	c := &WebRTCConn{
		pc:                pc,
		dc:                dc,
		calculateChecksum: calculateChecksum,
		openSignal:        make(chan struct{}),
		drainSignal:       make(chan struct{}, 1),
		readCh:            make(chan *wire.Packet, webrtcReadBuffer),
		readErrCh:         make(chan error, 1),
		sendCh:            make(chan *wire.Packet, webrtcSendBuffer),
		ctx:               cCtx,
		cancel:            cancel,
	}

	dc.OnOpen(func() {
		c.openOnce.Do(func() { close(c.openSignal) })
	})
	dc.OnClose(func() {
		logx.Infof("webrtc: data channel closed")
		cancel()
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logx.Debugf("webrtc: peer connection state %s", state)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		pkt, err := wire.Decode(msg.Data)
		if err != nil {
			select {
			case c.readErrCh <- err:
			default:
			}
			return
		}
		select {
		case c.readCh <- pkt:
		case <-c.ctx.Done():
		}
	})

	dc.SetBufferedAmountLowThreshold(uint64(webrtcLowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case c.drainSignal <- struct{}{}:
		default:
		}
	})

	go c.sendLoop()

	return c, nil
}

// Ready returns a channel closed once the DataChannel is open.
func (c *WebRTCConn) Ready() <-chan struct{} { return c.openSignal }

func (c *WebRTCConn) sendLoop() {
	select {
	case <-c.openSignal:
	case <-c.ctx.Done():
		return
	}

	for {
		select {
		case pkt := <-c.sendCh:
			if c.dc.BufferedAmount() > uint64(webrtcHighWaterMark) {
				select {
				case <-c.drainSignal:
				case <-c.ctx.Done():
					return
				}
			}
			data := wire.Encode(pkt, c.calculateChecksum)
			if err := c.dc.Send(data); err != nil {
				select {
				case c.readErrCh <- err:
				default:
				}
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WebRTCConn) ReadPacket(ctx context.Context) (*wire.Packet, error) {
	select {
	case pkt := <-c.readCh:
		return pkt, nil
	case err := <-c.readErrCh:
		return nil, err
	case <-c.ctx.Done():
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *WebRTCConn) WritePacket(ctx context.Context, pkt *wire.Packet) error {
	select {
	case c.sendCh <- pkt:
		return nil
	case <-c.ctx.Done():
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WebRTCConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = errors.Join(c.dc.Close(), c.pc.Close())
	})
	return err
}

// ---------------------------------------------------------------------------
// Signaling primitives, used by the signaling subpackage.
// ---------------------------------------------------------------------------

func (c *WebRTCConn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *WebRTCConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConn) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sdp)
}

func (c *WebRTCConn) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sdp)
}

func (c *WebRTCConn) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	c.pc.OnICECandidate(fn)
}

func (c *WebRTCConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}
