package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/quaylabs/adbmux/internal/logx"
	"github.com/quaylabs/adbmux/internal/transport"
)

// EstablishHost runs the full host-side signaling flow: start a WS server,
// print the port and PIN, wait for the client, then exchange SDP/ICE until
// the DataChannel is open. It returns a ready-to-use WebRTCConn.
func EstablishHost(ctx context.Context, calculateChecksum bool) (*transport.WebRTCConn, error) {
	pin := GeneratePIN(4)
	srv := NewServer(pin)
	port, err := srv.Start()
	if err != nil {
		return nil, err
	}
	defer srv.Close()

	logx.Infof("signaling: listening on port %d, pin %s", port, pin)

	wsConn, err := srv.WaitForClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("signaling: waiting for client: %w", err)
	}
	defer wsConn.Close()

	conn, err := transport.NewWebRTCConn(ctx, calculateChecksum)
	if err != nil {
		return nil, fmt.Errorf("signaling: create webrtc conn: %w", err)
	}

	if err := hostExchange(ctx, wsConn, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// EstablishClient runs the full client-side signaling flow: connect to the
// host's WS server, then exchange SDP/ICE until the DataChannel is open.
func EstablishClient(ctx context.Context, wsURL string, calculateChecksum bool) (*transport.WebRTCConn, error) {
	wsConn, err := Connect(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()

	conn, err := transport.NewWebRTCConn(ctx, calculateChecksum)
	if err != nil {
		return nil, fmt.Errorf("signaling: create webrtc conn: %w", err)
	}

	if err := clientExchange(ctx, wsConn, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// hostExchange sends the offer first, then answers ICE trickle and the
// remote answer until the DataChannel opens.
func hostExchange(ctx context.Context, wsConn *websocket.Conn, conn *transport.WebRTCConn) error {
	var wsMu sync.Mutex
	wsSend := func(msg Message) {
		wsMu.Lock()
		defer wsMu.Unlock()
		if err := wsConn.WriteJSON(msg); err != nil {
			select {
			case <-conn.Ready():
			default:
				logx.Debugf("signaling: WS send failed: %v", err)
			}
		}
	}

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		wsSend(Message{Type: MsgTypeCandidate, Candidate: string(data)})
	})

	offer, err := conn.CreateOffer()
	if err != nil {
		return fmt.Errorf("signaling: create offer: %w", err)
	}
	if err := conn.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("signaling: set local description: %w", err)
	}
	wsSend(Message{Type: MsgTypeOffer, SDP: offer.SDP})

	errCh := make(chan error, 1)
	go func() { errCh <- readSignalingLoop(wsConn, conn) }()

	select {
	case <-conn.Ready():
		return nil
	case err := <-errCh:
		select {
		case <-conn.Ready():
			return nil
		default:
			return fmt.Errorf("signaling: read loop: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clientExchange waits for the offer, answers it, then trickles ICE until
// the DataChannel opens.
func clientExchange(ctx context.Context, wsConn *websocket.Conn, conn *transport.WebRTCConn) error {
	var wsMu sync.Mutex
	wsSend := func(msg Message) {
		wsMu.Lock()
		defer wsMu.Unlock()
		if err := wsConn.WriteJSON(msg); err != nil {
			select {
			case <-conn.Ready():
			default:
				logx.Debugf("signaling: WS send failed: %v", err)
			}
		}
	}

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		wsSend(Message{Type: MsgTypeCandidate, Candidate: string(data)})
	})

	errCh := make(chan error, 1)
	go func() { errCh <- readSignalingLoop(wsConn, conn, withAnswerSender(wsSend)) }()

	select {
	case <-conn.Ready():
		return nil
	case err := <-errCh:
		select {
		case <-conn.Ready():
			return nil
		default:
			return fmt.Errorf("signaling: read loop: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

type readLoopOpts struct {
	sendAnswer func(msg Message)
}

func withAnswerSender(send func(Message)) func(*readLoopOpts) {
	return func(o *readLoopOpts) { o.sendAnswer = send }
}

// readSignalingLoop applies every inbound offer/answer/candidate message to
// conn until the WS connection errors. The host side never receives an
// offer (it sent one), so it passes no sendAnswer option; the client side
// does, to answer the host's offer in place.
func readSignalingLoop(wsConn *websocket.Conn, conn *transport.WebRTCConn, opts ...func(*readLoopOpts)) error {
	o := &readLoopOpts{}
	for _, fn := range opts {
		fn(o)
	}

	for {
		var msg Message
		if err := wsConn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case MsgTypeOffer:
			if o.sendAnswer == nil {
				continue
			}
			if err := conn.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
			}); err != nil {
				logx.Debugf("signaling: set remote description (offer): %v", err)
				continue
			}
			answer, err := conn.CreateAnswer()
			if err != nil {
				logx.Debugf("signaling: create answer: %v", err)
				continue
			}
			if err := conn.SetLocalDescription(answer); err != nil {
				logx.Debugf("signaling: set local description (answer): %v", err)
				continue
			}
			o.sendAnswer(Message{Type: MsgTypeAnswer, SDP: answer.SDP})

		case MsgTypeAnswer:
			if err := conn.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				logx.Debugf("signaling: set remote description (answer): %v", err)
			}

		case MsgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				logx.Debugf("signaling: unmarshal ICE candidate: %v", err)
				continue
			}
			if err := conn.AddICECandidate(init); err != nil {
				logx.Debugf("signaling: add ICE candidate: %v", err)
			}
		}
	}
}
