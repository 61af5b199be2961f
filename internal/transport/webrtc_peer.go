package transport

import "github.com/pion/webrtc/v4"

// stunServers are used for ICE candidate gathering. No TURN — WebRTC here
// is an opportunistic path for remote debugging over the open internet,
// not a guaranteed-connectivity requirement; USB/TCP remain primary.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

func newWebRTCPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// newOrderedDataChannel creates a pre-negotiated, ordered DataChannel.
// Negotiated mode (ID 0) lets both sides create the channel independently
// without relying on OnDataChannel. Unlike a channel carrying arbitrary
// framed payloads, this one carries the ADB wire protocol directly, which
// assumes in-order delivery — WRTE/OKAY sequencing breaks under reordering
// — so ordered delivery is not optional here.
func newOrderedDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("adb", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
