// Package signaling performs the WebSocket-based SDP/ICE exchange that
// brings up a transport.WebRTCConn, and the higher-level Establish
// functions that tie signaling and the DataChannel handshake together.
package signaling

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
)

// Message is the JSON structure exchanged over the WebSocket.
type Message struct {
	Type      MessageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded webrtc.ICECandidateInit
}
