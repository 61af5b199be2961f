package wire

import (
	"encoding/binary"
	"fmt"
)

// checksum sums the payload bytes mod 2^32, the pre-v2 ADB checksum.
func checksum(payload []byte) uint32 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}

// Encode serializes a Packet into its 24-byte header plus payload.
// calculateChecksum controls whether the header's checksum field is
// populated; post-v2 ADB connections leave it zero.
func Encode(pkt *Packet, calculateChecksum bool) []byte {
	buf := make([]byte, HeaderSize+len(pkt.Payload))

	binary.LittleEndian.PutUint32(buf[0:4], uint32(pkt.Command))
	binary.LittleEndian.PutUint32(buf[4:8], pkt.Arg0)
	binary.LittleEndian.PutUint32(buf[8:12], pkt.Arg1)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(pkt.Payload)))

	var check uint32
	if calculateChecksum {
		check = checksum(pkt.Payload)
	}
	binary.LittleEndian.PutUint32(buf[16:20], check)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(pkt.Command)^0xFFFFFFFF)

	copy(buf[HeaderSize:], pkt.Payload)
	return buf
}

// DecodeHeader parses the fixed 24-byte header, returning the command,
// arg0, arg1, and the declared payload length. It rejects a magic field
// that does not match the command, but does not validate the checksum
// against a payload, since the payload may not have arrived yet on a
// streamed transport.
func DecodeHeader(header []byte) (cmd Command, arg0, arg1, dataLen uint32, err error) {
	if len(header) != HeaderSize {
		return 0, 0, 0, 0, fmt.Errorf("wire: header must be %d bytes, got %d", HeaderSize, len(header))
	}

	raw := binary.LittleEndian.Uint32(header[0:4])
	magic := binary.LittleEndian.Uint32(header[20:24])
	if raw^magic != 0xFFFFFFFF {
		return 0, 0, 0, 0, fmt.Errorf("wire: magic mismatch for command 0x%08x", raw)
	}

	cmd = Command(raw)
	arg0 = binary.LittleEndian.Uint32(header[4:8])
	arg1 = binary.LittleEndian.Uint32(header[8:12])
	dataLen = binary.LittleEndian.Uint32(header[12:16])
	return cmd, arg0, arg1, dataLen, nil
}

// VerifyChecksum reports whether the header's checksum field matches the
// payload. Callers on pre-v2 transports should call this after reading
// the payload; post-v2 transports should skip it (checksum is unused).
func VerifyChecksum(header []byte, payload []byte) bool {
	want := binary.LittleEndian.Uint32(header[16:20])
	return want == checksum(payload)
}

// Decode parses a complete wire message (header + payload already
// concatenated) into a Packet. Used by message-oriented transports
// (WebRTCConn) and tests that don't need to stream the header and body
// separately.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("wire: message too short: %d bytes (need at least %d)", len(data), HeaderSize)
	}

	cmd, arg0, arg1, dataLen, err := DecodeHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	if uint32(len(data)-HeaderSize) != dataLen {
		return nil, fmt.Errorf("wire: declared payload length %d does not match actual %d", dataLen, len(data)-HeaderSize)
	}

	pkt := &Packet{Command: cmd, Arg0: arg0, Arg1: arg1}
	if dataLen > 0 {
		pkt.Payload = make([]byte, dataLen)
		copy(pkt.Payload, data[HeaderSize:])
	}
	return pkt, nil
}
