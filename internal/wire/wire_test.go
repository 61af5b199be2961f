package wire

import (
	"bytes"
	"testing"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse
// operations for all stream-relevant commands with various payload sizes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		pkt  *Packet
	}{
		{
			name: "OPEN with service string",
			pkt:  &Packet{Command: CmdOpen, Arg0: 1, Arg1: 0, Payload: []byte("shell:")},
		},
		{
			name: "OKAY with no payload",
			pkt:  &Packet{Command: CmdOkay, Arg0: 1, Arg1: 17},
		},
		{
			name: "CLSE with open-reject arg0",
			pkt:  &Packet{Command: CmdClse, Arg0: 0, Arg1: 1},
		},
		{
			name: "WRTE with large payload",
			pkt:  &Packet{Command: CmdWrte, Arg0: 1, Arg1: 17, Payload: bytes.Repeat([]byte{0xAB}, 4096)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.pkt, true)

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded.Command != tc.pkt.Command {
				t.Errorf("Command mismatch: got %s, want %s", decoded.Command, tc.pkt.Command)
			}
			if decoded.Arg0 != tc.pkt.Arg0 || decoded.Arg1 != tc.pkt.Arg1 {
				t.Errorf("arg mismatch: got (%d,%d), want (%d,%d)", decoded.Arg0, decoded.Arg1, tc.pkt.Arg0, tc.pkt.Arg1)
			}
			if !bytes.Equal(decoded.Payload, tc.pkt.Payload) {
				t.Errorf("payload mismatch: got %v, want %v", decoded.Payload, tc.pkt.Payload)
			}
			if !VerifyChecksum(encoded[:HeaderSize], decoded.Payload) {
				t.Errorf("checksum verification failed")
			}
		})
	}
}

func TestEncodeWithoutChecksum(t *testing.T) {
	pkt := &Packet{Command: CmdWrte, Arg0: 1, Arg1: 2, Payload: []byte("hi")}
	encoded := Encode(pkt, false)
	if VerifyChecksum(encoded[:HeaderSize], pkt.Payload) {
		t.Fatalf("expected checksum field to be zero when calculateChecksum is false")
	}
}

func TestDecodeTooShort(t *testing.T) {
	cases := [][]byte{{}, {0x01}, make([]byte, HeaderSize-1)}
	for _, data := range cases {
		if _, err := Decode(data); err == nil {
			t.Errorf("expected error decoding %d bytes", len(data))
		}
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	header := make([]byte, HeaderSize)
	header[0] = 'O'
	header[1] = 'K'
	header[2] = 'A'
	header[3] = 'Y'
	// magic left as zero, which does not satisfy cmd ^ magic == 0xFFFFFFFF.
	if _, _, _, _, err := DecodeHeader(header); err == nil {
		t.Fatal("expected magic mismatch error")
	}
}

func TestServiceStringStripsTrailingNUL(t *testing.T) {
	pkt := &Packet{Payload: append([]byte("sync:"), 0)}
	if got := pkt.ServiceString(); got != "sync:" {
		t.Errorf("got %q, want %q", got, "sync:")
	}

	pkt2 := &Packet{Payload: []byte("shell:ls")}
	if got := pkt2.ServiceString(); got != "shell:ls" {
		t.Errorf("got %q, want %q", got, "shell:ls")
	}
}

func TestNewServicePacketAppendNull(t *testing.T) {
	pkt := NewServicePacket(5, "sync:", true)
	if pkt.Payload[len(pkt.Payload)-1] != 0 {
		t.Fatalf("expected trailing NUL byte")
	}
	if pkt.ServiceString() != "sync:" {
		t.Errorf("got %q", pkt.ServiceString())
	}

	pkt2 := NewServicePacket(5, "sync:", false)
	if bytes.Contains(pkt2.Payload, []byte{0}) {
		t.Errorf("did not expect NUL byte")
	}
}
