package dispatch

import "github.com/quaylabs/adbmux/internal/stats"

// defaultMaxPayloadSize is the v2+ ADB wire default (256 KiB).
const defaultMaxPayloadSize = 256 * 1024

// legacyMaxPayloadSize is the pre-v2 ADB wire default (4 KiB).
const legacyMaxPayloadSize = 4096

// Config carries the three wire-compatibility knobs spec.md names, plus
// an optional counters sink.
type Config struct {
	// CalculateChecksum computes and emits payload checksums for pre-v2
	// wire compatibility. Post-v2 connections should leave this false.
	CalculateChecksum bool

	// AppendNullToServiceString appends a trailing NUL to outbound
	// service strings, for pre-Android-9 daemons that parse them with C
	// string semantics.
	AppendNullToServiceString bool

	// MaxPayloadSize is the hard upper bound for any outbound payload.
	// Zero means defaultMaxPayloadSize.
	MaxPayloadSize uint32

	// Counters, if non-nil, receives stream/traffic accounting. Leave
	// nil to run without stats tracking.
	Counters *stats.Counters
}

// DefaultConfig returns the v2+ wire defaults: no checksum, no trailing
// NUL, 256 KiB payload cap.
func DefaultConfig() Config {
	return Config{MaxPayloadSize: defaultMaxPayloadSize}
}

// LegacyConfig returns pre-v2 wire defaults: checksums on, trailing NUL
// on service strings, 4 KiB payload cap.
func LegacyConfig() Config {
	return Config{
		CalculateChecksum:         true,
		AppendNullToServiceString: true,
		MaxPayloadSize:            legacyMaxPayloadSize,
	}
}

func (c Config) maxPayloadSize() uint32 {
	if c.MaxPayloadSize == 0 {
		return defaultMaxPayloadSize
	}
	return c.MaxPayloadSize
}
