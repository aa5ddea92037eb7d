package clunet

import "errors"

// Sentinel error kinds (§7). None of these are ever surfaced through the
// data-received callback; they are observable only via the logger passed to
// NewStation and via Station.Stats.
var (
	// ErrMalformedInput covers a measured run length outside
	// [T/2, 5T+T/2) and stuffing-rule violations (a run of more than 5
	// identical bit-periods).
	ErrMalformedInput = errors.New("clunet: malformed input")

	// ErrCrcMismatch means a fully-received frame failed its CRC check.
	// The frame is dropped silently at the protocol level; this error
	// exists only for logging/Stats.
	ErrCrcMismatch = errors.New("clunet: crc mismatch")

	// ErrBufferOverflow means a frame's declared size would overrun the
	// configured read buffer.
	ErrBufferOverflow = errors.New("clunet: receive buffer overflow")

	// ErrArbitrationLost is not a fault: it marks the expected outcome of
	// losing bus arbitration to a higher-priority (numerically lower)
	// transmitter. The staged frame is preserved for a later Send or
	// ResendLastPacket.
	ErrArbitrationLost = errors.New("clunet: arbitration lost")
)
