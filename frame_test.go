package clunet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		{Src: 1, Dst: 2, Priority: PriorityMessage, Command: 0x10, Payload: nil},
		{Src: 1, Dst: BroadcastAddress, Priority: PriorityCommand, Command: CommandPing, Payload: nil},
		{Src: 9, Dst: 200, Priority: PriorityInfo, Command: 0x7f, Payload: []byte{0x55, 0xaa, 0x00, 0xff}},
		{Src: 1, Dst: 2, Priority: PriorityNotice, Command: 0x01, Payload: make([]byte, MaxPayloadSize)},
	}

	for _, want := range cases {
		buf := want.encode()
		require.NotNil(t, buf)
		got, err := decodeFrame(buf, want.Priority)
		require.NoError(t, err)
		assert.Equal(t, want.Src, got.Src)
		assert.Equal(t, want.Dst, got.Dst)
		assert.Equal(t, want.Command, got.Command)
		assert.Equal(t, want.Payload, got.Payload)
	}
}

func TestFrameEncodeRejectsOversizePayload(t *testing.T) {
	f := Frame{Src: 1, Dst: 2, Command: 1, Payload: make([]byte, MaxPayloadSize+1)}
	assert.Nil(t, f.encode())
}

func TestDecodeFrameRejectsShortBuffer(t *testing.T) {
	_, err := decodeFrame([]byte{1, 2, 3}, PriorityMessage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestDecodeFrameRejectsLengthMismatch(t *testing.T) {
	f := Frame{Src: 1, Dst: 2, Command: 1, Payload: []byte{0xaa}}
	buf := f.encode()
	buf[offsetSize] = 5 // claim a longer payload than is actually present
	_, err := decodeFrame(buf, PriorityMessage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestDecodeFrameDetectsCorruptedCRC(t *testing.T) {
	f := Frame{Src: 1, Dst: 2, Command: 1, Payload: []byte{0xaa, 0xbb}}
	buf := f.encode()
	buf[offsetData] ^= 0xff // flip a payload bit without touching the CRC byte
	_, err := decodeFrame(buf, PriorityMessage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCrcMismatch))
}

func TestPriorityClamp(t *testing.T) {
	assert.Equal(t, Priority(1), Priority(0).clamp())
	assert.Equal(t, Priority(8), Priority(9).clamp())
	assert.Equal(t, Priority(3), Priority(3).clamp())
}
