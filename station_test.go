package clunet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clunet-go/clunet/sim"
)

// twoStations builds a pair of stations sharing one sim.Wire, brought up
// and settled past their own BOOT_COMPLETED broadcasts so later assertions
// aren't disturbed by startup traffic.
func twoStations(t *testing.T, idA, idB uint8) (*sim.Wire, *Station, *Station) {
	t.Helper()
	wire := sim.NewWire()

	a, err := NewStation(wire.NewEndpoint(), Config{DeviceID: idA, BitPeriodTicks: 8})
	require.NoError(t, err)
	b, err := NewStation(wire.NewEndpoint(), Config{DeviceID: idB, BitPeriodTicks: 8})
	require.NoError(t, err)

	a.Init()
	b.Init()
	wire.Advance(2000) // drain both BOOT_COMPLETED broadcasts

	return wire, a, b
}

func TestSendDeliversPayloadToDestination(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)

	var gotSrc, gotCmd uint8
	var gotPayload []byte
	b.SetOnDataReceived(func(src, command uint8, payload []byte) {
		gotSrc, gotCmd, gotPayload = src, command, payload
	})

	a.Send(2, PriorityMessage, 0x42, []byte{0x01, 0x02, 0x03})
	wire.Advance(2000)

	assert.Equal(t, uint8(1), gotSrc)
	assert.Equal(t, uint8(0x42), gotCmd)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, gotPayload)
}

func TestDiscoveryTriggersAutoReply(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)
	_ = b

	var replyCmd uint8
	var replyPayload []byte
	a.SetOnDataReceived(func(src, command uint8, payload []byte) {
		replyCmd, replyPayload = command, payload
	})

	a.Send(2, PriorityMessage, CommandDiscovery, nil)
	wire.Advance(2000)

	assert.Equal(t, CommandDiscoveryResponse, replyCmd)
	assert.Equal(t, []byte(nil), replyPayload)
}

func TestDiscoveryReplyCarriesDeviceName(t *testing.T) {
	wire := sim.NewWire()
	a, err := NewStation(wire.NewEndpoint(), Config{DeviceID: 1, BitPeriodTicks: 8})
	require.NoError(t, err)
	b, err := NewStation(wire.NewEndpoint(), Config{DeviceID: 2, DeviceName: "pump-controller", BitPeriodTicks: 8})
	require.NoError(t, err)
	a.Init()
	b.Init()
	wire.Advance(2000)

	var replyPayload []byte
	a.SetOnDataReceived(func(src, command uint8, payload []byte) {
		if command == CommandDiscoveryResponse {
			replyPayload = payload
		}
	})

	a.Send(2, PriorityMessage, CommandDiscovery, nil)
	wire.Advance(2000)

	assert.Equal(t, "pump-controller", string(replyPayload))
}

func TestPingTriggersPingReply(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)
	_ = b

	var replyCmd uint8
	a.SetOnDataReceived(func(src, command uint8, payload []byte) {
		replyCmd = command
	})

	a.Send(2, PriorityCommand, CommandPing, nil)
	wire.Advance(2000)

	assert.Equal(t, CommandPingReply, replyCmd)
}

// withPendingTX fakes a staged-but-not-yet-transmitted frame on s, the way
// sendLocked leaves tx after staging but before the bus goes idle (§4.5
// item 3's "pending or in flight" condition). It never arms the HAL
// compare timer, so it cannot itself trigger a transmission attempt.
func withPendingTX(t *testing.T, s *Station, prio Priority) {
	t.Helper()
	frame := Frame{Src: s.deviceID, Dst: 3, Priority: prio, Command: 0x50}
	buf := frame.encode()
	require.NotNil(t, buf)

	s.mu.Lock()
	s.tx.buf = append(s.tx.buf[:0], buf...)
	s.tx.priority = prio
	s.tx.state = txWaitInterframe
	s.mu.Unlock()
}

func TestDiscoverySuppressedByHigherThanMessagePendingSend(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)
	withPendingTX(t, b, PriorityCommand) // priority 4 > PriorityMessage (3)

	var gotReply bool
	a.SetOnDataReceived(func(src, command uint8, payload []byte) {
		if command == CommandDiscoveryResponse {
			gotReply = true
		}
	})

	a.Send(2, PriorityMessage, CommandDiscovery, nil)
	wire.Advance(2000)

	assert.False(t, gotReply, "DISCOVERY_RESPONSE must be suppressed while a higher-priority send is pending")
}

func TestDiscoveryNotSuppressedByLowerOrEqualPendingSend(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)
	withPendingTX(t, b, PriorityNotice) // priority 1 <= PriorityMessage (3)

	var gotReply bool
	a.SetOnDataReceived(func(src, command uint8, payload []byte) {
		if command == CommandDiscoveryResponse {
			gotReply = true
		}
	})

	a.Send(2, PriorityMessage, CommandDiscovery, nil)
	wire.Advance(2000)

	assert.True(t, gotReply, "DISCOVERY_RESPONSE must not be suppressed by a pending send at or below MESSAGE priority")
}

func TestRebootArmsWatchdogWithoutBlocking(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)

	a.Send(2, PriorityCommand, CommandReboot, nil)
	wire.Advance(2000) // b's dispatch handles REBOOT synchronously inside this call; must not hang

	// The station's mutex must not have been left held: b can still
	// process further traffic afterwards.
	var pingReplied bool
	a.SetOnDataReceived(func(src, command uint8, payload []byte) {
		if command == CommandPingReply {
			pingReplied = true
		}
	})
	a.Send(2, PriorityCommand, CommandPing, nil)
	wire.Advance(2000)

	assert.True(t, pingReplied)
	assert.Equal(t, txIdle, b.tx.state)
}

func TestSimultaneousSendLowerPriorityWinsArbitration(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)

	var aGot, bGot []byte
	a.SetOnDataReceived(func(src, command uint8, payload []byte) { aGot = payload })
	b.SetOnDataReceived(func(src, command uint8, payload []byte) { bGot = payload })

	// a transmits at the numerically lower (winning) priority.
	a.Send(2, PriorityNotice, 0x10, []byte{0xaa})
	b.Send(1, PriorityCommand, 0x20, []byte{0xbb})
	wire.Advance(4000)

	statsA, statsB := a.Stats(), b.Stats()
	assert.Equal(t, uint64(0), statsA.ArbitrationLosses, "lower-priority sender should not lose arbitration")
	assert.Equal(t, uint64(1), statsB.ArbitrationLosses, "higher-priority-number sender should back off")

	// a's frame reached b; b's frame was deferred, not delivered this round.
	assert.Equal(t, []byte{0xaa}, bGot)
	assert.Nil(t, aGot)

	// b's staged frame survives the loss and goes out once the bus clears.
	wire.Advance(4000)
	assert.Equal(t, []byte{0xbb}, aGot)
}

func TestResendLastPacketAfterArbitrationLoss(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)

	var aGot []byte
	a.SetOnDataReceived(func(src, command uint8, payload []byte) { aGot = payload })

	a.Send(2, PriorityNotice, 0x10, []byte{0xaa})  // wins arbitration
	b.Send(1, PriorityCommand, 0x20, []byte{0xbb}) // loses arbitration
	wire.Advance(4000)

	require.Equal(t, uint64(1), b.Stats().ArbitrationLosses)
	require.Nil(t, aGot, "b's frame must not have reached a yet")

	b.ResendLastPacket()
	wire.Advance(4000)

	assert.Equal(t, []byte{0xbb}, aGot, "ResendLastPacket must retransmit the previously staged frame")
}

func TestAbortSendCancelsPendingTransmission(t *testing.T) {
	wire, a, b := twoStations(t, 1, 2)

	var aGot []byte
	a.SetOnDataReceived(func(src, command uint8, payload []byte) { aGot = payload })

	b.Send(1, PriorityMessage, 0x30, []byte{0xdd})
	b.AbortSend()
	wire.Advance(4000)

	assert.Equal(t, txIdle, b.tx.state)
	assert.Nil(t, aGot, "an aborted send must never reach the wire")
}
