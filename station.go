// Package clunet implements the CLUNET link layer: a single-wire,
// multi-master, byte-oriented field bus arbitrated by non-destructive
// bitwise arbitration (§1-§2). A Station owns the receiver, transmitter,
// and frame dispatcher; it is driven by exactly two event sources — a line
// edge and a timer-compare match — delivered through OnEdge and
// OnTimerCompare, the Go equivalents of the original's two interrupt
// vectors (§2, §9).
package clunet

import (
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/clunet-go/clunet/hal"
)

// tx_state / rx_state values (§3).
type txState int

const (
	txIdle txState = iota
	txWaitInterframe
	txActive
)

// Sub-phase within txActive (§4.3).
type txPhase int

const (
	phasePriority txPhase = iota
	phaseData
	phaseStop
)

type rxState int

const (
	rxIdle rxState = iota
	rxHeader
	rxData
	rxWaitInterframe
)

// interframeBits is the minimum recessive idle time, in bit-periods,
// required before a new frame may start (§6.2).
const interframeBits = 7

// Stats counts protocol-level events for diagnostics only; nothing here
// changes wire behaviour (§7: "observability is limited to the
// ready_to_send return value and side-effects on the wire" at the
// application layer — Stats is an internal, opt-in enrichment on top of
// that, modelled on src/audio_stats.go's demodulator counters).
type Stats struct {
	FramesSent        uint64
	FramesReceived    uint64
	CRCErrors         uint64
	MalformedInputs   uint64
	BufferOverflows   uint64
	ArbitrationLosses uint64
}

// Station is one CLUNET device on the bus.
type Station struct {
	deviceID   uint8
	deviceName string
	bitPeriod  uint8 // T, in HAL ticks (8..24, §4.1)

	line hal.Line
	log  *asyncLog

	mu sync.Mutex

	tx txMachine
	rx rxMachine

	sendBufSize int
	readBufSize int

	onData  func(src uint8, command uint8, payload []byte)
	onSniff func(src, dst, command uint8, payload []byte)
	// BootControlHandler receives BOOT_CONTROL frames for forwarding to an
	// external boot-loader collaborator (§4.5, §9 supplement 6). Nil means
	// BOOT_CONTROL frames are dropped after the sniff callback.
	bootControlHandler func(src uint8, payload []byte)

	stats Stats
}

// Config carries the compile-time-equivalent settings of the original (one
// CLUNET_DEVICE_ID/CLUNET_SEND_BUFFER_SIZE/etc per station, §3). See
// config.Config for the YAML-loadable superset used by cmd/clunetd.
type Config struct {
	DeviceID       uint8
	DeviceName     string // optional; empty disables the DISCOVERY payload (§9 supplement 4)
	BitPeriodTicks uint8  // T; clamped into [8,24] if out of range
	SendBufferSize int    // >= 5; default 128
	ReadBufferSize int    // >= 5; default 128
	Logger         *log.Logger // nil installs a discarding logger
}

// NewStation constructs a Station and opens its HAL line through opener,
// wiring OnEdge/OnTimerCompare as the line's two interrupt callbacks (the
// Go equivalent of registering the fixed ISR vectors at boot). Call Init
// afterwards to bring it onto the bus.
func NewStation(opener hal.Opener, cfg Config) (*Station, error) {
	t := cfg.BitPeriodTicks
	if t < 8 {
		t = 8
	}
	if t > 24 {
		t = 24
	}
	sendSize := cfg.SendBufferSize
	if sendSize < offsetData+1 {
		sendSize = 128
	}
	readSize := cfg.ReadBufferSize
	if readSize < offsetData+1 {
		readSize = 128
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Station{
		deviceID:    cfg.DeviceID,
		deviceName:  cfg.DeviceName,
		bitPeriod:   t,
		log:         newAsyncLog(logger),
		sendBufSize: sendSize,
		readBufSize: readSize,
	}
	s.tx.station = s
	s.tx.buf = make([]byte, 0, sendSize)
	s.rx.station = s
	s.rx.buf = make([]byte, readSize)

	line, err := opener.Open(s.OnEdge, s.OnTimerCompare)
	if err != nil {
		return nil, err
	}
	s.line = line
	return s, nil
}

// Init brings the station onto the bus: arms the edge interrupt, then emits
// a broadcast BOOT_COMPLETED frame carrying the platform's reset-cause byte
// (§6.1, §6.3, §9 supplement 3).
func (s *Station) Init() {
	s.line.EdgeInterruptEnable()
	resetCause := s.line.ResetCause()
	s.Send(BroadcastAddress, PriorityMessage, CommandBootCompleted, []byte{resetCause})
	s.log.Info("station initialised", "device_id", s.deviceID, "reset_cause", resetCause)
}

// OnEdge must be called by the HAL whenever the line transitions (the edge
// interrupt, §2). now is the free-running timer value sampled at the edge.
func (s *Station) OnEdge(now uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEdge(now)
}

// OnTimerCompare must be called by the HAL whenever the armed
// timer-compare match fires (§2). now is the free-running timer value at
// (approximately) the scheduled instant.
func (s *Station) OnTimerCompare(now uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCompare(now)
}

// Send stages a frame for transmission (§6.3). Oversized payloads
// (> MaxPayloadSize, or that would not fit the configured send buffer) are
// silently dropped — link layer is best-effort (§7, §9 supplement 7).
// Priority is clamped to 1..8. Staging replaces any not-yet-started pending
// frame; a frame already ACTIVE on the wire finishes or aborts on its own
// before the replacement goes out.
func (s *Station) Send(dst uint8, prio Priority, command uint8, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendLocked(dst, prio, command, payload)
}

// sendLocked is Send's body, callable from contexts that already hold mu —
// namely the frame dispatcher's auto-replies, which run synchronously
// inside OnEdge (§4.5).
func (s *Station) sendLocked(dst uint8, prio Priority, command uint8, payload []byte) {
	if len(payload) > MaxPayloadSize {
		return
	}
	// Mirrors clunet_send's "size < (SEND_BUFFER_SIZE - OFFSET_DATA)"
	// guard: silently ignored if it would not fit the staged buffer
	// (§7 "Oversize send", §9 supplement 7).
	if len(payload) >= s.sendBufSize-offsetData {
		return
	}

	s.line.DisableCompare()

	frame := Frame{Src: s.deviceID, Dst: dst, Priority: prio.clamp(), Command: command, Payload: payload}
	buf := frame.encode()
	if buf == nil {
		s.line.EnableCompare()
		return
	}
	s.tx.buf = append(s.tx.buf[:0], buf...)
	s.tx.priority = prio.clamp()
	s.tx.state = txWaitInterframe
	s.tx.phase = phasePriority
	s.tx.pos = 0
	s.tx.runCount = 0
	s.tx.pendingStuff = false

	if !s.line.IsLow() {
		s.line.ScheduleCompareIn(interframeBits * s.bitPeriod)
		s.line.EnableCompare()
	}
	// Always release: any charge on a parasitic capacitance dissipates and
	// the edge interrupt notices the line is free, which (re-)arms the
	// compare as above (§9 supplement 1; mirrors clunet_send's
	// unconditional CLUNET_SEND_0 at the end of staging).
	s.line.Release()
}

// ReadyToSend returns 0 if idle, otherwise the priority of the
// pending/in-flight frame (§6.3, §9 supplement 2).
func (s *Station) ReadyToSend() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx.state == txIdle {
		return 0
	}
	return uint8(s.tx.priority)
}

// ResendLastPacket re-arms transmission of the last staged frame (its bytes
// are never cleared by a failed/aborted send, §4.3). A no-op if nothing has
// ever been staged.
func (s *Station) ResendLastPacket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tx.buf) == 0 {
		return
	}
	s.line.DisableCompare()
	s.tx.state = txWaitInterframe
	s.tx.phase = phasePriority
	s.tx.pos = 0
	s.tx.runCount = 0
	s.tx.pendingStuff = false
	if !s.line.IsLow() {
		s.line.ScheduleCompareIn(interframeBits * s.bitPeriod)
		s.line.EnableCompare()
	}
}

// AbortSend releases the line and forces tx_state back to IDLE (§5).
func (s *Station) AbortSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.line.DisableCompare()
	s.tx.state = txIdle
	s.line.Release()
}

// SetOnDataReceived installs the callback invoked for valid frames
// addressed to us (destination ours or broadcast) carrying a non-system
// command (§4.5, §6.3). Pass nil to clear it. Must be short and
// non-blocking (§5, §9): it runs synchronously inside OnEdge.
func (s *Station) SetOnDataReceived(f func(src uint8, command uint8, payload []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = f
}

// SetOnDataReceivedSniff installs the callback invoked for every
// CRC-valid frame on the wire, including frames we sent ourselves and ones
// not addressed to us (§4.5, §6.3, §8 invariant on src==our_id).
func (s *Station) SetOnDataReceivedSniff(f func(src, dst, command uint8, payload []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSniff = f
}

// SetBootControlHandler installs the forwarding hook for BOOT_CONTROL
// frames (§4.5, §9 supplement 6). The bootloader sub-protocol itself is out
// of scope for this module (§1).
func (s *Station) SetBootControlHandler(f func(src uint8, payload []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootControlHandler = f
}

// Stats returns a snapshot of the station's diagnostic counters.
func (s *Station) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

