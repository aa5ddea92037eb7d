package clunet

// rxMachine reconstructs frames from edge timings (§4.2). It is
// edge-driven only: nothing happens between edges except the interframe
// timer expiring, handled by Station.onCompare.
type rxMachine struct {
	station *Station

	state rxState

	buf         []byte
	totalBits   int // bits seen since the falling edge that started HEADER
	priorityAcc byte
	priority    Priority
	expectedLen int // 0 until the size byte is known; then offsetData+size+1
	bitStuff    bool

	lastEdgeTime uint8
}

// beginHeader is the falling edge that starts a new frame, from IDLE or
// WAIT_INTERFRAME (§4.2: "IDLE -> on falling edge: reset counters, go to
// HEADER"; "Any falling edge during WAIT_INTERFRAME restarts the header
// phase"). The edge itself carries no timed run to measure — it is purely a
// synchronization point.
func (rx *rxMachine) beginHeader(now uint8) {
	rx.state = rxHeader
	rx.lastEdgeTime = now
	rx.totalBits = 0
	rx.priorityAcc = 0
	rx.expectedLen = 0
	rx.bitStuff = false
}

// consume applies n bits of the given polarity (true = recessive/1,
// false = dominant/0), as measured from one edge's run length minus any
// discarded stuffing bit. It advances the HEADER -> DATA -> (frame
// complete) phases (§4.2).
func (rx *rxMachine) consume(bitValue bool, n uint8) {
	for i := uint8(0); i < n; i++ {
		pos := rx.totalBits
		rx.totalBits++
		switch {
		case pos == 0:
			// Start bit: always dominant, not stored (§4.2, §6.2).
		case pos <= 3:
			if bitValue {
				rx.priorityAcc |= 1 << uint(3-pos)
			}
			if pos == 3 {
				rx.priority = Priority(rx.priorityAcc + 1)
				rx.state = rxData
			}
		default:
			dataBit := pos - 4
			byteIdx := dataBit / 8
			bitInByte := uint(dataBit % 8)
			if byteIdx >= len(rx.buf) {
				rx.abort(ErrBufferOverflow)
				return
			}
			mask := byte(0x80 >> bitInByte)
			if bitValue {
				rx.buf[byteIdx] |= mask
			} else {
				rx.buf[byteIdx] &^= mask
			}
			if bitInByte != 7 {
				continue
			}
			if byteIdx == offsetSize {
				rx.expectedLen = offsetData + int(rx.buf[offsetSize]) + 1
			}
			if rx.expectedLen > 0 && byteIdx+1 >= rx.expectedLen {
				rx.finalize()
				return
			}
		}
	}
}

// finalize runs once the declared frame length has been fully received:
// CRC-check, and on success hand off to the frame dispatcher (§4.2 DATA
// phase, §4.5). Either way the receiver goes to WAIT_INTERFRAME.
func (rx *rxMachine) finalize() {
	s := rx.station
	n := rx.expectedLen
	rx.state = rxWaitInterframe
	frame, err := decodeFrame(rx.buf[:n], rx.priority)
	rx.expectedLen = 0
	if err != nil {
		s.stats.CRCErrors++
		s.log.Debug("dropping frame: crc mismatch")
		return
	}
	s.dispatch(frame)
}

// abort collapses a malformed-input or buffer-overflow condition straight
// to WAIT_INTERFRAME (§4.2 ERROR sub-state, §7).
func (rx *rxMachine) abort(kind error) {
	s := rx.station
	rx.state = rxWaitInterframe
	rx.expectedLen = 0
	switch kind {
	case ErrBufferOverflow:
		s.stats.BufferOverflows++
		s.log.Warn("receive buffer overflow, dropping frame")
	default:
		s.stats.MalformedInputs++
		s.log.Warn("malformed input, dropping frame")
	}
}

// onEdge is the Station's edge-interrupt handler (§2, §4.2, §4.4). It
// always runs the receiver's bit consumption (even for our own
// transmission: §8 invariant that src==our_id frames still reach the sniff
// callback) and, when we are actively transmitting, the arbitration checks
// woven into the edge path (§4.4 items 1-2).
func (s *Station) onEdge(now uint8) {
	nowLow := s.line.IsLow()
	// The polarity of the just-ended run is the opposite of the line state
	// now observed: a falling edge (line now low) ends a recessive (bit=1)
	// run, a rising edge ends a dominant (bit=0) run (§4.2). Numerically
	// that means the ended run's bit value equals nowLow.
	bitValue := nowLow

	switch s.rx.state {
	case rxIdle, rxWaitInterframe:
		if nowLow {
			s.rx.beginHeader(now)
		}
	default: // rxHeader, rxData
		delta := now - s.rx.lastEdgeTime
		halfT := s.bitPeriod / 2
		maxDelta := 5*s.bitPeriod + halfT
		if delta < halfT || delta >= maxDelta {
			s.rx.abort(ErrMalformedInput)
			break
		}
		b := (uint16(delta) + uint16(halfT)) / uint16(s.bitPeriod)
		if b < 1 {
			b = 1
		} else if b > 5 {
			b = 5
		}
		s.rx.lastEdgeTime = now

		if s.tx.state == txActive {
			s.arbiterCheckEdge(nowLow, uint8(b))
		}

		bits := uint8(b)
		if s.rx.bitStuff {
			bits--
		}
		s.rx.bitStuff = b == 5
		s.rx.consume(bitValue, bits)
	}

	// Pre-arbitration (§4.4 item 1): another station starting a frame
	// while we are merely waiting to start our own means we back off the
	// compare interrupt and let the receiver take over, which it just did
	// above via beginHeader/consume.
	if nowLow {
		if s.tx.state == txWaitInterframe {
			s.line.DisableCompare()
		}
		return
	}

	// The line just went free. Whoever isn't actively driving it (us, if
	// tx isn't ACTIVE) starts/continues timing the interframe gap — this
	// single compare also doubles as "may I start transmitting now?" for a
	// WAIT_INTERFRAME transmitter (§4.3, §4.2 WAIT_INTERFRAME).
	if s.tx.state != txActive {
		s.maybeArmInterframe()
	}
}

// maybeArmInterframe (re-)arms the shared compare timer for the 7·T
// interframe gap whenever the bus is observed free and we are not actively
// driving it ourselves (§6.2). A no-op if the bus is not actually free, or
// if TX is ACTIVE and therefore already owns the compare timer for its own
// bit scheduling.
func (s *Station) maybeArmInterframe() {
	if s.tx.state == txActive || s.line.IsLow() {
		return
	}
	s.line.ScheduleCompareIn(interframeBits * s.bitPeriod)
	s.line.EnableCompare()
}
