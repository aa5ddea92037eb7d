package clunet

// txMachine drives the transmitter's phase machine (§4.3). It is
// compare-timer-driven: each onCompare firing means "the run I previously
// scheduled has just elapsed," at which point the machine decides the next
// run (possibly a forced bit-stuffing run) and reschedules.
//
// Logical bit positions: 0 is the start bit (always dominant, not part of
// the priority/data encoding), 1..3 are the priority bits (MSB first), and
// 4.. are the header+payload+CRC bytes in buf, MSB first per byte.
type txMachine struct {
	station *Station

	state    txState
	phase    txPhase
	priority Priority
	buf      []byte // staged, CRC-terminated frame bytes (owned by Send)

	pos int // next logical bit position to place on the wire

	curVal      bool // current physical polarity: false=dominant, true=recessive
	runCount    int  // consecutive bit-periods of curVal since the last toggle, a stuffing bit included
	pendingStuff bool // a forced opposite-polarity bit is due next (§3, §6.2)

	dominantTask  uint8 // bit-periods the CURRENT run intends to hold dominant
	recessiveTask uint8 // bit-periods the CURRENT run intends to hold recessive
}

func (tx *txMachine) totalBits() int {
	return 4 + 8*len(tx.buf)
}

// logicalBit returns the value (false=dominant/0, true=recessive/1) of bit
// position pos in the start+priority+data stream (§3, §4.3).
func (tx *txMachine) logicalBit(pos int) bool {
	switch {
	case pos == 0:
		return false
	case pos <= 3:
		return priorityBit(tx.priority, uint(pos-1))
	default:
		idx := pos - 4
		byteI := idx / 8
		bitI := uint(idx % 8)
		return tx.buf[byteI]&(0x80>>bitI) != 0
	}
}

func (tx *txMachine) drive(val bool) {
	if val {
		tx.station.line.Release()
	} else {
		tx.station.line.PullLow()
	}
	tx.curVal = val
}

// beginActive starts driving the staged frame onto the wire once the bus
// has been confirmed free for the interframe gap (§4.2 WAIT_INTERFRAME ->
// HEADER via the transmitter, §4.3).
func (tx *txMachine) beginActive(now uint8) {
	tx.state = txActive
	tx.phase = phasePriority
	tx.pos = 0
	tx.curVal = true // matches the currently-released bus; forces the first toggle below
	tx.runCount = 0
	tx.pendingStuff = false
	tx.step(now)
}

// step computes and starts the next physical run: either a forced
// bit-stuffing pulse, the remaining bits of a frame already fully placed
// (stop condition), or a batch of consecutive same-valued logical bits
// (§3, §4.3, §6.2).
func (tx *txMachine) step(now uint8) {
	s := tx.station

	if tx.pendingStuff {
		tx.drive(!tx.curVal)
		tx.runCount = 1
		tx.pendingStuff = false
		tx.setTask(1)
		s.line.ScheduleCompareIn(1 * s.bitPeriod)
		return
	}

	total := tx.totalBits()
	if tx.pos >= total {
		tx.finish()
		return
	}

	if tx.pos <= 3 {
		tx.phase = phasePriority
	} else {
		tx.phase = phaseData
	}

	next := tx.logicalBit(tx.pos)
	if next != tx.curVal {
		tx.drive(next)
		tx.runCount = 0
	}

	count := 0
	for tx.pos < total && tx.logicalBit(tx.pos) == tx.curVal && tx.runCount < 5 {
		tx.runCount++
		tx.pos++
		count++
	}
	if tx.runCount == 5 {
		tx.pendingStuff = true
	}
	if count == 0 {
		count = 1
	}
	// The task is the whole physical run, which after a stuffing bit of the
	// same polarity is longer than the bits scheduled here.
	tx.setTask(uint8(tx.runCount))
	s.line.ScheduleCompareIn(uint8(count) * s.bitPeriod)
}

func (tx *txMachine) setTask(n uint8) {
	if tx.curVal {
		tx.recessiveTask = n
		tx.dominantTask = 0
	} else {
		tx.dominantTask = n
		tx.recessiveTask = 0
	}
}

// finish ends the frame: an explicit release if the last bit left the bus
// dominant (a frame may not legally end pulling the bus low), then returns
// to IDLE (§4.3 STOP).
func (tx *txMachine) finish() {
	tx.phase = phaseStop
	if !tx.curVal {
		tx.drive(true)
	}
	tx.station.stats.FramesSent++
	tx.state = txIdle
	tx.phase = phasePriority
	tx.dominantTask = 0
	tx.recessiveTask = 0
}

// onCompare is the Station's timer-compare handler (§2, §4.3, §4.4 item 3).
func (s *Station) onCompare(now uint8) {
	switch s.tx.state {
	case txIdle:
		// The only reason compare would be armed while idle is tracking the
		// receiver's interframe gap (§6.2): it has now expired.
		if s.rx.state == rxWaitInterframe {
			s.rx.state = rxIdle
		}
		s.line.DisableCompare()

	case txWaitInterframe:
		// 7T of recessive elapsed with nobody else starting a frame: we may
		// transmit (§4.2 WAIT_INTERFRAME, §4.3).
		if s.rx.state == rxWaitInterframe {
			s.rx.state = rxIdle
		}
		s.tx.beginActive(now)

	case txActive:
		// Intra-arbitration (§4.4 item 3): we scheduled this compare to
		// fire once our own release took effect, but the bus is still held
		// low — someone else has it.
		if s.tx.recessiveTask > 0 && s.line.IsLow() {
			s.loseArbitration()
			return
		}
		s.tx.step(now)
		if s.tx.state == txIdle {
			if s.rx.state == rxWaitInterframe {
				s.rx.state = rxIdle
			}
			s.line.DisableCompare()
		}
	}
}
