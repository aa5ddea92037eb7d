package clunet

// arbiterCheckEdge implements the edge-triggered half of non-destructive
// bitwise arbitration (§4.4 items 1-2). It only runs while we are ACTIVE on
// the wire; the caller (onEdge) already guarantees that.
//
// dominantTask/recessiveTask describe the run we are currently driving, set
// at the moment that run started (transmitter.step/beginActive). A
// self-timed edge ending that run always measures b equal to the task
// value, so the strict inequalities below never fire on our own correctly
// timed transitions — only on genuine interference.
func (s *Station) arbiterCheckEdge(nowLow bool, b uint8) {
	if !nowLow {
		// Rising edge: a dominant run just ended. If it ran longer than we
		// scheduled, someone else held the bus low after we would have
		// released.
		if b > s.tx.dominantTask {
			s.loseArbitration()
		}
		return
	}
	// Falling edge: a recessive (released) run just ended. If it ended
	// sooner than we scheduled, someone else pulled the bus dominant while
	// we still intended to be released.
	if s.tx.recessiveTask > 0 && b < s.tx.recessiveTask {
		s.loseArbitration()
	}
}

// loseArbitration yields the bus to the winning frame (§4.4, §7). The
// staged frame is untouched: Send already copied it into tx.buf and a
// later ResendLastPacket or fresh Send will retry it. We become a pure
// receiver for whatever is now on the wire.
func (s *Station) loseArbitration() {
	s.tx.state = txWaitInterframe
	s.line.DisableCompare()
	s.stats.ArbitrationLosses++
	s.log.Debug("arbitration lost", "priority", s.tx.priority)
}
