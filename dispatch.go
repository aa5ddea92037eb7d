package clunet

// dispatch runs for every CRC-valid frame seen on the wire, including ones
// we sent ourselves (§4.5, §8). It is called from rx.finalize while
// Station.mu is already held (via OnEdge), so any reply goes out through
// sendLocked, never the public, re-locking Send.
func (s *Station) dispatch(f Frame) {
	s.stats.FramesReceived++

	if s.onSniff != nil {
		s.onSniff(f.Src, f.Dst, f.Command, f.Payload)
	}

	if f.Src == s.deviceID {
		return // our own frame, already sniffed; never a data/command target
	}
	if f.Dst != s.deviceID && f.Dst != BroadcastAddress {
		return
	}

	if f.Command == CommandReboot {
		s.log.Warn("reboot command received", "src", f.Src)
		s.line.WatchdogEnable()
		return
	}

	// Auto-replies are suppressed while a higher-than-MESSAGE-priority send
	// of our own is pending or in flight, so we don't preempt our own
	// important outgoing frame with a routine reply (§4.5 item 3).
	busyWithImportantSend := s.tx.state != txIdle && s.tx.priority > PriorityMessage

	switch f.Command {
	case CommandDiscovery:
		if busyWithImportantSend {
			return
		}
		var payload []byte
		if s.deviceName != "" {
			payload = []byte(s.deviceName)
		}
		s.sendLocked(f.Src, PriorityMessage, CommandDiscoveryResponse, payload)
	case CommandPing:
		if busyWithImportantSend {
			return
		}
		s.sendLocked(f.Src, PriorityCommand, CommandPingReply, f.Payload)
	case CommandBootControl:
		if s.bootControlHandler != nil {
			s.bootControlHandler(f.Src, f.Payload)
		}
	default:
		if s.onData != nil {
			s.onData(f.Src, f.Command, f.Payload)
		}
	}
}
