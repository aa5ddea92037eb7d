// Package sim provides a virtual hal.Line implementation for tests and
// demos: an in-memory shared bus (Wire) modelling the open-drain "any
// station pulling low wins" electrical behaviour without real hardware,
// and (pty.go) a pty-backed mirror that writes sniffed frames to a
// pseudo-terminal for live viewing.
package sim

import (
	"sync"

	"github.com/clunet-go/clunet/hal"
)

// Wire is a shared, open-drain virtual bus: the observed level is low iff
// at least one attached station is pulling it low (§2's "wired-AND"
// physical layer), and the free-running tick counter is shared so every
// station sees the same Now().
type Wire struct {
	mu      sync.Mutex
	pulling map[*wireLine]bool
	tick    uint8
}

// NewWire creates an empty bus. Call NewEndpoint once per station and pass
// the result to clunet.NewStation.
func NewWire() *Wire {
	return &Wire{pulling: make(map[*wireLine]bool)}
}

// NewEndpoint returns a hal.Opener for one more station on w. Stations
// constructed this way don't exist yet (clunet.NewStation hasn't built its
// OnEdge/OnTimerCompare bindings), so attaching to the bus is deferred to
// Open, which clunet.NewStation calls once those bindings exist.
func (w *Wire) NewEndpoint() hal.Opener {
	return &wireEndpoint{wire: w}
}

type wireEndpoint struct {
	wire *Wire
}

// Open attaches a new station line to the bus, recording its bound
// interrupt callbacks. Never fails — there is no real hardware to fail
// against.
func (e *wireEndpoint) Open(onEdge hal.EdgeHandler, onCompare hal.CompareHandler) (hal.Line, error) {
	l := &wireLine{wire: e.wire, onEdge: onEdge, onCompare: onCompare}
	e.wire.mu.Lock()
	e.wire.pulling[l] = false
	e.wire.mu.Unlock()
	return l, nil
}

// Advance moves the shared clock forward by n ticks, firing any compare
// events scheduled to land within that span in ascending time order. Tests
// drive the bus entirely through Advance — there is no background
// goroutine or wall-clock dependency, so runs are fully deterministic.
func (w *Wire) Advance(n int) {
	for i := 0; i < n; i++ {
		w.mu.Lock()
		w.tick++
		now := w.tick
		var due []*wireLine
		for l := range w.pulling {
			if l.compareArmed && l.compareAt == now {
				due = append(due, l)
			}
		}
		w.mu.Unlock()
		for _, l := range due {
			if l.onCompare != nil {
				l.onCompare(now)
			}
		}
	}
}

func (w *Wire) isLow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.pulling {
		if p {
			return true
		}
	}
	return false
}

// wireLine is one station's handle onto a Wire.
type wireLine struct {
	wire *Wire

	onEdge    hal.EdgeHandler
	onCompare hal.CompareHandler

	compareAt    uint8
	compareArmed bool

	edgeEnabled  bool
	resetCause   uint8
	watchdogHits int
}

func (l *wireLine) now() uint8 {
	l.wire.mu.Lock()
	defer l.wire.mu.Unlock()
	return l.wire.tick
}

func (l *wireLine) Now() uint8 { return l.now() }

func (l *wireLine) setPulling(v bool) {
	wasLow := l.wire.isLow()
	l.wire.mu.Lock()
	l.wire.pulling[l] = v
	l.wire.mu.Unlock()
	nowLow := l.wire.isLow()
	if wasLow == nowLow {
		return
	}
	l.wire.broadcastEdge()
}

// broadcastEdge delivers the bus-level transition to every attached
// station with edge interrupts enabled, mirroring every station's own
// interrupt firing off the single shared wire.
func (w *Wire) broadcastEdge() {
	w.mu.Lock()
	now := w.tick
	var lines []*wireLine
	for l := range w.pulling {
		if l.edgeEnabled {
			lines = append(lines, l)
		}
	}
	w.mu.Unlock()
	for _, l := range lines {
		if l.onEdge != nil {
			l.onEdge(now)
		}
	}
}

func (l *wireLine) PullLow()  { l.setPulling(true) }
func (l *wireLine) Release()  { l.setPulling(false) }
func (l *wireLine) IsLow() bool { return l.wire.isLow() }

func (l *wireLine) ScheduleCompareIn(k uint8) {
	l.compareAt = l.now() + k
	l.compareArmed = true
}
func (l *wireLine) DisableCompare() { l.compareArmed = false }
func (l *wireLine) EnableCompare()  { l.compareArmed = true }

func (l *wireLine) EdgeInterruptEnable()  { l.edgeEnabled = true }
func (l *wireLine) EdgeInterruptDisable() { l.edgeEnabled = false }

func (l *wireLine) ResetCause() uint8 { return l.resetCause }

func (l *wireLine) WatchdogEnable() { l.watchdogHits++ }
