// Package gpiocdev backs hal.Line with a single open-drain Linux GPIO
// character-device line, using github.com/warthog618/go-gpiocdev (§6.1,
// §9 supplement 1).
//
// A single wire carrying both drive and sense duties does not map cleanly
// onto the gpio-cdev v2 uapi: edge events are only delivered while a line
// is requested as input, so our own PullLow/Release transitions are
// invisible to the kernel while we're driving. We work around this the way
// the AVR original never had to: each transition we cause is immediately
// replayed to the registered edge handler as if the kernel had reported it,
// keeping the Station's edge-driven model (which assumes every transition,
// including our own, arrives through onEdge, §4.2/§4.4) accurate
// regardless of backend.
package gpiocdev

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/clunet-go/clunet/hal"
)

// Line is a hal.Line backed by one GPIO line on one chip. The gpio-cdev
// uapi has no compare-match timer of its own, so timing is delegated to a
// hal.SoftTimer (§4.1, §9: "a simulated free-running 8-bit timer fallback
// on platforms without a hardware timer peripheral exposed to userspace").
type Line struct {
	line *gpiocdev.Line

	chip   string
	offset int

	onEdge hal.EdgeHandler
	timer  *hal.SoftTimer
}

// Open returns a hal.Opener for one line on chip (§6.1). Its Open method,
// called by clunet.NewStation, requests the line in input mode with
// both-edge detection and wires the two Station callbacks.
func Open(chip string, offset int) *lineOpener {
	return &lineOpener{chip: chip, offset: offset}
}

type lineOpener struct {
	chip   string
	offset int
}

func (o *lineOpener) Open(onEdge hal.EdgeHandler, onCompare hal.CompareHandler) (hal.Line, error) {
	l := &Line{chip: o.chip, offset: o.offset, onEdge: onEdge}

	timer, err := hal.NewSoftTimer(onCompare)
	if err != nil {
		return nil, fmt.Errorf("gpiocdev: %w", err)
	}
	l.timer = timer

	gl, err := gpiocdev.RequestLine(o.chip, o.offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(l.handleKernelEvent),
	)
	if err != nil {
		_ = timer.Close()
		return nil, fmt.Errorf("gpiocdev: requesting %s:%d: %w", o.chip, o.offset, err)
	}
	l.line = gl
	return l, nil
}

func (l *Line) handleKernelEvent(evt gpiocdev.LineEvent) {
	if l.onEdge != nil {
		l.onEdge(l.Now())
	}
}

// Now delegates to the soft timer's free-running 8-bit tick counter (§4.1).
func (l *Line) Now() uint8 {
	return l.timer.Now()
}

// PullLow reconfigures the line as a driven-low output and synthesizes the
// edge callback the kernel cannot deliver for our own input-to-output
// transition (see package doc).
func (l *Line) PullLow() {
	_ = l.line.Reconfigure(gpiocdev.AsOutput(0))
	if l.onEdge != nil {
		l.onEdge(l.Now())
	}
}

// Release returns the line to input, letting the external pull-up win, and
// synthesizes the edge callback the kernel cannot deliver for our own
// output-to-input transition (see package doc).
func (l *Line) Release() {
	_ = l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(l.handleKernelEvent))
	if l.onEdge != nil {
		l.onEdge(l.Now())
	}
}

// IsLow samples the instantaneous line level regardless of direction.
func (l *Line) IsLow() bool {
	v, err := l.line.Value()
	if err != nil {
		return false
	}
	return v == 0
}

func (l *Line) ScheduleCompareIn(k uint8) { l.timer.ScheduleCompareIn(k) }
func (l *Line) DisableCompare()           { l.timer.DisableCompare() }
func (l *Line) EnableCompare()            { l.timer.EnableCompare() }

// EdgeInterruptEnable/Disable are no-ops here: the character-device event
// handler is registered once at Open time and the kernel delivers events
// whenever the line is in input mode, which is our steady state.
func (l *Line) EdgeInterruptEnable()  {}
func (l *Line) EdgeInterruptDisable() {}

// ResetCause has no cdev-GPIO analogue; report "unknown" (§9 supplement 3).
func (l *Line) ResetCause() uint8 { return 0 }

// WatchdogEnable has no portable Linux-userspace equivalent for a ~15ms
// hardware watchdog; this backend logs nothing and leaves the process
// running, relying on systemd/supervisor-level restart policies instead
// (§6.1, §9 supplement 5).
func (l *Line) WatchdogEnable() {}

// Close releases the underlying character-device line handle and stops the
// soft timer's watch goroutine.
func (l *Line) Close() error {
	var timerErr error
	if l.timer != nil {
		timerErr = l.timer.Close()
	}
	if err := l.line.Close(); err != nil {
		return err
	}
	return timerErr
}
