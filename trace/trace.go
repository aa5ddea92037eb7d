// Package trace records every frame seen on the bus to a file named from a
// strftime pattern, the same way xmit.go/tq.go timestamp received-packet
// logs, for offline diagnosis of arbitration/noise problems that are hard
// to reproduce live.
package trace

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Recorder appends one line per sniffed frame to a file whose name is
// re-evaluated (via the strftime pattern) on each write, so a pattern like
// "clunet-%Y%m%d.log" naturally rolls the trace file at midnight.
type Recorder struct {
	pattern string

	mu       sync.Mutex
	openName string
	f        *os.File
}

// New validates pattern (an strftime format string) into a Recorder.
func New(pattern string) (*Recorder, error) {
	if _, err := strftime.Format(pattern, time.Now()); err != nil {
		return nil, fmt.Errorf("trace: bad pattern %q: %w", pattern, err)
	}
	return &Recorder{pattern: pattern}, nil
}

// Record appends one CSV-ish line describing a frame. Safe for concurrent
// use; intended to be wired as a Station's sniff callback.
func (r *Recorder) Record(src, dst, command uint8, payload []byte) error {
	name, err := strftime.Format(r.pattern, time.Now())
	if err != nil {
		return fmt.Errorf("trace: formatting name: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil || name != r.openName {
		if r.f != nil {
			_ = r.f.Close()
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("trace: opening %s: %w", name, err)
		}
		r.f = f
		r.openName = name
	}

	_, err = fmt.Fprintf(r.f, "%s,%d,%d,0x%02x,%d,% x\n",
		time.Now().Format(time.RFC3339Nano), src, dst, command, len(payload), payload)
	return err
}

// Close closes the currently open trace file, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
