// pty.go exposes a Wire to external tools through a pseudo-terminal, the
// same trick kiss.go uses to let a KISS-speaking application attach to a
// software TNC without a real serial cable.
package sim

import (
	"fmt"
	"os"
	"sync"

	"github.com/creack/pty"
	"github.com/pkg/term"
)

// PtyMirror copies a station's observed wire traffic onto a pseudo-terminal
// as plain text, one line per event, so a human can watch it with `cat` or
// a terminal emulator attached to the slave side. It does not feed bytes
// back onto the bus: CLUNET is a bit-timed electrical bus, not a byte
// stream, so the pty here is an observation aid, not a second transport.
type PtyMirror struct {
	master *os.File
	slave  *os.File
	raw    *term.Term

	mu sync.Mutex
}

// NewPtyMirror allocates a pty pair, puts the slave side in raw mode so a
// terminal emulator attached to it shows our lines unmangled, and returns
// the slave's path for attaching external tools (e.g. `screen /dev/pts/7`).
func NewPtyMirror() (*PtyMirror, string, error) {
	ptmx, pts, err := pty.Open()
	if err != nil {
		return nil, "", fmt.Errorf("sim: opening pty: %w", err)
	}
	raw, err := term.Open(pts.Name(), term.RawMode)
	if err != nil {
		ptmx.Close()
		pts.Close()
		return nil, "", fmt.Errorf("sim: setting %s raw: %w", pts.Name(), err)
	}
	return &PtyMirror{master: ptmx, slave: pts, raw: raw}, pts.Name(), nil
}

// Sniff is suitable for Station.SetOnDataReceivedSniff: it formats every
// frame and writes it to the pty master, dropping writes if nothing is
// attached to the slave yet (mirrors kiss.go's "no one reading" note, but
// here it's non-blocking by construction rather than by select-before-read,
// since os.File writes to a pty with a full kernel buffer just return
// ENOBUFS-equivalent errors we can safely ignore for a best-effort mirror).
func (p *PtyMirror) Sniff(src, dst, command uint8, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.master, "%3d -> %3d  cmd=0x%02x  len=%2d  % x\n", src, dst, command, len(payload), payload)
}

// Close releases both ends of the pty pair.
func (p *PtyMirror) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.raw.Close()
	err1 := p.slave.Close()
	err2 := p.master.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
