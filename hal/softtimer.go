//go:build linux

package hal

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// SoftTimer provides Now/ScheduleCompareIn/DisableCompare/EnableCompare
// semantics on a Linux timerfd for HAL backends whose platform has no
// hardware compare-match interrupt of its own (§4.1, §9). It is composed
// into a full hal.Line implementation rather than being one itself, since
// it knows nothing about the actual bus line.
type SoftTimer struct {
	fd    int
	start time.Time

	onFire    func(now uint8)
	lastK     uint8
	armed     bool
	closeChan chan struct{}
}

// NewSoftTimer creates a timerfd-backed ticker and starts the goroutine
// that watches it; onFire is invoked (from that goroutine) each time an
// armed deadline elapses.
func NewSoftTimer(onFire func(now uint8)) (*SoftTimer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		return nil, fmt.Errorf("softtimer: timerfd_create: %w", err)
	}
	t := &SoftTimer{fd: fd, start: time.Now(), onFire: onFire, closeChan: make(chan struct{})}
	go t.watch()
	return t, nil
}

func (t *SoftTimer) watch() {
	buf := make([]byte, 8)
	for {
		n, err := unix.Read(t.fd, buf)
		if err != nil || n != 8 {
			select {
			case <-t.closeChan:
				return
			default:
				continue
			}
		}
		if t.armed && t.onFire != nil {
			t.onFire(t.Now())
		}
	}
}

// Now returns the low 8 bits of milliseconds elapsed since the timer was
// created (§4.1's free-running 8-bit tick counter).
func (t *SoftTimer) Now() uint8 {
	return uint8(time.Since(t.start).Milliseconds())
}

// ScheduleCompareIn arms the timerfd to fire in k ticks (milliseconds).
func (t *SoftTimer) ScheduleCompareIn(k uint8) {
	t.lastK = k
	t.armed = true
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec((time.Duration(k) * time.Millisecond).Nanoseconds()),
	}
	_ = unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

func (t *SoftTimer) DisableCompare() {
	t.armed = false
	_ = unix.TimerfdSettime(t.fd, 0, &unix.ItimerSpec{}, nil)
}

func (t *SoftTimer) EnableCompare() {
	if t.armed {
		return
	}
	t.ScheduleCompareIn(t.lastK)
}

// Close stops the watcher goroutine and releases the timerfd.
func (t *SoftTimer) Close() error {
	close(t.closeChan)
	return unix.Close(t.fd)
}
