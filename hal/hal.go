// Package hal defines the hardware-abstraction surface the CLUNET core
// requires from the platform (§6.1). Implementations live in sub-packages
// (gpiocdev for Linux GPIO character devices) or, for tests, in the sim
// package's in-memory virtual wire.
package hal

// Line is the minimal physical-layer surface the core requires: drive-low,
// release, sample, and a free-running timer (§4.1).
//
// Implementations must treat EdgeInterruptEnable/Disable and
// ScheduleCompareIn/DisableCompare/EnableCompare as arming controls only —
// the actual callback registration happens once, at Open time, via the
// handler functions passed there. This mirrors the AVR original where the
// ISR vectors are fixed at compile time and only their enable bits toggle
// at runtime.
type Line interface {
	// PullLow drives the bus dominant (logic low).
	PullLow()
	// Release lets the bus float recessive (pulled high externally).
	Release()
	// IsLow reports the instantaneous sampled line state.
	IsLow() bool
	// Now returns the free-running 8-bit timer value, in bit-period
	// ticks' native unit (the same unit ScheduleCompareIn takes).
	Now() uint8

	// ScheduleCompareIn arms a one-shot timer-compare interrupt to fire
	// when the free-running timer reaches now()+k (wrapping at 256).
	ScheduleCompareIn(k uint8)
	// DisableCompare disarms the timer-compare interrupt.
	DisableCompare()
	// EnableCompare (re-)arms the timer-compare interrupt using the last
	// value given to ScheduleCompareIn.
	EnableCompare()

	// EdgeInterruptEnable/Disable arm/disarm the any-edge line interrupt.
	EdgeInterruptEnable()
	EdgeInterruptDisable()

	// ResetCause returns a platform reset-cause byte, read once at
	// startup and sent in BOOT_COMPLETED (§6.1, §9 supplement 3).
	ResetCause() uint8

	// WatchdogEnable arms a watchdog with an approximately 15ms timeout,
	// used by the REBOOT command handler (§4.5, §6.1). On hardware with
	// such a watchdog the device resets once it fires; backends without
	// one (hal/gpiocdev) return and leave the process running.
	WatchdogEnable()
}

// EdgeHandler is invoked from the line interrupt context with the timer
// value at the moment of the edge. Concurrency & Resource Model (§5): this
// must be short and non-blocking, exactly like an AVR ISR.
type EdgeHandler func(now uint8)

// CompareHandler is invoked from the timer-compare interrupt context.
type CompareHandler func(now uint8)

// Opener is implemented by HAL backends that need to register the two
// interrupt handlers at open time (the Go equivalent of wiring fixed ISR
// vectors). clunet.NewStation calls Open once.
type Opener interface {
	Open(onEdge EdgeHandler, onCompare CompareHandler) (Line, error)
}
