package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWireIsLowReflectsAnyPullingStation(t *testing.T) {
	w := NewWire()
	var edgesA, edgesB int
	lineA, err := w.NewEndpoint().Open(func(uint8) { edgesA++ }, nil)
	assertNoError(t, err)
	lineB, err := w.NewEndpoint().Open(func(uint8) { edgesB++ }, nil)
	assertNoError(t, err)

	lineA.EdgeInterruptEnable()
	lineB.EdgeInterruptEnable()

	assert.False(t, w.isLow())
	lineA.PullLow()
	assert.True(t, w.isLow())
	assert.Equal(t, 1, edgesA)
	assert.Equal(t, 1, edgesB) // the bus-level transition is visible to every station

	lineB.PullLow()
	assert.True(t, w.isLow())
	// Second PullLow doesn't change the observed bus level (already low), so
	// no further edge is broadcast.
	assert.Equal(t, 1, edgesA)
	assert.Equal(t, 1, edgesB)

	lineA.Release()
	assert.True(t, w.isLow(), "bus stays low while lineB still pulls it")

	lineB.Release()
	assert.False(t, w.isLow())
}

func TestWireAdvanceFiresDueCompares(t *testing.T) {
	w := NewWire()
	var fired []uint8
	line, err := w.NewEndpoint().Open(nil, func(now uint8) { fired = append(fired, now) })
	assertNoError(t, err)

	line.ScheduleCompareIn(3)
	line.EnableCompare()
	w.Advance(2)
	assert.Empty(t, fired)
	w.Advance(1)
	assert.Equal(t, []uint8{3}, fired)
}

func TestWireDisableCompareSuppressesFiring(t *testing.T) {
	w := NewWire()
	fired := false
	line, err := w.NewEndpoint().Open(nil, func(uint8) { fired = true })
	assertNoError(t, err)

	line.ScheduleCompareIn(2)
	line.EnableCompare()
	line.DisableCompare()
	w.Advance(5)
	assert.False(t, fired)
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
