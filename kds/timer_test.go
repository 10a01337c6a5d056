package kds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerEngine_CountdownExpiresExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	te := NewTimerEngine(clock.Now)

	require.True(t, te.OnOrderEnteredPreparing(1, 5, time.Time{}))
	remaining, ok := te.Remaining(1)
	require.True(t, ok)
	assert.Equal(t, 300, remaining)

	var expiries []Expiry
	for i := 0; i < 300; i++ {
		clock.Advance(time.Second)
		expiries = append(expiries, te.Tick()...)
	}
	remaining, _ = te.Remaining(1)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, []Expiry{{OrderID: 1, Episode: 1}}, expiries)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		assert.Empty(t, te.Tick())
	}
	remaining, _ = te.Remaining(1)
	assert.Equal(t, 0, remaining)
}

func TestTimerEngine_DuplicateEnterIsNoop(t *testing.T) {
	clock := newFakeClock()
	te := NewTimerEngine(clock.Now)

	require.True(t, te.OnOrderEnteredPreparing(1, 2, time.Time{}))
	clock.Advance(30 * time.Second)
	te.Tick()
	assert.False(t, te.OnOrderEnteredPreparing(1, 2, time.Time{}))

	remaining, _ := te.Remaining(1)
	assert.Equal(t, 90, remaining)
}

func TestTimerEngine_CatchesUpAfterSuspension(t *testing.T) {
	clock := newFakeClock()
	te := NewTimerEngine(clock.Now)
	te.OnOrderEnteredPreparing(1, 10, time.Time{})

	clock.Advance(4*time.Minute + 500*time.Millisecond)
	assert.Empty(t, te.Tick())

	remaining, _ := te.Remaining(1)
	assert.Equal(t, 360, remaining)

	clock.Advance(time.Hour)
	assert.Equal(t, []Expiry{{OrderID: 1, Episode: 1}}, te.Tick())
}

func TestTimerEngine_ReenteringStartsFreshEpisode(t *testing.T) {
	clock := newFakeClock()
	te := NewTimerEngine(clock.Now)

	te.OnOrderEnteredPreparing(1, 1, time.Time{})
	clock.Advance(61 * time.Second)
	assert.Equal(t, []Expiry{{OrderID: 1, Episode: 1}}, te.Tick())

	assert.True(t, te.OnOrderLeftPreparing(1))
	_, ok := te.Remaining(1)
	assert.False(t, ok)

	te.OnOrderEnteredPreparing(1, 1, time.Time{})
	remaining, _ := te.Remaining(1)
	assert.Equal(t, 60, remaining)
	clock.Advance(60 * time.Second)
	assert.Equal(t, []Expiry{{OrderID: 1, Episode: 2}}, te.Tick())
}

func TestTimerEngine_AnchorInThePast(t *testing.T) {
	clock := newFakeClock()
	te := NewTimerEngine(clock.Now)

	te.OnOrderEnteredPreparing(1, 5, clock.Now().Add(-2*time.Minute))
	remaining, _ := te.Remaining(1)
	assert.Equal(t, 180, remaining)

	// already overdue at creation: shown as 0, no expiry edge
	te.OnOrderEnteredPreparing(2, 1, clock.Now().Add(-10*time.Minute))
	remaining, _ = te.Remaining(2)
	assert.Equal(t, 0, remaining)
	clock.Advance(time.Second)
	assert.Empty(t, te.Tick())
}

func TestTimerEngine_IgnoresMissingEstimate(t *testing.T) {
	te := NewTimerEngine(nil)
	assert.False(t, te.OnOrderEnteredPreparing(1, 0, time.Time{}))
	assert.Equal(t, 0, te.Active())
	assert.False(t, te.OnOrderLeftPreparing(1))
}
