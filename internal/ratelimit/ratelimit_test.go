package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestIntervalFirstCallPasses(t *testing.T) {
	clock := NewManualClock(epoch)
	l := New(time.Second, clock)

	require.NoError(t, l.Wait(context.Background()))
	assert.Empty(t, clock.Sleeps)
}

func TestIntervalPacesBackToBackCalls(t *testing.T) {
	clock := NewManualClock(epoch)
	l := New(DefaultInterval, clock)

	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.Len(t, clock.Sleeps, 3)
	for _, d := range clock.Sleeps {
		assert.InDelta(t, float64(DefaultInterval), float64(d), float64(time.Millisecond))
	}
	assert.InDelta(t, float64(3*DefaultInterval), float64(clock.Total()), float64(3*time.Millisecond))
}

func TestIntervalCreditsElapsedTime(t *testing.T) {
	clock := NewManualClock(epoch)
	l := New(time.Second, clock)

	require.NoError(t, l.Wait(context.Background()))
	clock.Advance(400 * time.Millisecond)
	require.NoError(t, l.Wait(context.Background()))
	require.Len(t, clock.Sleeps, 1)
	assert.InDelta(t, float64(600*time.Millisecond), float64(clock.Sleeps[0]), float64(time.Millisecond))

	clock.Advance(5 * time.Second)
	require.NoError(t, l.Wait(context.Background()))
	assert.Len(t, clock.Sleeps, 1, "idle time covers the next call")
}

func TestIntervalDisabled(t *testing.T) {
	clock := NewManualClock(epoch)
	l := New(0, clock)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Empty(t, clock.Sleeps)
}

func TestIntervalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(time.Second, NewManualClock(epoch))
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestSystemClockSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SystemClock.Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SystemClock.Sleep(context.Background(), 0))
}
