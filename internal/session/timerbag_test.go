package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBagAfterFuncFires(t *testing.T) {
	clock := newFakeClock()
	bag := NewBag(clock)

	fired := 0
	bag.AfterFunc(5*time.Second, func() { fired++ })

	clock.Advance(4 * time.Second)
	assert.Equal(t, 0, fired)
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, bag.Len(), "fired timer should unregister itself")
}

func TestBagHandleStop(t *testing.T) {
	clock := newFakeClock()
	bag := NewBag(clock)

	fired := false
	h := bag.AfterFunc(5*time.Second, func() { fired = true })
	h.Stop()
	h.Stop() // second stop is harmless

	clock.Advance(time.Minute)
	assert.False(t, fired)
}

func TestBagEveryRepeatsUntilCleared(t *testing.T) {
	clock := newFakeClock()
	bag := NewBag(clock)

	ticks := 0
	h := bag.Every(10*time.Second, func() { ticks++ })

	clock.Advance(35 * time.Second)
	assert.Equal(t, 3, ticks)

	h.Stop()
	clock.Advance(time.Minute)
	assert.Equal(t, 3, ticks, "stopped interval kept firing")
}

func TestClearAllLeavesBagUsable(t *testing.T) {
	clock := newFakeClock()
	bag := NewBag(clock)

	roundEnded := false
	bag.AfterFunc(30*time.Second, func() { roundEnded = true })
	bag.Every(10*time.Second, func() { roundEnded = true })

	// Advancing a round kills its timers without ending the session.
	bag.ClearAll()
	clock.Advance(time.Minute)
	assert.False(t, roundEnded)

	nextRound := false
	bag.AfterFunc(5*time.Second, func() { nextRound = true })
	clock.Advance(5 * time.Second)
	assert.True(t, nextRound)
}
