package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryStartOccupiedSlotRejected(t *testing.T) {
	m := NewManager("auction", ScopeGuild, newFakeClock())

	first, err := m.TryStart("g1", "c1", "alice", "Alice", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = m.TryStart("g1", "c2", "bob", "Bob", nil)
	require.Error(t, err)
	conflict, ok := err.(*ConflictError)
	require.True(t, ok)
	assert.Equal(t, "c1", conflict.ChannelID)
	assert.Equal(t, "alice", conflict.OwnerID)
	assert.Contains(t, conflict.Error(), "<#c1>")
	assert.Contains(t, conflict.Error(), "<@alice>")

	// A different guild has its own slot.
	_, err = m.TryStart("g2", "c9", "carol", "Carol", nil)
	assert.NoError(t, err)
}

func TestGlobalScopeHasOneSlot(t *testing.T) {
	m := NewManager("lotto", ScopeGlobal, newFakeClock())

	_, err := m.TryStart("g1", "c1", "alice", "Alice", nil)
	require.NoError(t, err)

	_, err = m.TryStart("g2", "c2", "bob", "Bob", nil)
	require.Error(t, err)

	// Any guild id resolves to the same session.
	assert.NotNil(t, m.Get("g2"))
}

func TestTryStartIsAtomicUnderConcurrency(t *testing.T) {
	m := NewManager("bingo", ScopeGuild, SystemClock())

	const attempts = 64
	var wg sync.WaitGroup
	wins := make(chan string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := m.TryStart("g1", "c1", "user", "User", n); err == nil {
				wins <- "win"
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewManager("poll", ScopeGuild, newFakeClock())

	_, err := m.TryStart("g1", "c1", "alice", "Alice", nil)
	require.NoError(t, err)

	m.Stop("g1")
	assert.False(t, m.Active("g1"))
	assert.NotPanics(t, func() { m.Stop("g1") })
	assert.NotPanics(t, func() { m.Stop("never-started") })

	// The slot is reusable after stop.
	_, err = m.TryStart("g1", "c1", "bob", "Bob", nil)
	assert.NoError(t, err)
}

func TestStopCancelsPendingTimers(t *testing.T) {
	clock := newFakeClock()
	m := NewManager("giveaway", ScopeGuild, clock)

	s, err := m.TryStart("g1", "c1", "alice", "Alice", nil)
	require.NoError(t, err)

	fired := false
	s.Timers.AfterFunc(10*time.Minute, func() { fired = true })

	clock.Advance(7 * time.Minute)
	m.Stop("g1")
	clock.Advance(10 * time.Minute)

	assert.False(t, fired, "timer fired after session stop")
}

func TestStoppedSessionRefusesNewTimers(t *testing.T) {
	clock := newFakeClock()
	m := NewManager("giveaway", ScopeGuild, clock)

	s, err := m.TryStart("g1", "c1", "alice", "Alice", nil)
	require.NoError(t, err)
	m.Stop("g1")

	fired := false
	s.Timers.AfterFunc(time.Second, func() { fired = true })
	clock.Advance(time.Minute)
	assert.False(t, fired)
}

func TestCanManage(t *testing.T) {
	m := NewManager("auction", ScopeGuild, newFakeClock())
	s, err := m.TryStart("g1", "c1", "alice", "Alice", nil)
	require.NoError(t, err)

	assert.True(t, CanManage(s, "alice", false), "owner without admin")
	assert.True(t, CanManage(s, "mod", true), "non-owner admin")
	assert.False(t, CanManage(s, "randy", false))
	assert.False(t, CanManage(nil, "alice", true))
}

func TestRequireSameChannel(t *testing.T) {
	m := NewManager("auction", ScopeGuild, newFakeClock())
	s, err := m.TryStart("g1", "c1", "alice", "Alice", nil)
	require.NoError(t, err)

	assert.NoError(t, RequireSameChannel(s, "c1"))
	err = RequireSameChannel(s, "c2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "<#c1>")
}
