package closestroll

import (
	"testing"
	"time"

	"spectreon/internal/registry"
	"spectreon/internal/session/sessiontest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinnerPicksClosestRoll(t *testing.T) {
	st := &state{target: 50, rolls: make(map[string]int), names: make(map[string]string)}
	st.addRoll("u1", "u1", 10)
	st.addRoll("u2", "u2", 47)
	st.addRoll("u3", "u3", 90)

	id, roll, ok := st.winner()
	require.True(t, ok)
	assert.Equal(t, "u2", id)
	assert.Equal(t, 47, roll)
}

func TestWinnerTieBreaksTowardEarlierRoll(t *testing.T) {
	st := &state{target: 50, rolls: make(map[string]int), names: make(map[string]string)}
	st.addRoll("early", "early", 48)
	st.addRoll("late", "late", 52)

	id, _, ok := st.winner()
	require.True(t, ok)
	assert.Equal(t, "early", id)
}

func TestOneRollPerUser(t *testing.T) {
	st := &state{target: 50, rolls: make(map[string]int), names: make(map[string]string)}
	assert.True(t, st.addRoll("u1", "u1", 30))
	assert.False(t, st.addRoll("u1", "u1", 70))
	assert.Equal(t, 30, st.rolls["u1"])
}

func TestRoundLifecycle(t *testing.T) {
	clock := sessiontest.NewClock()
	f := New(registry.New(nil), clock)
	var lines []string
	f.say = func(_, text string) { lines = append(lines, text) }

	a := registry.ActorContext{GuildID: "g1", ChannelID: "c1", UserID: "host", Username: "host"}
	require.NoError(t, f.handleStart(&registry.MessageContext{Actor: a, Cmd: "!closestroll"}))
	require.True(t, f.mgr.Active("g1"))

	b := a
	b.UserID = "player"
	require.NoError(t, f.handleRoll(&registry.MessageContext{Actor: b, Cmd: "!roll"}))

	clock.Advance(defaultWindow)
	assert.False(t, f.mgr.Active("g1"))
	assert.Contains(t, lines[len(lines)-1], "player")

	// A fresh round can start once the old one finished.
	require.NoError(t, f.handleStart(&registry.MessageContext{Actor: a, Cmd: "!closestroll"}))
	assert.True(t, f.mgr.Active("g1"))
}

func TestEmptyRoundAnnouncesNoWinner(t *testing.T) {
	clock := sessiontest.NewClock()
	f := New(registry.New(nil), clock)
	var lines []string
	f.say = func(_, text string) { lines = append(lines, text) }

	a := registry.ActorContext{GuildID: "g1", ChannelID: "c1", UserID: "host", Username: "host"}
	require.NoError(t, f.handleStart(&registry.MessageContext{Actor: a, Rest: "2m", Cmd: "!closestroll"}))

	clock.Advance(2 * time.Minute)
	assert.Contains(t, lines[len(lines)-1], "Nobody rolled")
	assert.False(t, f.mgr.Active("g1"))
}
