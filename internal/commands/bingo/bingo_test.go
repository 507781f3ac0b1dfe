package bingo

import (
	"testing"

	"spectreon/internal/registry"
	"spectreon/internal/session/sessiontest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	clock *sessiontest.Clock
	f     *Feature
	lines []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{clock: sessiontest.NewClock()}
	e.f = New(registry.New(nil), e.clock)
	e.f.say = func(_, text string) { e.lines = append(e.lines, text) }
	return e
}

func actor(user string, admin bool) registry.ActorContext {
	return registry.ActorContext{
		GuildID:      "g1",
		ChannelID:    "c1",
		UserID:       user,
		Username:     user,
		IsGuildAdmin: admin,
	}
}

func (e *env) run(t *testing.T, a registry.ActorContext, rest string) {
	t.Helper()
	require.NoError(t, e.f.handle(&registry.MessageContext{Actor: a, Rest: rest, Cmd: "!bingo"}))
}

func TestDrawsOnePerInterval(t *testing.T) {
	e := newEnv(t)
	e.run(t, actor("host", false), "start")

	e.clock.Advance(drawInterval)
	e.clock.Advance(drawInterval)
	e.clock.Advance(drawInterval)

	s := e.f.mgr.Get("g1")
	require.NotNil(t, s)
	drawn := s.State.(*state).drawnNumbers()
	require.Len(t, drawn, 3)

	// All distinct, all in range.
	seen := make(map[int]bool)
	for _, n := range drawn {
		assert.False(t, seen[n])
		seen[n] = true
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, poolSize)
	}
}

func TestClaimStopsTheDraws(t *testing.T) {
	e := newEnv(t)
	e.run(t, actor("host", false), "start")
	e.clock.Advance(drawInterval)

	e.run(t, actor("player", false), "claim")
	assert.Contains(t, e.lines[len(e.lines)-1], "BINGO")
	assert.False(t, e.f.mgr.Active("g1"))

	n := len(e.lines)
	e.clock.Advance(10 * drawInterval)
	assert.Len(t, e.lines, n, "no draws after a claim")
}

func TestPoolExhaustionEndsGame(t *testing.T) {
	e := newEnv(t)
	e.run(t, actor("host", false), "start")

	for i := 0; i < poolSize+1; i++ {
		e.clock.Advance(drawInterval)
	}
	assert.False(t, e.f.mgr.Active("g1"))
	assert.Contains(t, e.lines[len(e.lines)-1], "pool is empty")
}

func TestStopGatedToHostOrAdmin(t *testing.T) {
	e := newEnv(t)
	e.run(t, actor("host", false), "start")

	e.run(t, actor("rando", false), "stop")
	assert.True(t, e.f.mgr.Active("g1"))

	e.run(t, actor("host", false), "stop")
	assert.False(t, e.f.mgr.Active("g1"))
}

func TestOneGamePerGuild(t *testing.T) {
	e := newEnv(t)
	e.run(t, actor("host", false), "start")
	e.run(t, actor("other", false), "start")
	assert.Contains(t, e.lines[len(e.lines)-1], "already running")

	// A different guild gets its own slot.
	other := actor("host2", false)
	other.GuildID = "g2"
	other.ChannelID = "c9"
	e.run(t, other, "start")
	assert.True(t, e.f.mgr.Active("g2"))
}

func TestDrawnListsCalledNumbers(t *testing.T) {
	e := newEnv(t)
	e.run(t, actor("host", false), "start")
	e.run(t, actor("player", false), "drawn")
	assert.Contains(t, e.lines[len(e.lines)-1], "No numbers called yet")

	e.clock.Advance(drawInterval)
	e.run(t, actor("player", false), "drawn")
	assert.Contains(t, e.lines[len(e.lines)-1], "Called so far")
}
