package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapPolicySource is a PolicySource over literals.
type mapPolicySource struct {
	overrides map[string]Mode        // "guild/logical" -> mode
	channels  map[string]ChannelRule // "guild/logical" -> rule
}

func (s mapPolicySource) ExposureOverride(guildID, logicalID string) (Mode, bool) {
	m, ok := s.overrides[guildID+"/"+logicalID]
	return m, ok
}

func (s mapPolicySource) ChannelRule(guildID, logicalID string) (ChannelRule, bool) {
	r, ok := s.channels[guildID+"/"+logicalID]
	return r, ok
}

func actor(guild, channel, user string, admin bool) ActorContext {
	return ActorContext{GuildID: guild, ChannelID: channel, UserID: user, IsGuildAdmin: admin}
}

func TestPlainCommandAlwaysActive(t *testing.T) {
	r := New(nil)
	var got string
	r.Register("ping", func(ctx *MessageContext) error {
		got = ctx.Cmd
		return nil
	}, "pong", TextOptions{})

	out := r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "!ping"})
	assert.Equal(t, ReasonHandled, out.Reason)
	assert.Equal(t, "!ping", got)

	// Plain commands skip exposure entirely, so both prefixes work.
	out = r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "?ping"})
	assert.Equal(t, ReasonHandled, out.Reason)
}

func TestAliasesShareHandler(t *testing.T) {
	r := New(nil)
	calls := 0
	r.RegisterExposed(ExposedCommand{
		LogicalID: "ft",
		Name:      "ft",
		Handler:   func(ctx *MessageContext) error { calls++; return nil },
		Opts:      TextOptions{Aliases: []string{"ftadd", "ftdel"}},
	})

	for _, msg := range []string{"!ft", "!ftadd shiny riolu", "!ftdel 3"} {
		out := r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: msg})
		assert.Equal(t, ReasonHandled, out.Reason, msg)
		assert.Equal(t, "ft", out.LogicalID, msg)
	}
	assert.Equal(t, 3, calls)

	id, ok := r.LogicalID("ftdel")
	require.True(t, ok)
	assert.Equal(t, "ft", id)
}

func TestDuplicateNamePanics(t *testing.T) {
	r := New(nil)
	r.Register("bingo", func(*MessageContext) error { return nil }, "", TextOptions{})
	assert.Panics(t, func() {
		r.Register("bingo", func(*MessageContext) error { return nil }, "", TextOptions{})
	})
}

func TestUnknownAndNoPrefix(t *testing.T) {
	r := New(nil)
	out := r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "!nope"})
	assert.Equal(t, ReasonUnknownCommand, out.Reason)

	out = r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "hello there"})
	assert.Equal(t, ReasonNoPrefix, out.Reason)
}

func TestPrefixGating(t *testing.T) {
	src := mapPolicySource{overrides: map[string]Mode{
		"g1/roll": ModeQuestion,
		"g2/roll": ModeOff,
	}}
	r := New(NewExposurePolicy(map[string]Mode{"roll": ModeBang}, src))
	calls := 0
	r.RegisterExposed(ExposedCommand{
		LogicalID: "roll",
		Name:      "roll",
		Handler:   func(*MessageContext) error { calls++; return nil },
	})

	// g1 resolves to question-only.
	out := r.DispatchMessage(Inbound{Actor: actor("g1", "c", "u", false), Content: "!roll"})
	assert.Equal(t, ReasonWrongPrefix, out.Reason)
	out = r.DispatchMessage(Inbound{Actor: actor("g1", "c", "u", false), Content: "?roll"})
	assert.Equal(t, ReasonHandled, out.Reason)

	// g2 is off: neither prefix fires.
	for _, msg := range []string{"!roll", "?roll"} {
		out = r.DispatchMessage(Inbound{Actor: actor("g2", "c", "u", false), Content: msg})
		assert.Equal(t, ReasonExposureOff, out.Reason, msg)
	}

	// A guild with no override uses the global default (bang).
	out = r.DispatchMessage(Inbound{Actor: actor("g3", "c", "u", false), Content: "?roll"})
	assert.Equal(t, ReasonWrongPrefix, out.Reason)
	out = r.DispatchMessage(Inbound{Actor: actor("g3", "c", "u", false), Content: "!roll"})
	assert.Equal(t, ReasonHandled, out.Reason)

	assert.Equal(t, 3, calls)
}

func TestChannelPolicyBeatsGuildOverride(t *testing.T) {
	src := mapPolicySource{
		overrides: map[string]Mode{"g1/bingo": ModeBang},
		channels: map[string]ChannelRule{
			"g1/bingo": {Deny: []string{"spam"}, NotifyText: "Take the games to #arcade."},
		},
	}
	r := New(NewExposurePolicy(nil, src))
	calls := 0
	r.RegisterExposed(ExposedCommand{
		LogicalID: "bingo",
		Name:      "bingo",
		Handler:   func(*MessageContext) error { calls++; return nil },
	})

	// Denied channel loses even though the guild override enables the command.
	out := r.DispatchMessage(Inbound{Actor: actor("g1", "spam", "u", false), Content: "!bingo"})
	assert.Equal(t, ReasonChannelBlocked, out.Reason)
	assert.Equal(t, "Take the games to #arcade.", out.Notify)
	assert.Equal(t, 0, calls)

	// Other channels of the same guild still work.
	out = r.DispatchMessage(Inbound{Actor: actor("g1", "arcade", "u", false), Content: "!bingo"})
	assert.Equal(t, ReasonHandled, out.Reason)
	assert.Equal(t, 1, calls)
}

func TestSilentDenyCarriesNoNotify(t *testing.T) {
	src := mapPolicySource{channels: map[string]ChannelRule{
		"g1/bingo": {Allow: []string{"arcade"}, Silent: true},
	}}
	r := New(NewExposurePolicy(nil, src))
	r.RegisterExposed(ExposedCommand{
		LogicalID: "bingo",
		Name:      "bingo",
		Handler:   func(*MessageContext) error { return nil },
	})

	out := r.DispatchMessage(Inbound{Actor: actor("g1", "general", "u", false), Content: "!bingo"})
	assert.Equal(t, ReasonChannelBlocked, out.Reason)
	assert.Empty(t, out.Notify)
}

func TestAdminGateOnTextCommands(t *testing.T) {
	r := New(nil)
	calls := 0
	r.Register("shutdown", func(*MessageContext) error { calls++; return nil }, "", TextOptions{Admin: true})

	out := r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "!shutdown"})
	assert.Equal(t, ReasonAdminOnly, out.Reason)
	assert.NotEmpty(t, out.Notify)
	assert.Equal(t, 0, calls)

	out = r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", true), Content: "!shutdown"})
	assert.Equal(t, ReasonHandled, out.Reason)
}

func TestDryRunSkipsHandlerAndListeners(t *testing.T) {
	src := mapPolicySource{overrides: map[string]Mode{"g2/auction": ModeOff}}
	r := New(NewExposurePolicy(nil, src))
	handled, observed := 0, 0
	r.RegisterListener(func(*MessageContext) { observed++ })
	r.RegisterExposed(ExposedCommand{
		LogicalID: "auction",
		Name:      "auction",
		Handler:   func(*MessageContext) error { handled++; return nil },
	})

	out := r.DispatchMessage(Inbound{Actor: actor("g1", "c", "u", false), Content: "!auction start", DryRun: true})
	assert.Equal(t, ReasonAllowed, out.Reason)
	assert.Equal(t, "auction", out.LogicalID)
	assert.Equal(t, "!auction", out.Canonical)

	out = r.DispatchMessage(Inbound{Actor: actor("g2", "c", "u", false), Content: "!auction start", DryRun: true})
	assert.Equal(t, ReasonExposureOff, out.Reason)

	assert.Equal(t, 0, handled)
	assert.Equal(t, 0, observed)
}

func TestListenersRunForEveryRealMessage(t *testing.T) {
	r := New(nil)
	observed := 0
	r.RegisterListener(func(*MessageContext) { observed++ })

	r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "just chatting"})
	r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "!unknown"})
	assert.Equal(t, 2, observed)
}

func TestHandlerErrorsAreContained(t *testing.T) {
	r := New(nil)
	r.Register("boom", func(*MessageContext) error { return errors.New("kaput") }, "", TextOptions{})
	r.Register("panic", func(*MessageContext) error { panic("ouch") }, "", TextOptions{})

	out := r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "!boom"})
	assert.Equal(t, ReasonHandlerError, out.Reason)
	require.Error(t, out.Err)

	assert.NotPanics(t, func() {
		out = r.DispatchMessage(Inbound{Actor: actor("g", "c", "u", false), Content: "!panic"})
	})
	assert.Equal(t, ReasonHandlerError, out.Reason)
	// Internal detail stays out of the user-facing notice.
	assert.NotContains(t, out.Notify, "ouch")
}
