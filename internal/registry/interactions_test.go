package registry

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func componentEvent(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		Data: discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func slashEvent(name string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{Name: name},
	}}
}

func TestComponentLongestPrefixWins(t *testing.T) {
	r := New(nil)
	var hit string
	r.RegisterComponent("foo:", func(ctx *InteractionContext) error {
		hit = "general"
		return nil
	})
	r.RegisterComponent("foo:bar:", func(ctx *InteractionContext) error {
		hit = "specific:" + ctx.CustomID
		return nil
	})

	out := r.DispatchInteraction(nil, componentEvent("foo:bar:xyz"), actor("g", "c", "u", false))
	assert.Equal(t, ReasonHandled, out.Reason)
	assert.Equal(t, "specific:foo:bar:xyz", hit)

	out = r.DispatchInteraction(nil, componentEvent("foo:other"), actor("g", "c", "u", false))
	assert.Equal(t, ReasonHandled, out.Reason)
	assert.Equal(t, "general", hit)
}

func TestComponentRegistrationOrderDoesNotMatter(t *testing.T) {
	r := New(nil)
	var hit string
	// Most specific registered first this time.
	r.RegisterComponent("foo:bar:", func(*InteractionContext) error { hit = "specific"; return nil })
	r.RegisterComponent("foo:", func(*InteractionContext) error { hit = "general"; return nil })

	r.DispatchInteraction(nil, componentEvent("foo:bar:1"), actor("g", "c", "u", false))
	assert.Equal(t, "specific", hit)
}

func TestDuplicateComponentPrefixPanics(t *testing.T) {
	r := New(nil)
	r.RegisterComponent("dup:", func(*InteractionContext) error { return nil })
	assert.Panics(t, func() {
		r.RegisterComponent("dup:", func(*InteractionContext) error { return nil })
	})
}

func TestUnroutedComponentIsNegativeOutcome(t *testing.T) {
	r := New(nil)
	out := r.DispatchInteraction(nil, componentEvent("mystery:1"), actor("g", "c", "u", false))
	assert.Equal(t, ReasonUnknownCommand, out.Reason)
}

func TestSlashAdminRecheckedAtInvocation(t *testing.T) {
	r := New(nil)
	calls := 0
	r.RegisterSlash(&discordgo.ApplicationCommand{Name: "schedule"},
		func(*InteractionContext) error { calls++; return nil },
		SlashOptions{Admin: true})

	out := r.DispatchInteraction(nil, slashEvent("schedule"), actor("g", "c", "u", false))
	assert.Equal(t, ReasonAdminOnly, out.Reason)
	assert.Equal(t, 0, calls)

	out = r.DispatchInteraction(nil, slashEvent("schedule"), actor("g", "c", "u", true))
	assert.Equal(t, ReasonHandled, out.Reason)
	assert.Equal(t, 1, calls)
}

func TestSlashHandlerErrorContained(t *testing.T) {
	r := New(nil)
	r.RegisterSlash(&discordgo.ApplicationCommand{Name: "wiki"},
		func(*InteractionContext) error { panic("lookup exploded") },
		SlashOptions{})

	var out Outcome
	assert.NotPanics(t, func() {
		out = r.DispatchInteraction(nil, slashEvent("wiki"), actor("g", "c", "u", false))
	})
	assert.Equal(t, ReasonHandlerError, out.Reason)
	require.Error(t, out.Err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("question")
	require.NoError(t, err)
	assert.Equal(t, ModeQuestion, m)

	_, err = ParseMode("loud")
	assert.Error(t, err)
}
