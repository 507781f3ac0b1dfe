package basic

import (
	"strings"
	"testing"

	"spectreon/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedRegistry() *registry.Registry {
	reg := registry.New(nil)
	ok := func(*registry.MessageContext) error { return nil }

	reg.Register("ping", ok, "Check whether the bot is alive", registry.TextOptions{Category: "General"})
	reg.Register("wiki", ok, "Search the wiki", registry.TextOptions{Category: "Info", Aliases: []string{"w"}})
	reg.Register("cmd-nuke", ok, "Admin-only cleanup", registry.TextOptions{Category: "Admin", Admin: true})
	reg.Register("debug-dump", ok, "", registry.TextOptions{Hidden: true})
	reg.Register("bid", ok, "Place a bid", registry.TextOptions{Category: "Games", HelpTier: 1})
	reg.Register("stray", ok, "No category", registry.TextOptions{})
	return reg
}

func fieldFor(t *testing.T, reg *registry.Registry, actor registry.ActorContext, showAll bool, category string) (string, bool) {
	t.Helper()
	embed := helpOverview(reg, actor, showAll)
	for _, f := range embed.Fields {
		if f.Name == category {
			return f.Value, true
		}
	}
	return "", false
}

func TestOverviewHidesHiddenAndAdminFromMembers(t *testing.T) {
	reg := populatedRegistry()
	member := registry.ActorContext{UserID: "u1"}

	embed := helpOverview(reg, member, false)
	var all []string
	for _, f := range embed.Fields {
		all = append(all, f.Value)
	}
	joined := strings.Join(all, " ")
	assert.Contains(t, joined, "`ping`")
	assert.Contains(t, joined, "`wiki`")
	assert.NotContains(t, joined, "debug-dump")
	assert.NotContains(t, joined, "cmd-nuke")
	assert.NotNil(t, embed.Footer)
}

func TestOverviewShowsAdminCommandsToAdmins(t *testing.T) {
	reg := populatedRegistry()
	admin := registry.ActorContext{UserID: "a1", IsGuildAdmin: true}

	value, found := fieldFor(t, reg, admin, false, "Admin")
	require.True(t, found)
	assert.Contains(t, value, "`cmd-nuke`")

	_, found = fieldFor(t, reg, registry.ActorContext{UserID: "u1"}, false, "Admin")
	assert.False(t, found, "members must not see an Admin section")
}

func TestOverviewTiersBehindHelpAll(t *testing.T) {
	reg := populatedRegistry()
	member := registry.ActorContext{UserID: "u1"}

	_, found := fieldFor(t, reg, member, false, "Games")
	assert.False(t, found, "tiered commands stay out of plain help")

	value, found := fieldFor(t, reg, member, true, "Games")
	require.True(t, found)
	assert.Contains(t, value, "`bid`")

	embed := helpOverview(reg, member, true)
	assert.Nil(t, embed.Footer, "help all has no footer nudge")
}

func TestOverviewUncategorizedFallsBackToOther(t *testing.T) {
	reg := populatedRegistry()

	value, found := fieldFor(t, reg, registry.ActorContext{UserID: "u1"}, false, "Other")
	require.True(t, found)
	assert.Contains(t, value, "`stray`")
}

func TestTopicDetailAndAliases(t *testing.T) {
	reg := populatedRegistry()
	member := registry.ActorContext{UserID: "u1"}

	embed, ok := helpTopic(reg, member, "wiki")
	require.True(t, ok)
	assert.Equal(t, "wiki", embed.Title)
	assert.Contains(t, embed.Description, "Search the wiki")
	assert.Contains(t, embed.Description, "Aliases: `w`")

	// By alias too.
	embed, ok = helpTopic(reg, member, "w")
	require.True(t, ok)
	assert.Equal(t, "wiki", embed.Title)
}

func TestTopicRespectsVisibility(t *testing.T) {
	reg := populatedRegistry()
	member := registry.ActorContext{UserID: "u1"}
	admin := registry.ActorContext{UserID: "a1", IsGuildAdmin: true}

	_, ok := helpTopic(reg, member, "cmd-nuke")
	assert.False(t, ok, "admin detail is invisible to members")

	embed, ok := helpTopic(reg, admin, "cmd-nuke")
	require.True(t, ok)
	assert.Contains(t, embed.Description, "Admin-only cleanup")

	_, ok = helpTopic(reg, member, "debug-dump")
	assert.False(t, ok)

	_, ok = helpTopic(reg, member, "nope")
	assert.False(t, ok)
}
