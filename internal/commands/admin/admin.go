// Package admin is the moderator surface for the exposure policy: which
// commands a guild exposes, on which prefix, and in which channels.
package admin

import (
	"fmt"
	"sort"
	"strings"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Register adds /cmd-expose, /cmd-channels, and /cmd-status.
func Register(reg *registry.Registry, store *settings.Store) {
	reg.RegisterSlash(&discordgo.ApplicationCommand{
		Name:        "cmd-expose",
		Description: "Set how a command is exposed in this server",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         "command",
				Description:  "Which command",
				Required:     true,
				Autocomplete: true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "mode",
				Description: "Exposure mode",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "! (bang)", Value: "bang"},
					{Name: "? (question)", Value: "question"},
					{Name: "off", Value: "off"},
					{Name: "default", Value: "default"},
				},
			},
		},
	}, func(ic *registry.InteractionContext) error {
		return handleExpose(ic, reg, store)
	}, registry.SlashOptions{Admin: true, Autocomplete: commandAutocomplete(reg)})

	reg.RegisterSlash(&discordgo.ApplicationCommand{
		Name:        "cmd-channels",
		Description: "Restrict where a command may be used",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         "command",
				Description:  "Which command",
				Required:     true,
				Autocomplete: true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "action",
				Description: "What to change",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "allow channel", Value: "allow"},
					{Name: "deny channel", Value: "deny"},
					{Name: "remove channel from lists", Value: "remove"},
					{Name: "clear all rules", Value: "clear"},
					{Name: "silent denials", Value: "silent"},
					{Name: "audible denials", Value: "audible"},
					{Name: "set denial text", Value: "notify"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "Channel for allow/deny/remove",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "text",
				Description: "Custom denial text for the notify action",
			},
		},
	}, func(ic *registry.InteractionContext) error {
		return handleChannels(ic, reg, store)
	}, registry.SlashOptions{Admin: true, Autocomplete: commandAutocomplete(reg)})

	reg.RegisterSlash(&discordgo.ApplicationCommand{
		Name:        "cmd-status",
		Description: "Show every command's exposure in this server",
	}, func(ic *registry.InteractionContext) error {
		return handleStatus(ic, reg, store)
	}, registry.SlashOptions{Admin: true})
}

// logicalIDs returns the distinct exposure-controlled command ids, sorted.
func logicalIDs(reg *registry.Registry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range reg.Commands() {
		if c.LogicalID == "" || seen[c.LogicalID] {
			continue
		}
		seen[c.LogicalID] = true
		out = append(out, c.LogicalID)
	}
	sort.Strings(out)
	return out
}

func commandAutocomplete(reg *registry.Registry) registry.AutocompleteHandler {
	return func(ic *registry.InteractionContext) ([]*discordgo.ApplicationCommandOptionChoice, error) {
		typed := focusedString(ic.Event)
		ids := logicalIDs(reg)
		if typed != "" {
			ranked := fuzzy.RankFindFold(typed, ids)
			sort.Sort(ranked)
			ids = ids[:0]
			for _, r := range ranked {
				ids = append(ids, r.Target)
			}
		}
		choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(ids))
		for _, id := range ids {
			if len(choices) == 25 {
				break
			}
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: id, Value: id})
		}
		return choices, nil
	}
}

func focusedString(e *discordgo.InteractionCreate) string {
	for _, o := range e.ApplicationCommandData().Options {
		if o.Focused {
			return o.StringValue()
		}
	}
	return ""
}

func resolveLogicalID(reg *registry.Registry, name string) (string, bool) {
	id, ok := reg.LogicalID(name)
	if !ok {
		return "", false
	}
	// Plain commands resolve to themselves but carry no exposure state.
	for _, known := range logicalIDs(reg) {
		if known == id {
			return id, true
		}
	}
	return "", false
}

func handleExpose(ic *registry.InteractionContext, reg *registry.Registry, store *settings.Store) error {
	name := strings.TrimSpace(discord.OptionString(ic.Event, "command"))
	id, ok := resolveLogicalID(reg, name)
	if !ok {
		discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("`%s` is not an exposure-controlled command.", name))
		return nil
	}

	raw := discord.OptionString(ic.Event, "mode")
	if raw == "default" {
		if err := store.ClearExposure(ic.Actor.GuildID, id); err != nil {
			return fmt.Errorf("failed to clear exposure: %w", err)
		}
		discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("`%s` now follows the global default.", id))
		return nil
	}

	mode, err := registry.ParseMode(raw)
	if err != nil {
		discord.RespondEphemeral(ic.Session, ic.Event, "Unknown mode. Use bang, question, off, or default.")
		return nil
	}
	if err := store.SetExposure(ic.Actor.GuildID, id, mode); err != nil {
		return fmt.Errorf("failed to save exposure: %w", err)
	}

	switch mode {
	case registry.ModeOff:
		discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("`%s` is now disabled in this server.", id))
	default:
		discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("`%s` now answers to `%c%s`.", id, mode.Prefix(), id))
	}
	return nil
}

func handleChannels(ic *registry.InteractionContext, reg *registry.Registry, store *settings.Store) error {
	name := strings.TrimSpace(discord.OptionString(ic.Event, "command"))
	id, ok := resolveLogicalID(reg, name)
	if !ok {
		discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("`%s` is not an exposure-controlled command.", name))
		return nil
	}

	action := discord.OptionString(ic.Event, "action")
	var channelID string
	if o, exists := discord.Options(ic.Event)["channel"]; exists {
		channelID = o.ChannelValue(nil).ID
	}
	if (action == "allow" || action == "deny" || action == "remove") && channelID == "" {
		discord.RespondEphemeral(ic.Session, ic.Event, "That action needs a channel.")
		return nil
	}

	if action == "clear" {
		if err := store.ClearChannelRule(ic.Actor.GuildID, id); err != nil {
			return fmt.Errorf("failed to clear channel rule: %w", err)
		}
		discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("`%s` may now be used in any channel.", id))
		return nil
	}

	rule, _ := store.ChannelRule(ic.Actor.GuildID, id)
	switch action {
	case "allow":
		rule.Allow = appendUnique(rule.Allow, channelID)
		rule.Deny = remove(rule.Deny, channelID)
	case "deny":
		rule.Deny = appendUnique(rule.Deny, channelID)
		rule.Allow = remove(rule.Allow, channelID)
	case "remove":
		rule.Allow = remove(rule.Allow, channelID)
		rule.Deny = remove(rule.Deny, channelID)
	case "silent":
		rule.Silent = true
	case "audible":
		rule.Silent = false
	case "notify":
		rule.NotifyText = discord.OptionString(ic.Event, "text")
	default:
		discord.RespondEphemeral(ic.Session, ic.Event, "Unknown action.")
		return nil
	}

	if err := store.SetChannelRule(ic.Actor.GuildID, id, rule); err != nil {
		return fmt.Errorf("failed to save channel rule: %w", err)
	}
	discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("Updated channel rules for `%s`: %s", id, describeRule(rule)))
	return nil
}

func handleStatus(ic *registry.InteractionContext, reg *registry.Registry, store *settings.Store) error {
	var b strings.Builder
	for _, id := range logicalIDs(reg) {
		d := reg.Policy().Decide(ic.Actor.GuildID, id, "")
		line := fmt.Sprintf("`%s`: %s", id, d.Mode)
		if rule, ok := store.ChannelRule(ic.Actor.GuildID, id); ok {
			line += ", " + describeRule(rule)
		}
		b.WriteString(line + "\n")
	}
	if b.Len() == 0 {
		discord.RespondEphemeral(ic.Session, ic.Event, "No exposure-controlled commands are registered.")
		return nil
	}
	return discord.RespondEmbedEphemeral(ic.Session, ic.Event, &discordgo.MessageEmbed{
		Title:       "Command exposure",
		Description: b.String(),
	})
}

func describeRule(r registry.ChannelRule) string {
	var parts []string
	if len(r.Allow) > 0 {
		parts = append(parts, "allowed in "+mentionList(r.Allow))
	}
	if len(r.Deny) > 0 {
		parts = append(parts, "denied in "+mentionList(r.Deny))
	}
	if r.Silent {
		parts = append(parts, "silent denials")
	}
	if r.NotifyText != "" {
		parts = append(parts, "custom denial text")
	}
	if len(parts) == 0 {
		return "no channel restrictions"
	}
	return strings.Join(parts, ", ")
}

func mentionList(ids []string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "<#" + id + ">"
	}
	return strings.Join(out, " ")
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
