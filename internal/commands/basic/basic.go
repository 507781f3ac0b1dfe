// Package basic holds the always-on commands every guild gets regardless of
// exposure policy: help, ping, about.
package basic

import (
	"fmt"
	"sort"
	"strings"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/version"

	"github.com/bwmarrin/discordgo"
)

// Register adds the basic commands.
func Register(reg *registry.Registry) {
	reg.Register("help", func(ctx *registry.MessageContext) error {
		return handleHelp(ctx, reg)
	}, "Show available commands, or `help <command>` for details", registry.TextOptions{Category: "General"})

	reg.Register("ping", func(ctx *registry.MessageContext) error {
		latency := ctx.Session.HeartbeatLatency().Milliseconds()
		return discord.Message(ctx.Session, ctx.Actor.ChannelID, fmt.Sprintf("Pong! Gateway latency %dms.", latency))
	}, "Check whether the bot is alive", registry.TextOptions{Category: "General"})

	reg.Register("about", func(ctx *registry.MessageContext) error {
		_, err := discord.MessageEmbed(ctx.Session, ctx.Actor.ChannelID, &discordgo.MessageEmbed{
			Title:       version.AppName,
			Description: "Community companion for the Pokémon Insurgence server: games, giveaways, trade lists, and lookups.",
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Version", Value: version.Version, Inline: true},
			},
		})
		return err
	}, "About this bot", registry.TextOptions{Category: "General", HelpTier: 1})
}

func handleHelp(ctx *registry.MessageContext, reg *registry.Registry) error {
	topic := strings.ToLower(strings.TrimSpace(ctx.Rest))
	if topic != "" && topic != "all" {
		embed, ok := helpTopic(reg, ctx.Actor, topic)
		if !ok {
			return discord.Message(ctx.Session, ctx.Actor.ChannelID,
				fmt.Sprintf("I don't know a command called `%s`.", topic))
		}
		_, err := discord.MessageEmbed(ctx.Session, ctx.Actor.ChannelID, embed)
		return err
	}

	_, err := discord.MessageEmbed(ctx.Session, ctx.Actor.ChannelID,
		helpOverview(reg, ctx.Actor, topic == "all"))
	return err
}

// helpOverview lists visible commands grouped by category. Hidden commands
// never show; admin commands show only to admins; tiered commands show only
// under "help all".
func helpOverview(reg *registry.Registry, actor registry.ActorContext, showAll bool) *discordgo.MessageEmbed {
	byCategory := make(map[string][]registry.CommandInfo)
	for _, c := range reg.Commands() {
		if c.Hidden {
			continue
		}
		if c.Admin && !actor.IsGuildAdmin {
			continue
		}
		if c.HelpTier > 0 && !showAll {
			continue
		}
		cat := c.Category
		if cat == "" {
			cat = "Other"
		}
		byCategory[cat] = append(byCategory[cat], c)
	}

	cats := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	embed := &discordgo.MessageEmbed{Title: "Commands"}
	for _, cat := range cats {
		names := make([]string, 0, len(byCategory[cat]))
		for _, c := range byCategory[cat] {
			names = append(names, "`"+c.Name+"`")
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  cat,
			Value: strings.Join(names, " "),
		})
	}
	if !showAll {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "help all shows everything; help <command> explains one"}
	}
	return embed
}

// helpTopic builds the detail embed for one command, false when the command
// is unknown or not visible to this actor.
func helpTopic(reg *registry.Registry, actor registry.ActorContext, name string) (*discordgo.MessageEmbed, bool) {
	for _, c := range reg.Commands() {
		if !matchesName(c, name) {
			continue
		}
		if c.Hidden || (c.Admin && !actor.IsGuildAdmin) {
			break
		}
		text := c.Help
		if text == "" {
			text = "No description."
		}
		if len(c.Aliases) > 0 {
			text += "\nAliases: `" + strings.Join(c.Aliases, "` `") + "`"
		}
		return &discordgo.MessageEmbed{Title: c.Name, Description: text}, true
	}
	return nil, false
}

func matchesName(c registry.CommandInfo, name string) bool {
	if c.Name == name {
		return true
	}
	for _, a := range c.Aliases {
		if a == name {
			return true
		}
	}
	return false
}
