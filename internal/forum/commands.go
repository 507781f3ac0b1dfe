package forum

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"spectreon/internal/discord"
	"spectreon/internal/registry"

	"github.com/bwmarrin/discordgo"
)

// Feature wires the forum command family onto a scraper.
type Feature struct {
	scraper *Scraper

	mu  sync.Mutex
	say func(channelID, text string)
}

// RegisterCommands adds the forum command to a registry.
func RegisterCommands(reg *registry.Registry, scraper *Scraper) *Feature {
	f := &Feature{scraper: scraper}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "forum",
		Name:      "forum",
		Handler:   f.handle,
		Help:      "Forum threads: `forum` lists recent, `forum watch`/`unwatch` (admin) posts new ones here",
		Opts:      registry.TextOptions{Category: "Info"},
	})
	return f
}

func (f *Feature) bindSay(s *discordgo.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.say == nil && s != nil {
		f.say = func(channelID, text string) { _ = discord.Message(s, channelID, text) }
	}
}

func (f *Feature) announce(channelID, text string) {
	f.mu.Lock()
	say := f.say
	f.mu.Unlock()
	if say != nil {
		say(channelID, text)
	}
}

func (f *Feature) reply(ctx *registry.MessageContext, text string) error {
	f.bindSay(ctx.Session)
	f.announce(ctx.Actor.ChannelID, text)
	return nil
}

func watchName(guildID string) string { return "forum-watch:" + guildID }

func (f *Feature) handle(ctx *registry.MessageContext) error {
	f.bindSay(ctx.Session)

	switch strings.ToLower(strings.TrimSpace(ctx.Rest)) {
	case "":
		return f.latest(ctx)
	case "watch":
		return f.watch(ctx)
	case "unwatch":
		return f.unwatch(ctx)
	case "status":
		return f.status(ctx)
	default:
		return f.reply(ctx, "Try `forum`, `forum watch`, `forum unwatch`, or `forum status`.")
	}
}

func (f *Feature) latest(ctx *registry.MessageContext) error {
	bctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	threads, err := f.scraper.Latest(bctx)
	if err != nil {
		return fmt.Errorf("forum lookup: %w", err)
	}
	if len(threads) == 0 {
		return f.reply(ctx, "The forum front page is empty. Suspicious.")
	}

	const show = 5
	var b strings.Builder
	b.WriteString("Recent forum threads:\n")
	for i, th := range threads {
		if i == show {
			break
		}
		fmt.Fprintf(&b, "• [%s](<%s>) by %s\n", th.Title, th.URL, th.Author)
	}
	return f.reply(ctx, b.String())
}

func (f *Feature) watch(ctx *registry.MessageContext) error {
	if !ctx.Actor.IsGuildAdmin {
		return f.reply(ctx, "Only a server admin can start a forum watch.")
	}

	channelID := ctx.Actor.ChannelID
	err := f.scraper.Watch(watchName(ctx.Actor.GuildID), func(th Thread) {
		f.announce(channelID, fmt.Sprintf("📰 New forum thread: [%s](<%s>) by %s", th.Title, th.URL, th.Author))
	})
	if err != nil {
		return f.reply(ctx, "A forum watch is already running for this server.")
	}
	return f.reply(ctx, "Watching the forum. New threads land in this channel.")
}

func (f *Feature) unwatch(ctx *registry.MessageContext) error {
	if !ctx.Actor.IsGuildAdmin {
		return f.reply(ctx, "Only a server admin can stop a forum watch.")
	}
	if err := f.scraper.Unwatch(watchName(ctx.Actor.GuildID)); err != nil {
		return f.reply(ctx, "No forum watch is running for this server.")
	}
	return f.reply(ctx, "Forum watch stopped.")
}

func (f *Feature) status(ctx *registry.MessageContext) error {
	if f.scraper.Watching(watchName(ctx.Actor.GuildID)) {
		return f.reply(ctx, "A forum watch is running for this server.")
	}
	return f.reply(ctx, "No forum watch is running for this server.")
}
