// Package tradelist lets members keep a public for-trade list: `ft` shows a
// list, `ftadd` and `ftdel` edit your own. All three commands expose as one
// unit, so an admin toggling "ft" toggles the whole family.
package tradelist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/settings"

	"github.com/bwmarrin/discordgo"
)

// Store is the slice of the settings store the trade lists need.
type Store interface {
	TradeList(guildID, userID string) ([]settings.TradeEntry, error)
	AddTrade(guildID, userID string, entry settings.TradeEntry) error
	RemoveTrade(guildID, userID string, n int) (settings.TradeEntry, error)
}

var mentionRe = regexp.MustCompile(`^<@!?(\d+)>$`)

// Feature wires the ft command family into a registry.
type Feature struct {
	store Store

	mu  sync.Mutex
	say func(channelID, text string)
}

// New registers ft, ftadd, and ftdel under the single logical id "ft".
func New(reg *registry.Registry, store Store) *Feature {
	f := &Feature{store: store}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "ft",
		Name:      "ft",
		Handler:   f.handleShow,
		Help:      "Show a for-trade list: `ft` for yours, `ft @user` for theirs",
		Opts:      registry.TextOptions{Category: "Trading"},
	})
	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "ft",
		Name:      "ftadd",
		Handler:   f.handleAdd,
		Help:      "Add to your for-trade list: `ftadd <pokemon> | <note>`",
		Opts:      registry.TextOptions{Category: "Trading", HelpTier: 1},
	})
	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "ft",
		Name:      "ftdel",
		Handler:   f.handleDel,
		Help:      "Remove entry n from your for-trade list: `ftdel <n>`",
		Opts:      registry.TextOptions{Category: "Trading", HelpTier: 1},
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

func (f *Feature) reply(ctx *registry.MessageContext, text string) error {
	f.bindSay(ctx.Session)
	f.mu.Lock()
	say := f.say
	f.mu.Unlock()
	if say != nil {
		say(ctx.Actor.ChannelID, text)
	}
	return nil
}

func (f *Feature) handleShow(ctx *registry.MessageContext) error {
	target := ctx.Actor.UserID
	whose := "Your"
	if rest := strings.TrimSpace(ctx.Rest); rest != "" {
		m := mentionRe.FindStringSubmatch(rest)
		if m == nil {
			return f.reply(ctx, "Mention a user, like `ft @someone`.")
		}
		target = m[1]
		whose = fmt.Sprintf("<@%s>'s", target)
	}

	list, err := f.store.TradeList(ctx.Actor.GuildID, target)
	if err != nil {
		return fmt.Errorf("failed to load trade list: %w", err)
	}
	if len(list) == 0 {
		return f.reply(ctx, fmt.Sprintf("%s for-trade list is empty.", whose))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s for-trade list:\n", whose)
	for i, e := range list {
		if e.Note != "" {
			fmt.Fprintf(&b, "%d. **%s** (%s)\n", i+1, e.Pokemon, e.Note)
		} else {
			fmt.Fprintf(&b, "%d. **%s**\n", i+1, e.Pokemon)
		}
	}
	return f.reply(ctx, b.String())
}

func (f *Feature) handleAdd(ctx *registry.MessageContext) error {
	pokemon, note, _ := strings.Cut(ctx.Rest, "|")
	pokemon = strings.TrimSpace(pokemon)
	note = strings.TrimSpace(note)
	if pokemon == "" {
		return f.reply(ctx, "Usage: `ftadd <pokemon> | <note>` (note is optional).")
	}

	err := f.store.AddTrade(ctx.Actor.GuildID, ctx.Actor.UserID, settings.TradeEntry{Pokemon: pokemon, Note: note})
	if err != nil {
		return f.reply(ctx, err.Error())
	}
	return f.reply(ctx, fmt.Sprintf("Added **%s** to your for-trade list.", pokemon))
}

func (f *Feature) handleDel(ctx *registry.MessageContext) error {
	n, err := strconv.Atoi(strings.TrimSpace(ctx.Rest))
	if err != nil {
		return f.reply(ctx, "Usage: `ftdel <n>` where n is the entry number from `ft`.")
	}

	removed, err := f.store.RemoveTrade(ctx.Actor.GuildID, ctx.Actor.UserID, n)
	if err != nil {
		return f.reply(ctx, err.Error())
	}
	return f.reply(ctx, fmt.Sprintf("Removed **%s** from your for-trade list.", removed.Pokemon))
}
