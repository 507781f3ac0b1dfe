// Package auction runs one live auction per guild. Bids reset the countdown:
// every new high bid clears the round timers and starts a fresh
// going-once/going-twice/sold sequence, so the hammer can only fall on a
// quiet room.
package auction

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/session"

	"github.com/bwmarrin/discordgo"
)

const (
	goingOnceAfter  = 20 * time.Second
	goingTwiceAfter = 35 * time.Second
	soldAfter       = 50 * time.Second
	noBidTimeout    = 2 * time.Minute
)

type state struct {
	mu         sync.Mutex
	item       string
	highBid    int
	highBidder string // empty until the first bid
}

// Feature runs auctions through one session manager.
type Feature struct {
	mgr *session.Manager

	mu  sync.Mutex
	say func(channelID, text string)
}

// New builds the feature and registers the auction and bid commands.
func New(reg *registry.Registry, clock session.Clock) *Feature {
	f := &Feature{mgr: session.NewManager("auction", session.ScopeGuild, clock)}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "auction",
		Name:      "auction",
		Handler:   f.handleAuction,
		Help:      "Run an auction: `auction <item> [starting bid]` starts one, `auction stop` ends it early",
		Opts:      registry.TextOptions{Category: "Games"},
	})
	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "auction",
		Name:      "bid",
		Handler:   f.handleBid,
		Help:      "Bid in the running auction: `bid <amount>`",
		Opts:      registry.TextOptions{Category: "Games", HelpTier: 1},
	})
	return f
}

func (f *Feature) bindSay(s *discordgo.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.say == nil {
		f.say = func(channelID, text string) { _ = discord.Message(s, channelID, text) }
	}
}

func (f *Feature) reply(ctx *registry.MessageContext, text string) error {
	f.announce(ctx.Actor.ChannelID, text)
	return nil
}

func (f *Feature) announce(channelID, text string) {
	f.mu.Lock()
	say := f.say
	f.mu.Unlock()
	if say != nil {
		say(channelID, text)
	}
}

func (f *Feature) handleAuction(ctx *registry.MessageContext) error {
	f.bindSay(ctx.Session)
	rest := strings.TrimSpace(ctx.Rest)

	if rest == "stop" {
		return f.stop(ctx)
	}
	if rest == "" {
		return f.reply(ctx, fmt.Sprintf("Usage: `%s <item> [starting bid]`", ctx.Cmd))
	}

	item := rest
	startBid := 0
	fields := strings.Fields(rest)
	if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil && len(fields) > 1 {
		startBid = n
		item = strings.Join(fields[:len(fields)-1], " ")
	}

	st := &state{item: item, highBid: startBid}
	s, err := f.mgr.TryStart(ctx.Actor.GuildID, ctx.Actor.ChannelID, ctx.Actor.UserID, ctx.Actor.Username, st)
	if err != nil {
		return f.reply(ctx, err.Error())
	}

	f.armNoBidTimeout(s)
	return f.reply(ctx, fmt.Sprintf(
		"🔨 Auction open for **%s**! Starting at %d. Bid with `!bid <amount>`. No bids for %s closes it.",
		item, startBid, noBidTimeout))
}

func (f *Feature) handleBid(ctx *registry.MessageContext) error {
	f.bindSay(ctx.Session)
	s := f.mgr.Get(ctx.Actor.GuildID)
	if s == nil {
		return f.reply(ctx, "There's no auction running. Start one with `!auction <item>`.")
	}
	if err := session.RequireSameChannel(s, ctx.Actor.ChannelID); err != nil {
		return f.reply(ctx, err.Error())
	}

	amount, err := strconv.Atoi(strings.TrimSpace(ctx.Rest))
	if err != nil || amount <= 0 {
		return f.reply(ctx, fmt.Sprintf("Usage: `%s <amount>`", ctx.Cmd))
	}

	st := s.State.(*state)
	st.mu.Lock()
	if amount <= st.highBid {
		cur := st.highBid
		st.mu.Unlock()
		return f.reply(ctx, fmt.Sprintf("The bid to beat is %d. Go higher!", cur))
	}
	st.highBid = amount
	st.highBidder = ctx.Actor.UserID
	item := st.item
	st.mu.Unlock()

	f.armRound(s)
	return f.reply(ctx, fmt.Sprintf("**%d** for **%s** from <@%s>!", amount, item, ctx.Actor.UserID))
}

func (f *Feature) stop(ctx *registry.MessageContext) error {
	s := f.mgr.Get(ctx.Actor.GuildID)
	if s == nil {
		return f.reply(ctx, "There's no auction running.")
	}
	if !session.CanManage(s, ctx.Actor.UserID, ctx.Actor.IsGuildAdmin) {
		return f.reply(ctx, "Only the auctioneer or an admin can stop it.")
	}
	if err := session.RequireSameChannel(s, ctx.Actor.ChannelID); err != nil {
		return f.reply(ctx, err.Error())
	}

	st := s.State.(*state)
	st.mu.Lock()
	item := st.item
	st.mu.Unlock()
	f.mgr.Stop(ctx.Actor.GuildID)
	return f.reply(ctx, fmt.Sprintf("Auction for **%s** stopped. No sale.", item))
}

// armRound replaces all pending timers with a fresh countdown sequence.
func (f *Feature) armRound(s *session.Session) {
	st := s.State.(*state)
	s.Timers.ClearAll()
	s.Timers.AfterFunc(goingOnceAfter, func() {
		st.mu.Lock()
		bid := st.highBid
		st.mu.Unlock()
		f.announce(s.ChannelID, fmt.Sprintf("Going once at **%d**...", bid))
	})
	s.Timers.AfterFunc(goingTwiceAfter, func() {
		st.mu.Lock()
		bid := st.highBid
		st.mu.Unlock()
		f.announce(s.ChannelID, fmt.Sprintf("Going twice at **%d**...", bid))
	})
	s.Timers.AfterFunc(soldAfter, func() { f.close(s) })
}

// armNoBidTimeout closes a bidless auction after a quiet period.
func (f *Feature) armNoBidTimeout(s *session.Session) {
	s.Timers.AfterFunc(noBidTimeout, func() { f.close(s) })
}

func (f *Feature) close(s *session.Session) {
	st := s.State.(*state)
	st.mu.Lock()
	item, bid, bidder := st.item, st.highBid, st.highBidder
	st.mu.Unlock()

	f.mgr.Stop(s.GuildID)
	if bidder == "" {
		f.announce(s.ChannelID, fmt.Sprintf("The auction for **%s** closed with no bids.", item))
	} else {
		f.announce(s.ChannelID, fmt.Sprintf("🔨 **SOLD!** **%s** goes to <@%s> for **%d**!", item, bidder, bid))
	}
	log.Printf("[DONE] [%s] Auction for %q closed (winning bid %d)", s.GuildID, item, bid)
}
