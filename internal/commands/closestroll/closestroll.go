// Package closestroll is a quick lottery: the bot picks a secret number,
// everyone gets one roll inside the window, and whoever lands closest when
// the window shuts takes the round. Earlier rolls win ties.
package closestroll

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/session"

	"github.com/bwmarrin/discordgo"
)

const (
	rollMax       = 100
	defaultWindow = 60 * time.Second
	maxWindow     = 10 * time.Minute
)

type state struct {
	mu     sync.Mutex
	target int
	rolls  map[string]int
	order  []string // roll arrival order, for tie-breaks
	names  map[string]string
}

func (st *state) addRoll(userID, username string, n int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, dup := st.rolls[userID]; dup {
		return false
	}
	st.rolls[userID] = n
	st.order = append(st.order, userID)
	st.names[userID] = username
	return true
}

// winner returns the closest roller, or false when nobody rolled.
func (st *state) winner() (userID string, roll int, ok bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	best := -1
	for _, id := range st.order {
		d := st.rolls[id] - st.target
		if d < 0 {
			d = -d
		}
		if best == -1 || d < best {
			best = d
			userID, roll = id, st.rolls[id]
			ok = true
		}
	}
	return userID, roll, ok
}

// Feature runs closest-roll rounds through one session manager.
type Feature struct {
	mgr *session.Manager

	mu  sync.Mutex
	say func(channelID, text string)
}

// New builds the feature and registers the closestroll and roll commands.
func New(reg *registry.Registry, clock session.Clock) *Feature {
	f := &Feature{mgr: session.NewManager("closest-roll round", session.ScopeGuild, clock)}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "closestroll",
		Name:      "closestroll",
		Handler:   f.handleStart,
		Help:      "Start a closest-roll round: `closestroll [window]`, e.g. `closestroll 2m`",
		Opts:      registry.TextOptions{Category: "Games"},
	})
	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "closestroll",
		Name:      "roll",
		Handler:   f.handleRoll,
		Help:      "Roll your number in the running closest-roll round",
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

func (f *Feature) handleStart(ctx *registry.MessageContext) error {
	f.bindSay(ctx.Session)

	window := defaultWindow
	if rest := strings.TrimSpace(ctx.Rest); rest != "" {
		d, err := time.ParseDuration(rest)
		if err != nil || d <= 0 {
			return f.reply(ctx, fmt.Sprintf("`%s` isn't a window. Try `%s 2m`.", rest, ctx.Cmd))
		}
		if d > maxWindow {
			return f.reply(ctx, "Rounds cap out at 10 minutes.")
		}
		window = d
	}

	st := &state{
		target: rand.Intn(rollMax) + 1,
		rolls:  make(map[string]int),
		names:  make(map[string]string),
	}
	s, err := f.mgr.TryStart(ctx.Actor.GuildID, ctx.Actor.ChannelID, ctx.Actor.UserID, ctx.Actor.Username, st)
	if err != nil {
		return f.reply(ctx, err.Error())
	}

	s.Timers.AfterFunc(window, func() { f.finish(s) })
	return f.reply(ctx, fmt.Sprintf(
		"🎲 I'm thinking of a number between 1 and %d. One `!roll` each, closest wins! Window closes in %s.",
		rollMax, window))
}

func (f *Feature) handleRoll(ctx *registry.MessageContext) error {
	f.bindSay(ctx.Session)
	s := f.mgr.Get(ctx.Actor.GuildID)
	if s == nil {
		return f.reply(ctx, "No round is open. Start one with `!closestroll`.")
	}
	if err := session.RequireSameChannel(s, ctx.Actor.ChannelID); err != nil {
		return f.reply(ctx, err.Error())
	}

	n := rand.Intn(rollMax) + 1
	if !s.State.(*state).addRoll(ctx.Actor.UserID, ctx.Actor.Username, n) {
		return f.reply(ctx, fmt.Sprintf("<@%s> you already rolled. One shot per round!", ctx.Actor.UserID))
	}
	return f.reply(ctx, fmt.Sprintf("<@%s> rolls **%d**!", ctx.Actor.UserID, n))
}

func (f *Feature) finish(s *session.Session) {
	st := s.State.(*state)
	winnerID, roll, ok := st.winner()
	target := st.target

	f.mgr.Stop(s.GuildID)
	if !ok {
		f.announce(s.ChannelID, fmt.Sprintf("Nobody rolled. The number was **%d**, for what it's worth.", target))
		return
	}
	f.announce(s.ChannelID, fmt.Sprintf(
		"The number was **%d**! Closest roll: **%d** by <@%s>. 🎉", target, roll, winnerID))
	log.Printf("[DONE] [%s] Closest-roll round: target %d, winner %s with %d", s.GuildID, target, winnerID, roll)
}
