// Package bingo runs a bingo caller per guild: a shuffled pool of 1..75 is
// drawn one number per interval until somebody calls bingo, the host stops
// it, or the pool runs dry.
package bingo

import (
	"fmt"
	"log"
	"math/rand"
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
	poolSize     = 75
	drawInterval = 30 * time.Second
)

type state struct {
	mu    sync.Mutex
	pool  []int
	drawn []int
}

func newState() *state {
	st := &state{pool: rand.Perm(poolSize)}
	for i := range st.pool {
		st.pool[i]++ // Perm is 0-based, bingo balls are 1..75
	}
	return st
}

// draw removes and returns the next number, or false when the pool is empty.
func (st *state) draw() (int, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.pool) == 0 {
		return 0, false
	}
	n := st.pool[0]
	st.pool = st.pool[1:]
	st.drawn = append(st.drawn, n)
	return n, true
}

func (st *state) drawnNumbers() []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]int, len(st.drawn))
	copy(out, st.drawn)
	return out
}

// Feature runs bingo through one session manager.
type Feature struct {
	mgr *session.Manager

	mu  sync.Mutex
	say func(channelID, text string)
}

// New builds the feature and registers the bingo command.
func New(reg *registry.Registry, clock session.Clock) *Feature {
	f := &Feature{mgr: session.NewManager("bingo", session.ScopeGuild, clock)}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "bingo",
		Name:      "bingo",
		Handler:   f.handle,
		Help: "Bingo caller: `bingo start` begins drawing, `bingo drawn` lists called numbers, " +
			"`bingo claim` calls bingo, `bingo stop` ends the game",
		Opts: registry.TextOptions{Category: "Games"},
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

func (f *Feature) handle(ctx *registry.MessageContext) error {
	f.bindSay(ctx.Session)
	switch strings.ToLower(strings.TrimSpace(ctx.Rest)) {
	case "start":
		return f.start(ctx)
	case "drawn":
		return f.listDrawn(ctx)
	case "claim":
		return f.claim(ctx)
	case "stop":
		return f.stop(ctx)
	}
	return f.reply(ctx, fmt.Sprintf("Usage: `%s start|drawn|claim|stop`", ctx.Cmd))
}

func (f *Feature) start(ctx *registry.MessageContext) error {
	st := newState()
	s, err := f.mgr.TryStart(ctx.Actor.GuildID, ctx.Actor.ChannelID, ctx.Actor.UserID, ctx.Actor.Username, st)
	if err != nil {
		return f.reply(ctx, err.Error())
	}

	s.Timers.Every(drawInterval, func() { f.drawOne(s) })
	return f.reply(ctx, fmt.Sprintf(
		"🅱️ Bingo time! A number every %s. Call `%s claim` when your card fills up.",
		drawInterval, ctx.Cmd))
}

func (f *Feature) drawOne(s *session.Session) {
	st := s.State.(*state)
	n, ok := st.draw()
	if !ok {
		f.mgr.Stop(s.GuildID)
		f.announce(s.ChannelID, "The bingo pool is empty. Nobody called bingo, the house wins!")
		return
	}
	f.announce(s.ChannelID, fmt.Sprintf("🎱 **%d**! (%d called so far)", n, len(st.drawnNumbers())))
}

func (f *Feature) listDrawn(ctx *registry.MessageContext) error {
	s := f.mgr.Get(ctx.Actor.GuildID)
	if s == nil {
		return f.reply(ctx, "No bingo game is running.")
	}
	drawn := s.State.(*state).drawnNumbers()
	if len(drawn) == 0 {
		return f.reply(ctx, "No numbers called yet. Hold tight!")
	}
	parts := make([]string, len(drawn))
	for i, n := range drawn {
		parts[i] = strconv.Itoa(n)
	}
	return f.reply(ctx, "Called so far: "+strings.Join(parts, ", "))
}

func (f *Feature) claim(ctx *registry.MessageContext) error {
	s := f.mgr.Get(ctx.Actor.GuildID)
	if s == nil {
		return f.reply(ctx, "No bingo game is running.")
	}
	if err := session.RequireSameChannel(s, ctx.Actor.ChannelID); err != nil {
		return f.reply(ctx, err.Error())
	}

	f.mgr.Stop(ctx.Actor.GuildID)
	log.Printf("[DONE] [%s] Bingo claimed by %s", ctx.Actor.GuildID, ctx.Actor.UserID)
	return f.reply(ctx, fmt.Sprintf("🎉 **BINGO!** <@%s> takes it! Check their card, everyone.", ctx.Actor.UserID))
}

func (f *Feature) stop(ctx *registry.MessageContext) error {
	s := f.mgr.Get(ctx.Actor.GuildID)
	if s == nil {
		return f.reply(ctx, "No bingo game is running.")
	}
	if !session.CanManage(s, ctx.Actor.UserID, ctx.Actor.IsGuildAdmin) {
		return f.reply(ctx, "Only the host or an admin can stop the game.")
	}
	if err := session.RequireSameChannel(s, ctx.Actor.ChannelID); err != nil {
		return f.reply(ctx, err.Error())
	}

	f.mgr.Stop(ctx.Actor.GuildID)
	return f.reply(ctx, "Bingo's over, cards down.")
}
