// Package voltorb is hot potato with a Pokémon: somebody sets a Voltorb
// ticking with a hidden fuse, players join the circle, and the holder passes
// it to a random other player. Whoever is holding it when it self-destructs
// loses the round.
package voltorb

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/session"

	"github.com/bwmarrin/discordgo"
)

// ComponentPrefix routes the join and pass buttons: "voltorb:join",
// "voltorb:pass".
const ComponentPrefix = "voltorb:"

const (
	fuseMin = 30 * time.Second
	fuseMax = 90 * time.Second
)

var (
	errNotHolder  = errors.New("you're not holding it")
	errAlreadyIn  = errors.New("already in the circle")
	errNobodyElse = errors.New("nobody to pass to")
)

type state struct {
	mu      sync.Mutex
	holder  string
	players []string
	in      map[string]bool
}

func newState(starter string) *state {
	return &state{
		holder:  starter,
		players: []string{starter},
		in:      map[string]bool{starter: true},
	}
}

func (st *state) join(userID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.in[userID] {
		return errAlreadyIn
	}
	st.in[userID] = true
	st.players = append(st.players, userID)
	return nil
}

// pass hands the Voltorb from the holder to a random other player.
func (st *state) pass(userID string) (to string, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if userID != st.holder {
		return "", errNotHolder
	}
	var others []string
	for _, p := range st.players {
		if p != st.holder {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return "", errNobodyElse
	}
	st.holder = others[rand.Intn(len(others))]
	return st.holder, nil
}

func (st *state) currentHolder() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.holder
}

// Feature runs Voltorb rounds through one session manager.
type Feature struct {
	mgr *session.Manager

	mu  sync.Mutex
	say func(channelID, text string)
}

// New builds the feature and registers its command and component route.
func New(reg *registry.Registry, clock session.Clock) *Feature {
	f := &Feature{mgr: session.NewManager("Voltorb round", session.ScopeGuild, clock)}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "voltorb",
		Name:      "voltorb",
		Handler:   f.handleCommand,
		Help:      "Hot potato: `voltorb` starts a round, `voltorb stop` defuses it",
		Opts:      registry.TextOptions{Category: "Games"},
	})
	reg.RegisterComponent(ComponentPrefix, f.handleButton)
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

func (f *Feature) handleCommand(ctx *registry.MessageContext) error {
	f.bindSay(ctx.Session)

	if ctx.Rest == "stop" {
		return f.stop(ctx)
	}

	st := newState(ctx.Actor.UserID)
	s, err := f.mgr.TryStart(ctx.Actor.GuildID, ctx.Actor.ChannelID, ctx.Actor.UserID, ctx.Actor.Username, st)
	if err != nil {
		return f.reply(ctx, err.Error())
	}

	fuse := fuseMin + time.Duration(rand.Int63n(int64(fuseMax-fuseMin)))
	s.Timers.AfterFunc(fuse, func() { f.boom(s) })

	if ctx.Session != nil {
		if err := f.postBoard(ctx.Session, s); err != nil {
			f.mgr.Stop(ctx.Actor.GuildID)
			return fmt.Errorf("failed to post round board: %w", err)
		}
	}
	return nil
}

func (f *Feature) stop(ctx *registry.MessageContext) error {
	s := f.mgr.Get(ctx.Actor.GuildID)
	if s == nil {
		return f.reply(ctx, "No Voltorb is ticking.")
	}
	if !session.CanManage(s, ctx.Actor.UserID, ctx.Actor.IsGuildAdmin) {
		return f.reply(ctx, "Only the starter or an admin can defuse it.")
	}
	if err := session.RequireSameChannel(s, ctx.Actor.ChannelID); err != nil {
		return f.reply(ctx, err.Error())
	}
	f.mgr.Stop(ctx.Actor.GuildID)
	return f.reply(ctx, "The Voltorb calms down. Round's off.")
}

func (f *Feature) handleButton(ic *registry.InteractionContext) error {
	s := f.mgr.Get(ic.Actor.GuildID)
	if s == nil {
		discord.RespondEphemeral(ic.Session, ic.Event, "That round already ended.")
		return nil
	}
	st := s.State.(*state)

	switch ic.CustomID {
	case ComponentPrefix + "join":
		if err := st.join(ic.Actor.UserID); err != nil {
			discord.RespondEphemeral(ic.Session, ic.Event, "You're already in the circle.")
			return nil
		}
		discord.RespondEphemeral(ic.Session, ic.Event, "You're in. Hope it doesn't come your way.")
		return nil
	case ComponentPrefix + "pass":
		to, err := st.pass(ic.Actor.UserID)
		switch err {
		case nil:
		case errNotHolder:
			discord.RespondEphemeral(ic.Session, ic.Event, "You can only pass it while you're holding it.")
			return nil
		case errNobodyElse:
			discord.RespondEphemeral(ic.Session, ic.Event, "Nobody else joined yet. Sweat it out!")
			return nil
		default:
			return err
		}
		if ic.Session != nil {
			_ = discord.DeferUpdate(ic.Session, ic.Event)
		}
		f.announce(s.ChannelID, fmt.Sprintf("⚡ <@%s> shoves the Voltorb at <@%s>!", ic.Actor.UserID, to))
		return nil
	}
	return fmt.Errorf("unknown round button %q", ic.CustomID)
}

func (f *Feature) boom(s *session.Session) {
	st := s.State.(*state)
	loser := st.currentHolder()
	f.mgr.Stop(s.GuildID)
	f.announce(s.ChannelID, fmt.Sprintf("💥 **KABOOM!** The Voltorb went off in <@%s>'s hands. Tough luck!", loser))
	log.Printf("[DONE] [%s] Voltorb round: %s caught the blast", s.GuildID, loser)
}

func (f *Feature) postBoard(dg *discordgo.Session, s *session.Session) error {
	_, err := dg.ChannelMessageSendComplex(s.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title: "⚡ A wild Voltorb appeared!",
			Description: fmt.Sprintf(
				"<@%s> is holding it and it is TICKING. Join the circle, and pass it before it blows!",
				s.OwnerID),
			Color: discord.EmbedColor,
		}},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Join", Style: discordgo.PrimaryButton, CustomID: ComponentPrefix + "join"},
				discordgo.Button{Label: "Pass it!", Style: discordgo.DangerButton, CustomID: ComponentPrefix + "pass"},
			},
		}},
	})
	return err
}
