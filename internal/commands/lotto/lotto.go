// Package lotto runs the message lottery: a listener counts ordinary chat
// messages per user, and a drawing picks a winner among everyone above the
// eligibility threshold, then resets the counters.
package lotto

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
)

// Store is the slice of storage the lottery needs.
type Store interface {
	BumpLottoCount(ctx context.Context, guildID, userID string) error
	LottoCount(ctx context.Context, guildID, userID string) (int64, error)
	LottoEligible(ctx context.Context, guildID string, min int64) ([]string, error)
	ResetLottoCounts(ctx context.Context, guildID string) error
}

// Register adds the counting listener and the lotto command.
func Register(reg *registry.Registry, store Store, minMessages int64) {
	reg.RegisterListener(func(ctx *registry.MessageContext) {
		// Commands don't count toward eligibility, only conversation.
		content := strings.TrimSpace(ctx.Message.Content)
		if content == "" || content[0] == '!' || content[0] == '?' {
			return
		}
		bctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.BumpLottoCount(bctx, ctx.Actor.GuildID, ctx.Actor.UserID)
	})

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "lotto",
		Name:      "lotto",
		Handler: func(ctx *registry.MessageContext) error {
			return handleLotto(ctx, store, minMessages)
		},
		Help: "Message lottery. `lotto` shows your count, `lotto draw` picks a winner (admin)",
		Opts: registry.TextOptions{Category: "Games"},
	})
}

func handleLotto(ctx *registry.MessageContext, store Store, minMessages int64) error {
	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub := strings.ToLower(strings.TrimSpace(ctx.Rest))
	switch sub {
	case "", "status":
		n, err := store.LottoCount(bctx, ctx.Actor.GuildID, ctx.Actor.UserID)
		if err != nil {
			return fmt.Errorf("failed to read lotto count: %w", err)
		}
		if n >= minMessages {
			return discord.Message(ctx.Session, ctx.Actor.ChannelID,
				fmt.Sprintf("<@%s> you have %d messages counted. You're in the next drawing!", ctx.Actor.UserID, n))
		}
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("<@%s> you have %d of the %d messages needed for the next drawing.", ctx.Actor.UserID, n, minMessages))

	case "draw":
		if !ctx.Actor.IsGuildAdmin {
			return discord.Message(ctx.Session, ctx.Actor.ChannelID, "Only a server admin can run the drawing.")
		}
		eligible, err := store.LottoEligible(bctx, ctx.Actor.GuildID, minMessages)
		if err != nil {
			return fmt.Errorf("failed to load eligible users: %w", err)
		}
		if len(eligible) == 0 {
			return discord.Message(ctx.Session, ctx.Actor.ChannelID, "Nobody is eligible yet. Keep chatting!")
		}
		winner := eligible[rand.Intn(len(eligible))]
		// The eligible read and the reset are separate statements; a
		// message bumped between them is forfeited with the rest of the
		// pot. Stakes are one chat message, not worth a transaction.
		if err := store.ResetLottoCounts(bctx, ctx.Actor.GuildID); err != nil {
			return fmt.Errorf("failed to reset lotto counts: %w", err)
		}
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("🎉 The lotto winner is <@%s>! (%d eligible entrants) Counters are reset.", winner, len(eligible)))

	default:
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("Try `%s` or `%s draw`.", ctx.Cmd, ctx.Cmd))
	}
}
