// Package giveaway runs timed prize giveaways. Every giveaway is a durable
// row keyed by its board message; the process only holds the finalize timer,
// so a restart re-arms from the rows and no giveaway is ever lost or delayed
// past its original deadline.
package giveaway

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/session"
	"spectreon/internal/storage"

	"github.com/bwmarrin/discordgo"
)

// ComponentPrefix routes the enter button.
const ComponentPrefix = "giveaway:enter:"

const maxDuration = 14 * 24 * time.Hour

// Store is the slice of storage giveaways need.
type Store interface {
	UpsertGiveaway(ctx context.Context, g *storage.Giveaway) error
	Giveaway(ctx context.Context, messageID string) (*storage.Giveaway, error)
	OpenGiveaways(ctx context.Context) ([]*storage.Giveaway, error)
	AddGiveawayEntrant(ctx context.Context, messageID, userID string) (bool, error)
	CompleteGiveaway(ctx context.Context, messageID string, winners []string, at int64) error
	CancelGiveaway(ctx context.Context, messageID string, at int64) error
}

// Feature owns the live finalize timers for open giveaways.
type Feature struct {
	store Store
	clock session.Clock
	bag   *session.Bag

	mu    sync.Mutex
	dg    *discordgo.Session
	armed map[string]session.Handle // message id -> finalize timer
}

// New builds the feature and registers its commands and component route.
func New(reg *registry.Registry, store Store, clock session.Clock) *Feature {
	f := &Feature{
		store: store,
		clock: clock,
		bag:   session.NewBag(clock),
		armed: make(map[string]session.Handle),
	}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "giveaway",
		Name:      "giveaway",
		Handler:   f.handleCommand,
		Help: "Run a giveaway: `giveaway <prize> <duration>` starts one, " +
			"`giveaway cancel <message-id>` stops one, `giveaway reroll <message-id>` redraws",
		Opts: registry.TextOptions{Admin: true, Category: "Games"},
	})
	reg.RegisterComponent(ComponentPrefix, f.handleEnter)
	return f
}

// Reconcile binds the gateway session and re-arms every open giveaway
// against its original deadline. Overdue giveaways finalize immediately.
func (f *Feature) Reconcile(ctx context.Context, dg *discordgo.Session) error {
	f.mu.Lock()
	f.dg = dg
	f.mu.Unlock()

	open, err := f.store.OpenGiveaways(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open giveaways: %w", err)
	}
	for _, g := range open {
		f.arm(g.MessageID, storage.FromMillis(g.EndsAt))
	}
	if len(open) > 0 {
		log.Printf("[INFO] Re-armed %d open giveaway(s)", len(open))
	}
	return nil
}

func (f *Feature) handleCommand(ctx *registry.MessageContext) error {
	fields := strings.Fields(ctx.Rest)
	if len(fields) == 0 {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("Usage: `%s <prize> <duration>`, e.g. `%s Master Ball 1h`.", ctx.Cmd, ctx.Cmd))
	}

	switch fields[0] {
	case "cancel":
		if len(fields) != 2 {
			return discord.Message(ctx.Session, ctx.Actor.ChannelID, fmt.Sprintf("Usage: `%s cancel <message-id>`.", ctx.Cmd))
		}
		return f.cancel(ctx, fields[1])
	case "reroll":
		if len(fields) != 2 {
			return discord.Message(ctx.Session, ctx.Actor.ChannelID, fmt.Sprintf("Usage: `%s reroll <message-id>`.", ctx.Cmd))
		}
		return f.reroll(ctx, fields[1])
	}

	if len(fields) < 2 {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("Usage: `%s <prize> <duration>`, e.g. `%s Master Ball 1h`.", ctx.Cmd, ctx.Cmd))
	}
	d, err := time.ParseDuration(fields[len(fields)-1])
	if err != nil || d <= 0 {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("The last word has to be a duration like `30m` or `2h`, not `%s`.", fields[len(fields)-1]))
	}
	if d > maxDuration {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID, "Giveaways cap out at 14 days.")
	}
	prize := strings.Join(fields[:len(fields)-1], " ")

	return f.start(ctx, prize, d)
}

func (f *Feature) start(ctx *registry.MessageContext, prize string, d time.Duration) error {
	now := f.clock.Now()
	endsAt := now.Add(d)

	msg, err := discord.MessageEmbed(ctx.Session, ctx.Actor.ChannelID, boardEmbed(prize, ctx.Actor.UserID, endsAt, 0))
	if err != nil {
		return fmt.Errorf("failed to post giveaway board: %w", err)
	}

	// The button's custom id needs the message id, so it goes on in an edit.
	_, err = ctx.Session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      msg.ID,
		Channel: ctx.Actor.ChannelID,
		Components: &[]discordgo.MessageComponent{discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{discordgo.Button{
				Label:    "Enter",
				Style:    discordgo.SuccessButton,
				CustomID: ComponentPrefix + msg.ID,
				Emoji:    &discordgo.ComponentEmoji{Name: "🎁"},
			}},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to attach enter button: %w", err)
	}

	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g := &storage.Giveaway{
		MessageID: msg.ID,
		GuildID:   ctx.Actor.GuildID,
		ChannelID: ctx.Actor.ChannelID,
		OwnerID:   ctx.Actor.UserID,
		Prize:     prize,
		StartsAt:  storage.Millis(now),
		EndsAt:    storage.Millis(endsAt),
	}
	if err := f.store.UpsertGiveaway(bctx, g); err != nil {
		return fmt.Errorf("failed to store giveaway: %w", err)
	}

	f.mu.Lock()
	if f.dg == nil {
		f.dg = ctx.Session
	}
	f.mu.Unlock()
	f.arm(msg.ID, endsAt)
	log.Printf("[INFO] [%s] Giveaway %s started: %q ends %s", g.GuildID, msg.ID, prize, endsAt.Format(time.RFC3339))
	return nil
}

func (f *Feature) handleEnter(ic *registry.InteractionContext) error {
	messageID := strings.TrimPrefix(ic.CustomID, ComponentPrefix)

	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, err := f.store.Giveaway(bctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load giveaway: %w", err)
	}
	if g == nil || g.CompletedAt.Valid || g.Canceled {
		discord.RespondEphemeral(ic.Session, ic.Event, "That giveaway is already over.")
		return nil
	}

	added, err := f.store.AddGiveawayEntrant(bctx, messageID, ic.Actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	if !added {
		discord.RespondEphemeral(ic.Session, ic.Event, "You're already in this one. Good luck!")
		return nil
	}
	discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("You're in the running for **%s**!", g.Prize))

	// Refresh the entrant count on the board, best effort.
	if g2, err := f.store.Giveaway(bctx, messageID); err == nil && g2 != nil {
		embed := boardEmbed(g2.Prize, g2.OwnerID, storage.FromMillis(g2.EndsAt), len(g2.Entrants))
		_, _ = ic.Session.ChannelMessageEditEmbed(g2.ChannelID, messageID, embed)
	}
	return nil
}

func (f *Feature) cancel(ctx *registry.MessageContext, messageID string) error {
	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, err := f.store.Giveaway(bctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load giveaway: %w", err)
	}
	if g == nil || g.GuildID != ctx.Actor.GuildID || g.CompletedAt.Valid || g.Canceled {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID, "No open giveaway has that message id.")
	}

	f.disarm(messageID)
	if err := f.store.CancelGiveaway(bctx, messageID, storage.Millis(f.clock.Now())); err != nil {
		return fmt.Errorf("failed to cancel giveaway: %w", err)
	}
	return discord.Message(ctx.Session, ctx.Actor.ChannelID,
		fmt.Sprintf("Giveaway for **%s** is canceled. Nobody wins this time.", g.Prize))
}

func (f *Feature) reroll(ctx *registry.MessageContext, messageID string) error {
	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, err := f.store.Giveaway(bctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load giveaway: %w", err)
	}
	if g == nil || g.GuildID != ctx.Actor.GuildID || !g.CompletedAt.Valid || g.Canceled {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID, "Rerolls only work on a finished giveaway's message id.")
	}
	if len(g.Entrants) == 0 {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID, "Nobody entered that giveaway, so there's nothing to reroll.")
	}

	winner := g.Entrants[rand.Intn(len(g.Entrants))]
	if err := f.store.CompleteGiveaway(bctx, messageID, []string{winner}, g.CompletedAt.Int64); err != nil {
		return fmt.Errorf("failed to record reroll: %w", err)
	}
	return discord.Message(ctx.Session, ctx.Actor.ChannelID,
		fmt.Sprintf("🎲 Reroll! The new winner of **%s** is <@%s>!", g.Prize, winner))
}

func (f *Feature) arm(messageID string, endsAt time.Time) {
	delay := endsAt.Sub(f.clock.Now())
	if delay < 0 {
		delay = 0
	}
	f.mu.Lock()
	f.armed[messageID] = f.bag.AfterFunc(delay, func() {
		f.mu.Lock()
		delete(f.armed, messageID)
		f.mu.Unlock()
		f.finalize(messageID)
	})
	f.mu.Unlock()
}

func (f *Feature) disarm(messageID string) {
	f.mu.Lock()
	if h, ok := f.armed[messageID]; ok {
		h.Stop()
		delete(f.armed, messageID)
	}
	f.mu.Unlock()
}

func (f *Feature) finalize(messageID string) {
	bctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f.mu.Lock()
	dg := f.dg
	f.mu.Unlock()

	g, err := f.store.Giveaway(bctx, messageID)
	if err != nil {
		log.Printf("[ERR] Giveaway %s finalize: %v", messageID, err)
		return
	}
	if g == nil || g.CompletedAt.Valid || g.Canceled {
		return
	}

	var winners []string
	if len(g.Entrants) > 0 {
		winners = []string{g.Entrants[rand.Intn(len(g.Entrants))]}
	}
	if err := f.store.CompleteGiveaway(bctx, messageID, winners, storage.Millis(f.clock.Now())); err != nil {
		log.Printf("[ERR] [%s] Giveaway %s complete: %v", g.GuildID, messageID, err)
		return
	}

	if dg == nil {
		return
	}
	if len(winners) == 0 {
		_ = discord.Message(dg, g.ChannelID, fmt.Sprintf("The giveaway for **%s** ended with no entrants.", g.Prize))
	} else {
		_ = discord.Message(dg, g.ChannelID,
			fmt.Sprintf("🎉 The giveaway for **%s** is over! Winner: <@%s> (%d entrants)", g.Prize, winners[0], len(g.Entrants)))
	}
	// Strip the button so the board stops taking entries.
	_, _ = dg.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    g.ChannelID,
		Components: &[]discordgo.MessageComponent{},
	})
	log.Printf("[DONE] [%s] Giveaway %s finalized (%d entrants)", g.GuildID, messageID, len(g.Entrants))
}

func boardEmbed(prize, ownerID string, endsAt time.Time, entrants int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎁 Giveaway: " + prize,
		Description: fmt.Sprintf("Hit **Enter** to join! Ends <t:%d:R>.\nHosted by <@%s>.", endsAt.Unix(), ownerID),
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d entered", entrants)},
	}
}
