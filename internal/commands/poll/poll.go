// Package poll runs timed poll contests. Votes land in a durable row keyed
// by the board message, one vote per user with later votes replacing earlier
// ones. When the timer fires the winning option is announced and one of its
// voters is drawn as the contest winner.
package poll

import (
	"context"
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
	"spectreon/internal/storage"

	"github.com/bwmarrin/discordgo"
)

// ComponentPrefix routes the vote buttons. The full custom id is
// "poll:vote:<option index>:<message id>".
const ComponentPrefix = "poll:vote:"

const maxOptions = 5

// Store is the slice of storage polls need.
type Store interface {
	UpsertPoll(ctx context.Context, p *storage.Poll) error
	Poll(ctx context.Context, messageID string) (*storage.Poll, error)
	OpenPolls(ctx context.Context) ([]*storage.Poll, error)
	CastVote(ctx context.Context, messageID, userID, option string) error
	CompletePoll(ctx context.Context, messageID string, at int64) error
	CancelPoll(ctx context.Context, messageID string, at int64) error
}

// Feature owns the live close timers for open polls.
type Feature struct {
	store Store
	clock session.Clock
	bag   *session.Bag

	mu    sync.Mutex
	dg    *discordgo.Session
	armed map[string]session.Handle
}

// New builds the feature and registers its command and component route.
func New(reg *registry.Registry, store Store, clock session.Clock) *Feature {
	f := &Feature{
		store: store,
		clock: clock,
		bag:   session.NewBag(clock),
		armed: make(map[string]session.Handle),
	}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "poll",
		Name:      "poll",
		Handler:   f.handleCommand,
		Help: "Run a poll contest: `poll <duration> | <question> | <option> | <option> ...`, " +
			"or `poll cancel <message-id>`",
		Opts: registry.TextOptions{Admin: true, Category: "Games"},
	})
	reg.RegisterComponent(ComponentPrefix, f.handleVote)
	return f
}

// Reconcile binds the gateway session and re-arms every open poll against
// its original deadline.
func (f *Feature) Reconcile(ctx context.Context, dg *discordgo.Session) error {
	f.mu.Lock()
	f.dg = dg
	f.mu.Unlock()

	open, err := f.store.OpenPolls(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open polls: %w", err)
	}
	for _, p := range open {
		f.arm(p.MessageID, storage.FromMillis(p.EndsAt))
	}
	if len(open) > 0 {
		log.Printf("[INFO] Re-armed %d open poll(s)", len(open))
	}
	return nil
}

func (f *Feature) handleCommand(ctx *registry.MessageContext) error {
	if rest, ok := strings.CutPrefix(ctx.Rest, "cancel "); ok {
		return f.cancel(ctx, strings.TrimSpace(rest))
	}

	parts := strings.Split(ctx.Rest, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 4 {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("Usage: `%s <duration> | <question> | <option> | <option> ...`", ctx.Cmd))
	}
	d, err := time.ParseDuration(parts[0])
	if err != nil || d <= 0 {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("`%s` isn't a duration. Try `30m` or `2h`.", parts[0]))
	}
	question := parts[1]
	options := parts[2:]
	if len(options) > maxOptions {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID,
			fmt.Sprintf("Polls cap out at %d options.", maxOptions))
	}

	return f.start(ctx, question, options, d)
}

func (f *Feature) start(ctx *registry.MessageContext, question string, options []string, d time.Duration) error {
	endsAt := f.clock.Now().Add(d)

	msg, err := discord.MessageEmbed(ctx.Session, ctx.Actor.ChannelID, boardEmbed(question, options, endsAt))
	if err != nil {
		return fmt.Errorf("failed to post poll board: %w", err)
	}

	row := discordgo.ActionsRow{}
	for i, opt := range options {
		label := opt
		if len(label) > 80 {
			label = label[:77] + "..."
		}
		row.Components = append(row.Components, discordgo.Button{
			Label:    label,
			Style:    discordgo.PrimaryButton,
			CustomID: fmt.Sprintf("%s%d:%s", ComponentPrefix, i, msg.ID),
		})
	}
	_, err = ctx.Session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         msg.ID,
		Channel:    ctx.Actor.ChannelID,
		Components: &[]discordgo.MessageComponent{row},
	})
	if err != nil {
		return fmt.Errorf("failed to attach vote buttons: %w", err)
	}

	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := &storage.Poll{
		MessageID: msg.ID,
		GuildID:   ctx.Actor.GuildID,
		ChannelID: ctx.Actor.ChannelID,
		OwnerID:   ctx.Actor.UserID,
		Question:  question,
		Options:   storage.Options(options),
		EndsAt:    storage.Millis(endsAt),
	}
	if err := f.store.UpsertPoll(bctx, p); err != nil {
		return fmt.Errorf("failed to store poll: %w", err)
	}

	f.mu.Lock()
	if f.dg == nil {
		f.dg = ctx.Session
	}
	f.mu.Unlock()
	f.arm(msg.ID, endsAt)
	log.Printf("[INFO] [%s] Poll %s started: %q", p.GuildID, msg.ID, question)
	return nil
}

func (f *Feature) handleVote(ic *registry.InteractionContext) error {
	idxStr, messageID, ok := strings.Cut(strings.TrimPrefix(ic.CustomID, ComponentPrefix), ":")
	if !ok {
		return fmt.Errorf("malformed vote custom id %q", ic.CustomID)
	}

	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := f.store.Poll(bctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load poll: %w", err)
	}
	if p == nil || p.CompletedAt.Valid || p.Canceled {
		discord.RespondEphemeral(ic.Session, ic.Event, "That poll is already closed.")
		return nil
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 || idx >= len(p.Options) {
		return fmt.Errorf("vote for option %q outside poll %s", idxStr, messageID)
	}

	if err := f.store.CastVote(bctx, messageID, ic.Actor.UserID, idxStr); err != nil {
		return fmt.Errorf("failed to record vote: %w", err)
	}
	discord.RespondEphemeral(ic.Session, ic.Event,
		fmt.Sprintf("Vote recorded for **%s**. You can change it until the poll closes.", p.Options[idx]))
	return nil
}

func (f *Feature) cancel(ctx *registry.MessageContext, messageID string) error {
	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := f.store.Poll(bctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load poll: %w", err)
	}
	if p == nil || p.GuildID != ctx.Actor.GuildID || p.CompletedAt.Valid || p.Canceled {
		return discord.Message(ctx.Session, ctx.Actor.ChannelID, "No open poll has that message id.")
	}

	f.disarm(messageID)
	if err := f.store.CancelPoll(bctx, messageID, storage.Millis(f.clock.Now())); err != nil {
		return fmt.Errorf("failed to cancel poll: %w", err)
	}
	return discord.Message(ctx.Session, ctx.Actor.ChannelID, "Poll canceled. No contest winner this time.")
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

	p, err := f.store.Poll(bctx, messageID)
	if err != nil {
		log.Printf("[ERR] Poll %s finalize: %v", messageID, err)
		return
	}
	if p == nil || p.CompletedAt.Valid || p.Canceled {
		return
	}
	if err := f.store.CompletePoll(bctx, messageID, storage.Millis(f.clock.Now())); err != nil {
		log.Printf("[ERR] [%s] Poll %s complete: %v", p.GuildID, messageID, err)
		return
	}

	winIdx, winVoters, total := Tally(p)

	if dg == nil {
		return
	}
	if total == 0 {
		_ = discord.Message(dg, p.ChannelID, fmt.Sprintf("The poll **%s** closed with no votes.", p.Question))
	} else {
		drawn := winVoters[rand.Intn(len(winVoters))]
		_ = discord.Message(dg, p.ChannelID, fmt.Sprintf(
			"📊 The poll **%s** is closed! Winning option: **%s** with %d of %d votes.\n"+
				"🎉 Contest winner, drawn from its voters: <@%s>",
			p.Question, p.Options[winIdx], len(winVoters), total, drawn))
	}
	_, _ = dg.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    p.ChannelID,
		Components: &[]discordgo.MessageComponent{},
	})
	log.Printf("[DONE] [%s] Poll %s closed (%d votes)", p.GuildID, messageID, total)
}

// Tally returns the winning option index, its voters, and the total vote
// count. Ties break toward the lower option index.
func Tally(p *storage.Poll) (winIdx int, winVoters []string, total int) {
	winIdx = -1
	for i := range p.Options {
		voters := p.Votes[strconv.Itoa(i)]
		total += len(voters)
		if winIdx == -1 || len(voters) > len(winVoters) {
			winIdx, winVoters = i, voters
		}
	}
	return winIdx, winVoters, total
}

func boardEmbed(question string, options []string, endsAt time.Time) *discordgo.MessageEmbed {
	var b strings.Builder
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	return &discordgo.MessageEmbed{
		Title:       "📊 " + question,
		Description: b.String() + fmt.Sprintf("\nVote with the buttons below. Closes <t:%d:R>.", endsAt.Unix()),
	}
}
