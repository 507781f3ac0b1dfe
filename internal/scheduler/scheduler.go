// Package scheduler runs text commands at a future time on the creator's
// behalf. Rows are durable; on boot every open row is re-armed against its
// original deadline, so a restart delays nothing and drops nothing. Whether a
// command may still run is never decided here: the scheduler asks the
// registry's dry-run, the exact decision real dispatch would make.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/session"
	"spectreon/internal/storage"
	"spectreon/pkg/retrylimit"

	"github.com/bwmarrin/discordgo"
)

// Store is the slice of storage the scheduler needs. *storage.Storage
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	InsertScheduledCommand(ctx context.Context, sc *storage.ScheduledCommand) error
	OpenScheduledCommands(ctx context.Context) ([]*storage.ScheduledCommand, error)
	GuildScheduledCommands(ctx context.Context, guildID string) ([]*storage.ScheduledCommand, error)
	CompleteScheduledCommand(ctx context.Context, id int64, at int64) error
	CancelScheduledCommand(ctx context.Context, id int64, at int64) error
}

// ErrPastDeadline rejects scheduling into the past.
var ErrPastDeadline = errors.New("scheduled time is in the past")

var errNotBound = errors.New("gateway session not ready")

// Scheduler owns the timer per open row. All timers live in one bag on the
// shared clock, so tests drive them with virtual time.
type Scheduler struct {
	store Store
	reg   *registry.Registry
	clock session.Clock
	bag   *session.Bag

	mu      sync.Mutex
	dg      *discordgo.Session
	armed   map[int64]session.Handle
	resolve func(guildID, userID string) registry.ActorContext
	dm      func(userID, content string) error
}

// New builds a scheduler. It fires nothing until Bind and Reconcile run.
func New(store Store, reg *registry.Registry, clock session.Clock) *Scheduler {
	return &Scheduler{
		store: store,
		reg:   reg,
		clock: clock,
		bag:   session.NewBag(clock),
		armed: make(map[int64]session.Handle),
	}
}

// Bind attaches the live gateway session. Called from the ready hook.
func (s *Scheduler) Bind(dg *discordgo.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dg = dg
	if s.resolve == nil {
		s.resolve = func(guildID, userID string) registry.ActorContext {
			return discord.ResolveActor(dg, guildID, userID)
		}
	}
	if s.dm == nil {
		s.dm = func(userID, content string) error {
			return discord.DirectMessage(dg, userID, content)
		}
	}
}

// Reconcile loads every open row and arms its timer against the original
// run_at. Overdue rows fire immediately.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	rows, err := s.store.OpenScheduledCommands(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled commands: %w", err)
	}
	for _, rec := range rows {
		s.arm(rec)
	}
	if len(rows) > 0 {
		log.Printf("[INFO] Re-armed %d scheduled command(s)", len(rows))
	}
	return nil
}

// Schedule validates a command with the same decision path real dispatch
// uses, stores it, and arms its timer. The preflight is advisory: policy may
// change before run_at, so it runs again when the timer fires.
func (s *Scheduler) Schedule(ctx context.Context, actor registry.ActorContext, channelID, command string, runAt time.Time) (*storage.ScheduledCommand, error) {
	if !runAt.After(s.clock.Now()) {
		return nil, ErrPastDeadline
	}

	target := actor
	target.ChannelID = channelID
	out := s.reg.DispatchMessage(registry.Inbound{Actor: target, Content: command, DryRun: true})
	if out.Reason == registry.ReasonWrongPrefix && out.Canonical != "" {
		command = string(out.Canonical[0]) + command[1:]
		out = s.reg.DispatchMessage(registry.Inbound{Actor: target, Content: command, DryRun: true})
	}
	if out.Reason != registry.ReasonAllowed {
		return nil, fmt.Errorf("`%s` would be refused right now: %s", command, refusalText(out))
	}

	rec := &storage.ScheduledCommand{
		GuildID:   actor.GuildID,
		ChannelID: channelID,
		CreatorID: actor.UserID,
		Command:   command,
		RunAt:     storage.Millis(runAt),
	}
	if err := s.store.InsertScheduledCommand(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store scheduled command: %w", err)
	}
	s.arm(rec)
	log.Printf("[INFO] [%s] Scheduled #%d %q for %s", rec.GuildID, rec.ID, rec.Command, runAt.Format(time.RFC3339))
	return rec, nil
}

// Pending returns a guild's open rows, soonest first.
func (s *Scheduler) Pending(ctx context.Context, guildID string) ([]*storage.ScheduledCommand, error) {
	return s.store.GuildScheduledCommands(ctx, guildID)
}

// Cancel stops a pending row's timer and marks it canceled. Rows belonging
// to other guilds are invisible here.
func (s *Scheduler) Cancel(ctx context.Context, guildID string, id int64) error {
	rows, err := s.store.GuildScheduledCommands(ctx, guildID)
	if err != nil {
		return err
	}
	var rec *storage.ScheduledCommand
	for _, r := range rows {
		if r.ID == id {
			rec = r
			break
		}
	}
	if rec == nil {
		return fmt.Errorf("no pending scheduled command #%d", id)
	}

	s.mu.Lock()
	if h, ok := s.armed[id]; ok {
		h.Stop()
		delete(s.armed, id)
	}
	s.mu.Unlock()

	return s.store.CancelScheduledCommand(ctx, id, storage.Millis(s.clock.Now()))
}

func (s *Scheduler) arm(rec *storage.ScheduledCommand) {
	delay := storage.FromMillis(rec.RunAt).Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	s.armed[rec.ID] = s.bag.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.armed, rec.ID)
		s.mu.Unlock()
		s.fire(rec)
	})
	s.mu.Unlock()
}

// fire runs one due row. The gateway may briefly be unbound around a
// reconnect; that is the only retried condition, and the retry is bounded.
func (s *Scheduler) fire(rec *storage.ScheduledCommand) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := retrylimit.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error) {
		log.Printf("[WARN] [%s] Scheduled #%d attempt %d: %v", rec.GuildID, rec.ID, attempt, err)
	}
	if err := retrylimit.Do(ctx, func() error { return s.fireOnce(ctx, rec) }, nil, cfg); err != nil {
		log.Printf("[ERR] [%s] Scheduled #%d failed: %v", rec.GuildID, rec.ID, err)
	}
}

func (s *Scheduler) fireOnce(ctx context.Context, rec *storage.ScheduledCommand) error {
	s.mu.Lock()
	dg, resolve, dm := s.dg, s.resolve, s.dm
	s.mu.Unlock()
	if resolve == nil {
		return errNotBound
	}

	// Privilege and exposure are whatever holds NOW, not at schedule time.
	actor := resolve(rec.GuildID, rec.CreatorID)
	actor.ChannelID = rec.ChannelID

	content := rec.Command
	out := s.reg.DispatchMessage(registry.Inbound{Actor: actor, Content: content, DryRun: true})
	if out.Reason == registry.ReasonWrongPrefix && out.Canonical != "" {
		// The guild's prefix mode changed since scheduling; follow it.
		content = string(out.Canonical[0]) + content[1:]
		out = s.reg.DispatchMessage(registry.Inbound{Actor: actor, Content: content, DryRun: true})
	}

	now := storage.Millis(s.clock.Now())
	if out.Reason != registry.ReasonAllowed {
		log.Printf("[WARN] [%s] Scheduled #%d %q refused: %s", rec.GuildID, rec.ID, rec.Command, out.Reason)
		if dm != nil {
			msg := fmt.Sprintf("Your scheduled `%s` in <#%s> was skipped: %s", rec.Command, rec.ChannelID, refusalText(out))
			if err := dm(rec.CreatorID, msg); err != nil {
				log.Printf("[WARN] [%s] Could not DM creator of #%d: %v", rec.GuildID, rec.ID, err)
			}
		}
		return s.store.CancelScheduledCommand(ctx, rec.ID, now)
	}

	real := s.reg.DispatchMessage(registry.Inbound{
		Actor:   actor,
		Content: content,
		Session: dg,
		Message: syntheticMessage(rec, actor),
	})
	if real.Notify != "" && dg != nil {
		_ = discord.Message(dg, rec.ChannelID, real.Notify)
	}
	log.Printf("[DONE] [%s] Scheduled #%d ran: %s", rec.GuildID, rec.ID, content)
	return s.store.CompleteScheduledCommand(ctx, rec.ID, now)
}

// syntheticMessage is the message envelope handlers see when a scheduled
// command fires: right channel, right author, no underlying Discord message.
func syntheticMessage(rec *storage.ScheduledCommand, actor registry.ActorContext) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			GuildID:   rec.GuildID,
			ChannelID: rec.ChannelID,
			Content:   rec.Command,
			Author:    &discordgo.User{ID: rec.CreatorID, Username: actor.Username},
		},
	}
}

func refusalText(out registry.Outcome) string {
	switch out.Reason {
	case registry.ReasonExposureOff:
		return "that command is currently disabled here"
	case registry.ReasonChannelBlocked:
		return "it isn't allowed in that channel"
	case registry.ReasonAdminOnly:
		return "it requires server admin"
	case registry.ReasonWrongPrefix:
		return "its prefix has changed"
	case registry.ReasonUnknownCommand:
		return "no such command"
	case registry.ReasonNoPrefix:
		return "that isn't a command (start it with ! or ?)"
	}
	return string(out.Reason)
}
