// Package faq answers common questions from a per-guild bank of canned
// entries. Lookups fuzzy-match the query against each entry's trigger
// phrases, so "how breed deltas" still finds the "delta breeding" entry.
// Admins curate the bank through subcommands of the same command.
package faq

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Store is the slice of the settings store the FAQ bank needs.
type Store interface {
	FAQEntries(guildID string) ([]settings.FAQEntry, error)
	SetFAQEntries(guildID string, entries []settings.FAQEntry) error
}

// Feature wires the faq command into a registry.
type Feature struct {
	store Store

	mu  sync.Mutex
	say func(channelID, text string)
}

// New registers the faq command.
func New(reg *registry.Registry, store Store) *Feature {
	f := &Feature{store: store}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "faq",
		Name:      "faq",
		Handler:   f.handle,
		Help:      "Look up a FAQ answer: `faq <question>`. Admins: `faq add`, `faq del`, `faq list`",
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

func (f *Feature) handle(ctx *registry.MessageContext) error {
	rest := strings.TrimSpace(ctx.Rest)
	sub, args, _ := strings.Cut(rest, " ")
	switch strings.ToLower(sub) {
	case "add":
		return f.add(ctx, args)
	case "del":
		return f.del(ctx, args)
	case "list":
		return f.list(ctx)
	}

	if rest == "" {
		return f.reply(ctx, "Ask something, like `faq delta breeding`.")
	}
	entries, err := f.store.FAQEntries(ctx.Actor.GuildID)
	if err != nil {
		return fmt.Errorf("failed to load faq entries: %w", err)
	}
	entry, ok := Match(entries, rest)
	if !ok {
		return f.reply(ctx, "No FAQ entry matches that. `faq list` shows what I know.")
	}
	return f.reply(ctx, entry.Answer)
}

// Match picks the entry whose trigger phrase fuzzy-matches query best.
// Matching runs both directions so a short query finds a long trigger and a
// wordy question still lands on a terse one.
func Match(entries []settings.FAQEntry, query string) (settings.FAQEntry, bool) {
	best := -1
	bestRank := 0
	for i, e := range entries {
		for _, trig := range e.Triggers {
			d := rankEither(query, trig)
			if d < 0 {
				continue
			}
			if best == -1 || d < bestRank {
				best = i
				bestRank = d
			}
		}
	}
	if best == -1 {
		return settings.FAQEntry{}, false
	}
	return entries[best], true
}

func rankEither(query, trigger string) int {
	d1 := fuzzy.RankMatchFold(query, trigger)
	d2 := fuzzy.RankMatchFold(trigger, query)
	switch {
	case d1 < 0:
		return d2
	case d2 < 0 || d1 < d2:
		return d1
	default:
		return d2
	}
}

func (f *Feature) add(ctx *registry.MessageContext, args string) error {
	if !ctx.Actor.IsGuildAdmin {
		return f.reply(ctx, "Only a server admin can edit the FAQ.")
	}
	rawTriggers, answer, found := strings.Cut(args, "|")
	answer = strings.TrimSpace(answer)
	if !found || answer == "" {
		return f.reply(ctx, "Usage: `faq add <trigger; trigger; ...> | <answer>`")
	}
	var triggers []string
	for _, t := range strings.Split(rawTriggers, ";") {
		if t = strings.TrimSpace(t); t != "" {
			triggers = append(triggers, t)
		}
	}
	if len(triggers) == 0 {
		return f.reply(ctx, "Give at least one trigger phrase.")
	}

	entries, err := f.store.FAQEntries(ctx.Actor.GuildID)
	if err != nil {
		return fmt.Errorf("failed to load faq entries: %w", err)
	}
	entries = append(entries, settings.FAQEntry{Triggers: triggers, Answer: answer})
	if err := f.store.SetFAQEntries(ctx.Actor.GuildID, entries); err != nil {
		return fmt.Errorf("failed to save faq entries: %w", err)
	}
	return f.reply(ctx, fmt.Sprintf("FAQ entry #%d added (%s).", len(entries), strings.Join(triggers, ", ")))
}

func (f *Feature) del(ctx *registry.MessageContext, args string) error {
	if !ctx.Actor.IsGuildAdmin {
		return f.reply(ctx, "Only a server admin can edit the FAQ.")
	}
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return f.reply(ctx, "Usage: `faq del <n>` with the number from `faq list`.")
	}
	entries, err := f.store.FAQEntries(ctx.Actor.GuildID)
	if err != nil {
		return fmt.Errorf("failed to load faq entries: %w", err)
	}
	if n < 1 || n > len(entries) {
		return f.reply(ctx, fmt.Sprintf("No FAQ entry #%d.", n))
	}
	removed := entries[n-1]
	entries = append(entries[:n-1], entries[n:]...)
	if err := f.store.SetFAQEntries(ctx.Actor.GuildID, entries); err != nil {
		return fmt.Errorf("failed to save faq entries: %w", err)
	}
	return f.reply(ctx, fmt.Sprintf("Removed FAQ entry (%s).", strings.Join(removed.Triggers, ", ")))
}

func (f *Feature) list(ctx *registry.MessageContext) error {
	entries, err := f.store.FAQEntries(ctx.Actor.GuildID)
	if err != nil {
		return fmt.Errorf("failed to load faq entries: %w", err)
	}
	if len(entries) == 0 {
		return f.reply(ctx, "The FAQ bank is empty.")
	}
	var b strings.Builder
	b.WriteString("FAQ entries:\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(e.Triggers, ", "))
	}
	return f.reply(ctx, b.String())
}
