// Package discord wires the gateway to the command registry: it builds one
// ActorContext per inbound event, hands the event to dispatch, and delivers
// whatever denial or failure notice the outcome carries. Nothing below this
// package touches raw gateway payloads for identity or permissions.
package discord

import (
	"context"
	"fmt"
	"log"

	"spectreon/internal/config"
	"spectreon/internal/registry"

	"github.com/bwmarrin/discordgo"
)

// ReadyHook runs once the gateway reports ready, with the live session.
// Feature modules use it to reconcile durable state and re-arm timers.
type ReadyHook func(s *discordgo.Session)

// Bot owns the gateway session.
type Bot struct {
	dg  *discordgo.Session
	cfg *config.Config
	reg *registry.Registry

	readyHooks []ReadyHook
}

// New builds a bot around an already-populated registry.
func New(cfg *config.Config, reg *registry.Registry) *Bot {
	return &Bot{cfg: cfg, reg: reg}
}

// OnReady registers a hook to run when the gateway is ready.
func (b *Bot) OnReady(h ReadyHook) {
	b.readyHooks = append(b.readyHooks, h)
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.dg = dg

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onGuildCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	log.Println("[INFO] Shutdown signal received. Cleaning up...")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if b.cfg.InitSlashCommands {
		for _, g := range r.Guilds {
			if err := b.syncCommands(g.ID); err != nil {
				log.Printf("[ERR] [%s] Slash sync failed: %v", g.ID, err)
			}
		}
	} else {
		log.Println("[INFO] Slash command sync skipped")
	}

	for _, hook := range b.readyHooks {
		hook(s)
	}

	log.Printf("[INFO] Bot %s is running across %d guild(s).", s.State.User.Username, len(r.Guilds))
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log.Printf("[INFO] Joined guild: %s (%s)", g.Guild.ID, g.Guild.Name)
	if b.cfg.InitSlashCommands {
		if err := b.syncCommands(g.Guild.ID); err != nil {
			log.Printf("[ERR] [%s] Slash sync failed: %v", g.Guild.ID, err)
		}
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if m.GuildID == "" {
		return // DMs carry no guild policy; commands are guild-facing
	}

	out := b.reg.DispatchMessage(registry.Inbound{
		Actor:   b.messageActor(s, m),
		Content: m.Content,
		Session: s,
		Message: m,
	})
	if out.Notify != "" {
		if _, err := s.ChannelMessageSendReply(m.ChannelID, out.Notify, m.Reference()); err != nil {
			log.Printf("[WARN] [%s] Failed to deliver notice: %v", m.GuildID, err)
		}
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	actor := b.interactionActor(s, i)
	out := b.reg.DispatchInteraction(s, i, actor)
	if out.Notify != "" {
		// The handler never ran (denial) or failed before responding; an
		// ephemeral notice is the best effort either way.
		RespondEphemeral(s, i, out.Notify)
	}
}

func (b *Bot) messageActor(s *discordgo.Session, m *discordgo.MessageCreate) registry.ActorContext {
	username := ""
	if m.Author != nil {
		username = m.Author.Username
	}
	return registry.ActorContext{
		GuildID:      m.GuildID,
		ChannelID:    m.ChannelID,
		UserID:       m.Author.ID,
		Username:     username,
		IsGuildAdmin: isGuildAdmin(s, m.GuildID, m.Member, m.Author.ID),
	}
}

func (b *Bot) interactionActor(s *discordgo.Session, i *discordgo.InteractionCreate) registry.ActorContext {
	var userID, username string
	if i.Member != nil && i.Member.User != nil {
		userID, username = i.Member.User.ID, i.Member.User.Username
	} else if i.User != nil {
		userID, username = i.User.ID, i.User.Username
	}
	return registry.ActorContext{
		GuildID:      i.GuildID,
		ChannelID:    i.ChannelID,
		UserID:       userID,
		Username:     username,
		IsGuildAdmin: isGuildAdmin(s, i.GuildID, i.Member, userID),
	}
}
