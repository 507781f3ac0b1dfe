package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"

	"github.com/bwmarrin/discordgo"
)

// RegisterCommands wires the admin-facing slash surface: /schedule,
// /schedule-list, /schedule-cancel.
func RegisterCommands(reg *registry.Registry, sched *Scheduler) {
	reg.RegisterSlash(&discordgo.ApplicationCommand{
		Name:        "schedule",
		Description: "Run a text command later in this channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "command",
				Description: "Full command text, prefix included (e.g. !giveaway Master Ball 1h)",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "in",
				Description: "How long from now, e.g. 30m, 2h, 1h30m",
				Required:    true,
			},
		},
	}, func(ic *registry.InteractionContext) error {
		return handleSchedule(ic, sched)
	}, registry.SlashOptions{Admin: true})

	reg.RegisterSlash(&discordgo.ApplicationCommand{
		Name:        "schedule-list",
		Description: "List this server's pending scheduled commands",
	}, func(ic *registry.InteractionContext) error {
		return handleScheduleList(ic, sched)
	}, registry.SlashOptions{Admin: true})

	reg.RegisterSlash(&discordgo.ApplicationCommand{
		Name:        "schedule-cancel",
		Description: "Cancel a pending scheduled command",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionInteger,
				Name:         "id",
				Description:  "Which scheduled command to cancel",
				Required:     true,
				Autocomplete: true,
			},
		},
	}, func(ic *registry.InteractionContext) error {
		return handleScheduleCancel(ic, sched)
	}, registry.SlashOptions{
		Admin:        true,
		Autocomplete: func(ic *registry.InteractionContext) ([]*discordgo.ApplicationCommandOptionChoice, error) {
			return pendingChoices(ic, sched)
		},
	})
}

func handleSchedule(ic *registry.InteractionContext, sched *Scheduler) error {
	command := strings.TrimSpace(discord.OptionString(ic.Event, "command"))
	rawIn := discord.OptionString(ic.Event, "in")
	in, err := time.ParseDuration(rawIn)
	if err != nil {
		discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("I can't read `%s` as a duration. Try `30m`, `2h`, `1h30m`.", rawIn))
		return nil
	}
	if in <= 0 {
		discord.RespondEphemeral(ic.Session, ic.Event, "The delay has to be in the future.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runAt := sched.clock.Now().Add(in)
	rec, err := sched.Schedule(ctx, ic.Actor, ic.Actor.ChannelID, command, runAt)
	if err != nil {
		discord.RespondEphemeral(ic.Session, ic.Event, "Couldn't schedule that: "+err.Error())
		return nil
	}
	discord.RespondEphemeral(ic.Session, ic.Event,
		fmt.Sprintf("Scheduled #%d: `%s` will run here <t:%d:R>.", rec.ID, rec.Command, runAt.Unix()))
	return nil
}

func handleScheduleList(ic *registry.InteractionContext, sched *Scheduler) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := sched.Pending(ctx, ic.Actor.GuildID)
	if err != nil {
		return fmt.Errorf("failed to list scheduled commands: %w", err)
	}
	if len(rows) == 0 {
		discord.RespondEphemeral(ic.Session, ic.Event, "Nothing is scheduled for this server.")
		return nil
	}

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "`#%d` `%s` in <#%s> <t:%d:R> (by <@%s>)\n",
			r.ID, r.Command, r.ChannelID, r.RunAt/1000, r.CreatorID)
	}
	return discord.RespondEmbedEphemeral(ic.Session, ic.Event, &discordgo.MessageEmbed{
		Title:       "Scheduled commands",
		Description: b.String(),
	})
}

func handleScheduleCancel(ic *registry.InteractionContext, sched *Scheduler) error {
	id := discord.OptionInt(ic.Event, "id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sched.Cancel(ctx, ic.Actor.GuildID, id); err != nil {
		discord.RespondEphemeral(ic.Session, ic.Event, "Couldn't cancel that: "+err.Error())
		return nil
	}
	discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("Canceled scheduled command #%d.", id))
	return nil
}

func pendingChoices(ic *registry.InteractionContext, sched *Scheduler) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rows, err := sched.Pending(ctx, ic.Actor.GuildID)
	if err != nil {
		return nil, err
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(rows))
	for _, r := range rows {
		if len(choices) == 25 {
			break // Discord's choice cap
		}
		label := fmt.Sprintf("#%d %s", r.ID, r.Command)
		if len(label) > 100 {
			label = label[:97] + "..."
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: label, Value: r.ID})
	}
	return choices, nil
}
