package registry

import (
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// DispatchInteraction routes a slash command, autocomplete request, component
// click, or modal submit. Like DispatchMessage it never lets a handler
// failure escape; the caller delivers Outcome.Notify when set.
func (r *Registry) DispatchInteraction(s *discordgo.Session, e *discordgo.InteractionCreate, actor ActorContext) Outcome {
	switch e.Type {
	case discordgo.InteractionApplicationCommand:
		return r.dispatchSlash(s, e, actor)
	case discordgo.InteractionApplicationCommandAutocomplete:
		return r.dispatchAutocomplete(s, e, actor)
	case discordgo.InteractionMessageComponent:
		return r.dispatchComponent(s, e, actor, e.MessageComponentData().CustomID)
	case discordgo.InteractionModalSubmit:
		return r.dispatchComponent(s, e, actor, e.ModalSubmitData().CustomID)
	}
	return Outcome{Reason: ReasonUnknownCommand}
}

func (r *Registry) dispatchSlash(s *discordgo.Session, e *discordgo.InteractionCreate, actor ActorContext) Outcome {
	name := e.ApplicationCommandData().Name
	c, ok := r.slash[name]
	if !ok {
		return Outcome{Reason: ReasonUnknownCommand}
	}
	out := Outcome{LogicalID: name, Canonical: "/" + name}

	// Privilege is re-checked at invocation, not only at registration:
	// roles can change between the two.
	if c.admin && !actor.IsGuildAdmin {
		out.Reason = ReasonAdminOnly
		out.Notify = "You need to be a server admin to use that."
		return out
	}

	if err := r.runInteraction(c.handler, &InteractionContext{Session: s, Event: e, Actor: actor}); err != nil {
		log.Printf("[ERR] [%s] Slash /%s failed: %v", actor.GuildID, name, err)
		out.Reason = ReasonHandlerError
		out.Notify = "Something went wrong running that command."
		out.Err = err
		return out
	}
	out.Reason = ReasonHandled
	return out
}

func (r *Registry) dispatchAutocomplete(s *discordgo.Session, e *discordgo.InteractionCreate, actor ActorContext) Outcome {
	name := e.ApplicationCommandData().Name
	c, ok := r.slash[name]
	if !ok || c.autocomplete == nil {
		return Outcome{Reason: ReasonUnknownCommand}
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	if !c.admin || actor.IsGuildAdmin {
		var err error
		choices, err = c.autocomplete(&InteractionContext{Session: s, Event: e, Actor: actor})
		if err != nil {
			log.Printf("[WARN] [%s] Autocomplete for /%s failed: %v", actor.GuildID, name, err)
			choices = nil
		}
	}
	// A privilege failure yields an empty suggestion list, never an error.
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}

	err := s.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		log.Printf("[WARN] [%s] Autocomplete response for /%s failed: %v", actor.GuildID, name, err)
	}
	return Outcome{Reason: ReasonHandled, LogicalID: name}
}

func (r *Registry) dispatchComponent(s *discordgo.Session, e *discordgo.InteractionCreate, actor ActorContext, customID string) Outcome {
	// components is sorted longest-prefix first, so the first hit is the
	// most specific handler.
	for _, route := range r.components {
		if !strings.HasPrefix(customID, route.prefix) {
			continue
		}
		out := Outcome{LogicalID: route.prefix, Canonical: customID}
		err := r.runInteraction(route.handler, &InteractionContext{
			Session:  s,
			Event:    e,
			Actor:    actor,
			CustomID: customID,
		})
		if err != nil {
			log.Printf("[ERR] [%s] Component %s failed: %v", actor.GuildID, customID, err)
			out.Reason = ReasonHandlerError
			out.Notify = "Something went wrong handling that."
			out.Err = err
			return out
		}
		out.Reason = ReasonHandled
		return out
	}
	log.Printf("[WARN] [%s] No component route for custom id %q", actor.GuildID, customID)
	return Outcome{Reason: ReasonUnknownCommand}
}

func (r *Registry) runInteraction(h InteractionHandler, ctx *InteractionContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx)
}
