package registry

import (
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Inbound is one text message offered to the dispatcher. A dry run carries no
// Session or Message: it exists purely so callers like the scheduler can ask
// "would this still be allowed" and get the same decision real dispatch makes.
type Inbound struct {
	Actor   ActorContext
	Content string
	DryRun  bool
	Session *discordgo.Session
	Message *discordgo.MessageCreate
}

// DispatchMessage routes one text message: listeners first, then prefix
// parsing, lookup, privilege and exposure gates, and finally the handler.
// Handler failures are contained here and reported as ReasonHandlerError;
// nothing a handler does may take down the gateway loop.
func (r *Registry) DispatchMessage(in Inbound) Outcome {
	if !in.DryRun {
		for _, fn := range r.listeners {
			fn(&MessageContext{
				Session: in.Session,
				Message: in.Message,
				Actor:   in.Actor,
			})
		}
	}

	prefix, token, rest := splitCommand(in.Content)
	if prefix == 0 {
		return Outcome{Reason: ReasonNoPrefix}
	}

	c, ok := r.text[token]
	if !ok {
		return Outcome{Reason: ReasonUnknownCommand}
	}

	out := Outcome{LogicalID: c.logicalID, Canonical: string(prefix) + c.name}
	if !c.exposed {
		out.LogicalID = c.name
	}

	if c.opts.Admin && !in.Actor.IsGuildAdmin {
		out.Reason = ReasonAdminOnly
		out.Notify = "You need to be a server admin to use that."
		return out
	}

	if c.exposed {
		d := r.policy.Decide(in.Actor.GuildID, c.logicalID, in.Actor.ChannelID)
		out.Canonical = string(d.Mode.Prefix()) + c.name
		switch {
		case d.Mode == ModeOff:
			out.Reason = ReasonExposureOff
			out.Canonical = ""
			return out
		case d.Mode.Prefix() != prefix:
			out.Reason = ReasonWrongPrefix
			return out
		case !d.ChannelAllowed:
			out.Reason = ReasonChannelBlocked
			if !d.Silent {
				out.Notify = d.NotifyText
				if out.Notify == "" {
					out.Notify = fmt.Sprintf("`%s` can't be used in this channel.", out.Canonical)
				}
			}
			return out
		}
	}

	if in.DryRun {
		out.Reason = ReasonAllowed
		return out
	}

	err := r.runText(c, &MessageContext{
		Session: in.Session,
		Message: in.Message,
		Actor:   in.Actor,
		Rest:    rest,
		Cmd:     string(prefix) + token,
	})
	if err != nil {
		log.Printf("[ERR] [%s] Command %s failed: %v", in.Actor.GuildID, out.Canonical, err)
		out.Reason = ReasonHandlerError
		out.Notify = "Something went wrong running that command."
		out.Err = err
		return out
	}
	out.Reason = ReasonHandled
	return out
}

// runText invokes a handler, converting panics into errors so a buggy
// handler cannot crash the process.
func (r *Registry) runText(c *textCommand, ctx *MessageContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return c.handler(ctx)
}

// splitCommand peels the prefix, the lowercased command token, and the rest
// of the line off a raw message. prefix is 0 when the message is not a
// command at all.
func splitCommand(content string) (prefix byte, token, rest string) {
	content = strings.TrimSpace(content)
	if len(content) < 2 || (content[0] != '!' && content[0] != '?') {
		return 0, "", ""
	}
	prefix = content[0]
	body := content[1:]
	if i := strings.IndexByte(body, ' '); i >= 0 {
		token, rest = body[:i], strings.TrimSpace(body[i+1:])
	} else {
		token = body
	}
	return prefix, strings.ToLower(token), rest
}
