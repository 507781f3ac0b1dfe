package registry

// Reason classifies the result of a dispatch attempt. Negative outcomes are
// ordinary values, not errors: callers like the scheduler need to tell
// "command no longer allowed" apart from "something broke" without parsing
// message text.
type Reason string

const (
	// ReasonHandled means a handler ran (and returned nil).
	ReasonHandled Reason = "handled"
	// ReasonAllowed means a dry run passed every gate; the handler was not invoked.
	ReasonAllowed Reason = "allowed"
	// ReasonNoPrefix means the message did not start with a command prefix.
	ReasonNoPrefix Reason = "no_prefix"
	// ReasonUnknownCommand means no command is registered under the token.
	ReasonUnknownCommand Reason = "unknown_command"
	// ReasonWrongPrefix means the command exists but was invoked with the
	// prefix its guild exposure does not accept.
	ReasonWrongPrefix Reason = "wrong_prefix"
	// ReasonExposureOff means the command is disabled for the guild.
	ReasonExposureOff Reason = "exposure_off"
	// ReasonChannelBlocked means the guild's channel policy rejects this channel.
	ReasonChannelBlocked Reason = "channel_blocked"
	// ReasonAdminOnly means the actor lacks the required privilege.
	ReasonAdminOnly Reason = "admin_only"
	// ReasonHandlerError means the handler ran and failed.
	ReasonHandlerError Reason = "handler_error"
)

// Outcome is what every dispatch returns. Notify, when non-empty, is a
// user-visible denial the caller should deliver to the origin channel;
// silent denials leave it empty.
type Outcome struct {
	Reason    Reason
	LogicalID string
	Canonical string // exact prefix+name the command resolves to, e.g. "!auction"
	Notify    string
	Err       error
}

// OK reports whether the dispatch reached (or, for a dry run, would reach)
// the handler.
func (o Outcome) OK() bool {
	return o.Reason == ReasonHandled || o.Reason == ReasonAllowed
}
