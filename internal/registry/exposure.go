package registry

import (
	"fmt"
	"slices"
)

// Mode says which prefix, if any, reaches an exposed command in a guild.
type Mode int

const (
	ModeBang     Mode = iota // reachable via "!" only
	ModeQuestion             // reachable via "?" only
	ModeOff                  // not reachable at all
)

func (m Mode) String() string {
	switch m {
	case ModeBang:
		return "bang"
	case ModeQuestion:
		return "question"
	case ModeOff:
		return "off"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a stored setting into a Mode, rejecting anything it does
// not recognize so malformed settings fail at load time.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "bang", "!":
		return ModeBang, nil
	case "question", "?":
		return ModeQuestion, nil
	case "off", "disabled":
		return ModeOff, nil
	}
	return ModeOff, fmt.Errorf("unknown exposure mode %q", s)
}

// Prefix returns the prefix character a mode accepts, or 0 for ModeOff.
func (m Mode) Prefix() byte {
	switch m {
	case ModeBang:
		return '!'
	case ModeQuestion:
		return '?'
	}
	return 0
}

// ChannelRule restricts an exposed command to (or away from) channels within
// one guild. An empty rule allows every channel.
type ChannelRule struct {
	Allow      []string `json:"allow,omitempty"`
	Deny       []string `json:"deny,omitempty"`
	Silent     bool     `json:"silent,omitempty"`
	NotifyText string   `json:"notify_text,omitempty"`
}

// Permits reports whether the rule lets the command run in channelID.
// A non-empty allow list is exhaustive; the deny list is checked either way.
func (r ChannelRule) Permits(channelID string) bool {
	if slices.Contains(r.Deny, channelID) {
		return false
	}
	if len(r.Allow) > 0 {
		return slices.Contains(r.Allow, channelID)
	}
	return true
}

// PolicySource supplies per-guild exposure state. The settings store
// implements it; tests use literals.
type PolicySource interface {
	// ExposureOverride returns the guild's override for a logical command,
	// if one is set.
	ExposureOverride(guildID, logicalID string) (Mode, bool)
	// ChannelRule returns the guild's channel policy for a logical command,
	// if one is set.
	ChannelRule(guildID, logicalID string) (ChannelRule, bool)
}

// Decision is the resolved exposure for one (guild, logical command, channel)
// triple, computed at dispatch time and never persisted.
type Decision struct {
	Mode           Mode
	ChannelAllowed bool
	Silent         bool
	NotifyText     string
}

// ExposurePolicy resolves exposure decisions. Precedence, most specific
// first: per-guild channel rule, per-guild mode override, global default,
// falling back to bang-only.
type ExposurePolicy struct {
	defaults map[string]Mode
	source   PolicySource
}

// NewExposurePolicy builds a policy over the given global defaults and
// per-guild source. Both may be nil.
func NewExposurePolicy(defaults map[string]Mode, source PolicySource) *ExposurePolicy {
	return &ExposurePolicy{defaults: defaults, source: source}
}

// Decide resolves the exposure for a logical command in a guild channel.
func (p *ExposurePolicy) Decide(guildID, logicalID, channelID string) Decision {
	d := Decision{Mode: ModeBang, ChannelAllowed: true}

	if m, ok := p.defaults[logicalID]; ok {
		d.Mode = m
	}
	if p.source != nil {
		if m, ok := p.source.ExposureOverride(guildID, logicalID); ok {
			d.Mode = m
		}
		if rule, ok := p.source.ChannelRule(guildID, logicalID); ok {
			d.ChannelAllowed = rule.Permits(channelID)
			d.Silent = rule.Silent
			d.NotifyText = rule.NotifyText
		}
	}
	return d
}
