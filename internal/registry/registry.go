// Package registry is the single entry point that turns inbound Discord
// events (text messages, slash commands, components) into exactly one handler
// invocation, or a documented negative outcome. It owns the text-command
// table, the slash table, the component prefix routes, and the per-guild
// exposure policy that gates exposed commands.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// MessageContext is what a text-command handler receives. Rest is the text
// after the command token; Cmd is the exact prefix+name the user typed, so
// handlers can echo the right prefix back in usage strings.
type MessageContext struct {
	Session *discordgo.Session
	Message *discordgo.MessageCreate
	Actor   ActorContext
	Rest    string
	Cmd     string
}

// TextHandler handles a matched text command.
type TextHandler func(ctx *MessageContext) error

// Listener observes every inbound message regardless of command match.
type Listener func(ctx *MessageContext)

// InteractionContext is what slash, autocomplete, and component handlers
// receive. CustomID is set for component and modal interactions only.
type InteractionContext struct {
	Session  *discordgo.Session
	Event    *discordgo.InteractionCreate
	Actor    ActorContext
	CustomID string
}

// InteractionHandler handles a slash command or a routed component.
type InteractionHandler func(ctx *InteractionContext) error

// AutocompleteHandler resolves autocomplete choices for a slash command.
type AutocompleteHandler func(ctx *InteractionContext) ([]*discordgo.ApplicationCommandOptionChoice, error)

// TextOptions carries metadata for a text command.
type TextOptions struct {
	Aliases  []string
	Admin    bool
	Hidden   bool
	Category string
	HelpTier int
}

// SlashOptions carries metadata for a slash command.
type SlashOptions struct {
	Admin        bool
	Autocomplete AutocompleteHandler
}

// ExposedCommand describes a text command whose prefix and availability are
// controlled per guild by the exposure policy. Several surface names may
// share one logical id (e.g. trade-list shortcuts).
type ExposedCommand struct {
	LogicalID string
	Name      string
	Handler   TextHandler
	Help      string
	Opts      TextOptions
}

type textCommand struct {
	name      string // canonical
	logicalID string // empty for plain always-on commands
	exposed   bool
	handler   TextHandler
	help      string
	opts      TextOptions
}

type slashCommand struct {
	def          *discordgo.ApplicationCommand
	handler      InteractionHandler
	admin        bool
	autocomplete AutocompleteHandler
}

type componentRoute struct {
	prefix  string
	handler InteractionHandler
}

// Registry holds all routing tables. Registration happens during startup
// before the gateway opens; dispatch afterwards is read-only, so the tables
// need no locking.
type Registry struct {
	policy     *ExposurePolicy
	text       map[string]*textCommand // keyed by every surface name
	slash      map[string]*slashCommand
	components []componentRoute
	listeners  []Listener
}

// New builds an empty registry gated by the given exposure policy.
func New(policy *ExposurePolicy) *Registry {
	if policy == nil {
		policy = NewExposurePolicy(nil, nil)
	}
	return &Registry{
		policy: policy,
		text:   make(map[string]*textCommand),
		slash:  make(map[string]*slashCommand),
	}
}

// Policy returns the exposure policy the registry consults.
func (r *Registry) Policy() *ExposurePolicy { return r.policy }

// Register adds a plain always-on text command, skipping exposure checks
// entirely at dispatch time. Aliases in opts bind extra surface names to the
// same handler.
func (r *Registry) Register(name string, handler TextHandler, help string, opts TextOptions) {
	c := &textCommand{name: name, handler: handler, help: help, opts: opts}
	r.bindText(c, name, opts.Aliases)
}

// RegisterExposed adds a text command controlled by the exposure policy.
func (r *Registry) RegisterExposed(ec ExposedCommand) {
	if ec.LogicalID == "" {
		panic(fmt.Sprintf("registry: exposed command %q has no logical id", ec.Name))
	}
	c := &textCommand{
		name:      ec.Name,
		logicalID: ec.LogicalID,
		exposed:   true,
		handler:   ec.Handler,
		help:      ec.Help,
		opts:      ec.Opts,
	}
	r.bindText(c, ec.Name, ec.Opts.Aliases)
}

func (r *Registry) bindText(c *textCommand, name string, aliases []string) {
	for _, n := range append([]string{name}, aliases...) {
		n = strings.ToLower(n)
		if _, dup := r.text[n]; dup {
			panic(fmt.Sprintf("registry: duplicate text command name %q", n))
		}
		r.text[n] = c
	}
}

// RegisterSlash adds a slash command definition plus handler.
func (r *Registry) RegisterSlash(def *discordgo.ApplicationCommand, handler InteractionHandler, opts SlashOptions) {
	if _, dup := r.slash[def.Name]; dup {
		panic(fmt.Sprintf("registry: duplicate slash command %q", def.Name))
	}
	r.slash[def.Name] = &slashCommand{
		def:          def,
		handler:      handler,
		admin:        opts.Admin,
		autocomplete: opts.Autocomplete,
	}
}

// RegisterComponent routes component custom-ids starting with prefix to
// handler. At dispatch the longest matching prefix wins. Registering the same
// prefix twice is a deployment defect and panics immediately.
func (r *Registry) RegisterComponent(prefix string, handler InteractionHandler) {
	for _, route := range r.components {
		if route.prefix == prefix {
			panic(fmt.Sprintf("registry: duplicate component prefix %q", prefix))
		}
	}
	r.components = append(r.components, componentRoute{prefix: prefix, handler: handler})
	// Longest first so dispatch can take the first match.
	sort.SliceStable(r.components, func(i, j int) bool {
		return len(r.components[i].prefix) > len(r.components[j].prefix)
	})
}

// RegisterListener adds a passive observer invoked on every inbound message.
func (r *Registry) RegisterListener(fn Listener) {
	r.listeners = append(r.listeners, fn)
}

// SlashDefinitions returns all registered slash definitions, sorted by name,
// for gateway synchronization.
func (r *Registry) SlashDefinitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.slash))
	for _, c := range r.slash {
		defs = append(defs, c.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// CommandInfo is the help-facing view of a text command.
type CommandInfo struct {
	Name      string
	LogicalID string
	Help      string
	Aliases   []string
	Admin     bool
	Hidden    bool
	Category  string
	HelpTier  int
}

// Commands returns one entry per registered text command (aliases folded in),
// sorted by name.
func (r *Registry) Commands() []CommandInfo {
	seen := make(map[*textCommand]bool)
	var out []CommandInfo
	for _, c := range r.text {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, CommandInfo{
			Name:      c.name,
			LogicalID: c.logicalID,
			Help:      c.help,
			Aliases:   c.opts.Aliases,
			Admin:     c.opts.Admin,
			Hidden:    c.opts.Hidden,
			Category:  c.opts.Category,
			HelpTier:  c.opts.HelpTier,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LogicalID resolves a surface name to its logical id; plain commands return
// their own name. Used by the scheduler to validate targets at schedule time.
func (r *Registry) LogicalID(name string) (string, bool) {
	c, ok := r.text[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	if c.logicalID != "" {
		return c.logicalID, true
	}
	return c.name, true
}
