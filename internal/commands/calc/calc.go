// Package calc is the stat calculator: given a base stat, level, IVs, EVs,
// and a nature, it computes the in-game stat value with the standard
// main-series formulas.
package calc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"spectreon/internal/discord"
	"spectreon/internal/registry"

	"github.com/bwmarrin/discordgo"
)

// Nature multipliers.
const (
	NatureNeutral = 10 // stored as tenths to keep the math integral
	NaturePlus    = 11
	NatureMinus   = 9
)

// HPStat computes the HP stat.
func HPStat(base, iv, ev, level int) int {
	return (2*base+iv+ev/4)*level/100 + level + 10
}

// OtherStat computes any non-HP stat. natureTenths is 9, 10, or 11.
func OtherStat(base, iv, ev, level, natureTenths int) int {
	raw := (2*base+iv+ev/4)*level/100 + 5
	return raw * natureTenths / 10
}

// Input is one parsed calculator request.
type Input struct {
	Stat   string // "hp" or anything else
	Base   int
	Level  int
	IV     int
	EV     int
	Nature int // tenths
}

// Parse reads "hp 80 50 iv=31 ev=252 nature=+" style arguments. Stat and
// base are required; level defaults to 100, IV to 31, EV to 0, nature to
// neutral.
func Parse(args string) (Input, error) {
	in := Input{Level: 100, IV: 31, Nature: NatureNeutral}
	fields := strings.Fields(strings.ToLower(args))
	if len(fields) < 2 {
		return in, fmt.Errorf("need at least a stat and a base value")
	}

	in.Stat = fields[0]
	base, err := strconv.Atoi(fields[1])
	if err != nil || base < 1 || base > 255 {
		return in, fmt.Errorf("base stat must be 1-255, got %q", fields[1])
	}
	in.Base = base

	for _, f := range fields[2:] {
		key, val, found := strings.Cut(f, "=")
		if !found {
			// Bare number is the level.
			key, val = "level", f
		}
		switch key {
		case "level", "lvl":
			in.Level, err = parseRange(val, 1, 100, "level")
		case "iv":
			in.IV, err = parseRange(val, 0, 31, "iv")
		case "ev":
			in.EV, err = parseRange(val, 0, 252, "ev")
		case "nature":
			switch val {
			case "+", "plus", "boost":
				in.Nature = NaturePlus
			case "-", "minus", "hinder":
				in.Nature = NatureMinus
			case "neutral":
				in.Nature = NatureNeutral
			default:
				err = fmt.Errorf("nature must be +, -, or neutral, got %q", val)
			}
		default:
			err = fmt.Errorf("unknown argument %q", f)
		}
		if err != nil {
			return in, err
		}
	}
	return in, nil
}

func parseRange(val string, lo, hi int, name string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %q", name, lo, hi, val)
	}
	return n, nil
}

// Compute evaluates a parsed request.
func Compute(in Input) int {
	if in.Stat == "hp" {
		return HPStat(in.Base, in.IV, in.EV, in.Level)
	}
	return OtherStat(in.Base, in.IV, in.EV, in.Level, in.Nature)
}

// Feature wires the calc command into a registry.
type Feature struct {
	mu  sync.Mutex
	say func(channelID, text string)
}

// New registers the calc command.
func New(reg *registry.Registry) *Feature {
	f := &Feature{}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "calc",
		Name:      "calc",
		Handler:   f.handle,
		Help:      "Stat calculator: `calc <stat> <base> [level] [iv=31] [ev=0] [nature=+/-]`",
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
	in, err := Parse(ctx.Rest)
	if err != nil {
		return f.reply(ctx, fmt.Sprintf("%s. Try `calc hp 80 50 iv=31 ev=252`.", capitalize(err.Error())))
	}
	value := Compute(in)
	return f.reply(ctx, fmt.Sprintf(
		"**%s** with base %d at level %d (IV %d, EV %d) = **%d**",
		strings.ToUpper(in.Stat), in.Base, in.Level, in.IV, in.EV, value))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
