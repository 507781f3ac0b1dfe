package discord

import "github.com/bwmarrin/discordgo"

// Options flattens a slash interaction's options for lookup by name.
func Options(e *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	for _, o := range e.ApplicationCommandData().Options {
		out[o.Name] = o
	}
	return out
}

// OptionString returns a string option's value, or "" when absent.
func OptionString(e *discordgo.InteractionCreate, name string) string {
	if o, ok := Options(e)[name]; ok {
		return o.StringValue()
	}
	return ""
}

// OptionInt returns an integer option's value, or 0 when absent.
func OptionInt(e *discordgo.InteractionCreate, name string) int64 {
	if o, ok := Options(e)[name]; ok {
		return o.IntValue()
	}
	return 0
}
