package registry

// ActorContext identifies who triggered an event and where. It is built once
// at the gateway boundary and passed unchanged through dispatch, so handlers
// never re-derive identity or permissions from raw platform payloads.
type ActorContext struct {
	GuildID      string
	ChannelID    string
	UserID       string
	Username     string
	IsGuildAdmin bool
}
