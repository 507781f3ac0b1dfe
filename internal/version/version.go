// Package version carries build identity, overridable via ldflags.
package version

var (
	AppName = "Spectreon"
	// Version is set at build time:
	// go build -ldflags "-X spectreon/internal/version.Version=1.2.0" ./cmd/discord
	Version = "dev"
)
