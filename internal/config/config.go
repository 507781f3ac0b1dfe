// Package config loads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`
	MySQLDSN     string `env:"MYSQL_DSN,notEmpty"`
	SettingsPath string `env:"SETTINGS_PATH" envDefault:"data/settings.json"`

	// InitSlashCommands can be turned off to skip slash sync on startup
	// during local iteration.
	InitSlashCommands bool `env:"INIT_SLASH_COMMANDS" envDefault:"true"`

	// WikiBaseURL is the MediaWiki API endpoint used by the wiki lookup.
	WikiBaseURL string `env:"WIKI_BASE_URL" envDefault:"https://wiki.p-insurgence.com/w/api.php"`

	// ForumBaseURL is the forum root the scraper walks.
	ForumBaseURL string `env:"FORUM_BASE_URL" envDefault:"https://thepokemoninsurgence.com/forums"`

	// LottoMinMessages is how many counted messages make a user
	// lotto-eligible.
	LottoMinMessages int64 `env:"LOTTO_MIN_MESSAGES" envDefault:"50"`
}

// Load reads .env (when present) and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, using system environment")
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
