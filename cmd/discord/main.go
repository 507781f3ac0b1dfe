// cmd/discord/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spectreon/internal/commands/admin"
	"spectreon/internal/commands/auction"
	"spectreon/internal/commands/basic"
	"spectreon/internal/commands/bingo"
	"spectreon/internal/commands/calc"
	"spectreon/internal/commands/closestroll"
	"spectreon/internal/commands/dealornodeal"
	"spectreon/internal/commands/faq"
	"spectreon/internal/commands/giveaway"
	"spectreon/internal/commands/lotto"
	"spectreon/internal/commands/poll"
	"spectreon/internal/commands/tradelist"
	"spectreon/internal/commands/voltorb"
	"spectreon/internal/commands/wiki"
	"spectreon/internal/config"
	"spectreon/internal/discord"
	"spectreon/internal/forum"
	"spectreon/internal/registry"
	"spectreon/internal/scheduler"
	"spectreon/internal/session"
	"spectreon/internal/settings"
	"spectreon/internal/storage"
	v "spectreon/internal/version"

	"github.com/bwmarrin/discordgo"
)

// defaultModes is the global exposure baseline: games answer to `!`, info
// lookups answer to `?`. Guild admins override per guild with /cmd-expose.
var defaultModes = map[string]registry.Mode{
	"auction":      registry.ModeBang,
	"bingo":        registry.ModeBang,
	"closestroll":  registry.ModeBang,
	"dealornodeal": registry.ModeBang,
	"voltorb":      registry.ModeBang,
	"giveaway":     registry.ModeBang,
	"poll":         registry.ModeBang,
	"lotto":        registry.ModeBang,
	"ft":           registry.ModeBang,
	"faq":          registry.ModeQuestion,
	"wiki":         registry.ModeQuestion,
	"calc":         registry.ModeQuestion,
	"forum":        registry.ModeQuestion,
}

func main() {
	log.Printf("[INFO] Starting %v %v...", v.AppName, v.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	guilds, err := settings.New(cfg.SettingsPath)
	if err != nil {
		log.Fatal(err)
	}
	defer guilds.Close()
	if err := guilds.Validate(); err != nil {
		log.Fatal(err)
	}

	store, err := storage.Open(cfg.MySQLDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	clock := session.SystemClock()
	reg := registry.New(registry.NewExposurePolicy(defaultModes, guilds))

	basic.Register(reg)
	admin.Register(reg, guilds)
	lotto.Register(reg, store, cfg.LottoMinMessages)
	tradelist.New(reg, guilds)
	faq.New(reg, guilds)
	wiki.New(reg, wiki.NewHTTPClient(cfg.WikiBaseURL))
	calc.New(reg)
	forum.RegisterCommands(reg, forum.New(cfg.ForumBaseURL, forum.RSSParser{}))

	auction.New(reg, clock)
	bingo.New(reg, clock)
	closestroll.New(reg, clock)
	dealornodeal.New(reg, clock)
	voltorb.New(reg, clock)
	ga := giveaway.New(reg, store, clock)
	pl := poll.New(reg, store, clock)

	sched := scheduler.New(store, reg, clock)
	scheduler.RegisterCommands(reg, sched)

	bot := discord.New(cfg, reg)
	bot.OnReady(func(s *discordgo.Session) {
		sched.Bind(s)
		if err := sched.Reconcile(ctx); err != nil {
			log.Printf("[ERR] Scheduler reconcile failed: %v", err)
		}
		if err := ga.Reconcile(ctx, s); err != nil {
			log.Printf("[ERR] Giveaway reconcile failed: %v", err)
		}
		if err := pl.Reconcile(ctx, s); err != nil {
			log.Printf("[ERR] Poll reconcile failed: %v", err)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("[INFO] Received signal %s, shutting down...", s)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Println("[ERR] Discord bot error:", err)
		}
		cancel()
	}

	log.Println("[DONE] Shutdown complete.")
}
