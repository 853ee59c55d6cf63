package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/config"
	"github.com/bobuk/opscal/internal/notify"
	"github.com/bobuk/opscal/internal/services"
	"github.com/bobuk/opscal/internal/store"
)

var verbosityLevel int

// app bundles everything a command needs. Commands build it once, use it and
// close it.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	lg     *log.Logger
	deps   services.Deps
	events *services.EventService
	sync   *services.SyncService
	mayday *services.MaydayService
}

func loadConfig() *config.Config {
	cfg, err := config.Load(config.DefaultFilename)
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	verbosityLevel = cfg.VerbosityLevel
	return cfg
}

func openDB(cfg *config.Config) *sql.DB {
	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	return db
}

// newApp loads the configuration, opens the database and connects the
// configured calendar provider.
func newApp(ctx context.Context) *app {
	cfg := loadConfig()
	db := openDB(cfg)
	lg := log.New(os.Stderr, "", log.LstdFlags)

	client, err := calendar.NewClientFromConfig(ctx, cfg, store.NewOAuthTokensRepo(db), lg)
	if err != nil {
		db.Close()
		log.Fatalf("Error initializing calendar provider: %v", err)
	}

	renderer, err := notify.NewTemplateRenderer(cfg.Location())
	if err != nil {
		db.Close()
		log.Fatalf("Error loading message templates: %v", err)
	}

	var links *notify.Links
	if cfg.Mayday.TokenSecret != "" {
		links, err = notify.NewLinks(cfg.Mayday.BaseURL, cfg.Mayday.TokenSecret)
		if err != nil {
			db.Close()
			log.Fatalf("Error preparing customer links: %v", err)
		}
	} else {
		printVerbosely(1, "  ❗️ mayday.token_secret is not set, customer links are disabled\n")
	}

	deps := services.Deps{
		Events:   store.NewEventsRepo(db),
		Requests: store.NewWorkRequestsRepo(db),
		Queue:    store.NewEmailQueueRepo(db),
		Tokens:   store.NewTokensRepo(db),
		Calendar: client,
		Renderer: renderer,
		Links:    links,
		Logger:   lg,
	}
	settings := services.SettingsFromConfig(cfg)
	events := services.NewEventService(deps, settings)
	return &app{
		cfg:    cfg,
		db:     db,
		lg:     lg,
		deps:   deps,
		events: events,
		sync:   services.NewSyncService(deps, settings),
		mayday: services.NewMaydayService(deps, settings, events),
	}
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

func printVerbosely(verbosity int, format string, a ...interface{}) {
	// verbosityLevel is set in the config file
	// 0 - no output, other than critical errors
	// 1 - command summaries
	// 2 - per-event lines
	// 3 - everything
	if verbosity <= verbosityLevel {
		fmt.Printf(format, a...)
	}
}
