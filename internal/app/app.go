// Package app wires the outreach engine and its collaborators from the
// configuration. The daemon and the operator CLI share it.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gazette_outreach/internal/bot"
	"gazette_outreach/internal/config"
	"gazette_outreach/internal/gazette"
	"gazette_outreach/internal/mailer"
	"gazette_outreach/internal/outreach"
	"gazette_outreach/internal/registry"
	"gazette_outreach/internal/replies"
	"gazette_outreach/internal/storage"
	"gazette_outreach/internal/website"
)

const websiteTimeout = 10 * time.Second

// App holds the wired components.
type App struct {
	Config *config.Config
	Log    *slog.Logger
	Store  *storage.SQLite
	Engine *outreach.Engine
	// Watcher is nil when no inbox is configured.
	Watcher *replies.Watcher
	// Telegram is nil when no bot token is configured.
	Telegram bot.API
}

// Open opens the database and builds the engine.
func Open(cfg *config.Config, log *slog.Logger) (*App, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." && cfg.DatabasePath != ":memory:" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}

	tmpl, err := mailer.NewTemplates()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	a := &App{Config: cfg, Log: log, Store: store}

	deps := outreach.Deps{
		Store:    store,
		Renderer: tmpl,
	}

	client := &http.Client{Timeout: cfg.Registry.Timeout}
	deps.Source = gazette.New(client, cfg.Gazette.FeedBase, log)

	checker := website.NewChecker(&http.Client{Timeout: websiteTimeout}, log)
	var lookup registry.Lookuper
	if cfg.Registry.APIKey != "" {
		rc := registry.NewClient(client, cfg.Registry.BaseURL, cfg.Registry.APIKey, log)
		lookup = rc
		deps.Status = rc
	} else {
		log.Warn("no registry API key, notices are scored without company data")
	}
	deps.Enricher = registry.NewEnricher(lookup, checker, log)

	if cfg.Rules.DryRun {
		deps.Transport = mailer.NewDryRun(log)
	} else {
		deps.Transport = mailer.NewSMTP(cfg.SMTP, log)
	}

	if cfg.Telegram.BotToken != "" {
		api, err := bot.NewAPI(cfg.Telegram.BotToken)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.Telegram = api
		if cfg.Telegram.OperatorChatID != 0 {
			deps.Notifier = bot.NewNotifier(api, cfg.Telegram.OperatorChatID)
		}
	}

	a.Engine = outreach.New(cfg.Rules, cfg.Sender, deps, log)

	if cfg.IMAP.Enabled() {
		a.Watcher = replies.NewWatcher(cfg.IMAP, a.Engine, log)
	}
	return a, nil
}

// Close closes the database.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewLogger builds the text logger for the given level name.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
