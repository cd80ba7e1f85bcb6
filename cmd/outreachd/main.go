package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gazette_outreach/internal/app"
	"gazette_outreach/internal/bot"
	"gazette_outreach/internal/config"
	"gazette_outreach/internal/httpapi"
	"gazette_outreach/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg.LogLevel)

	a, err := app.Open(cfg, log)
	if err != nil {
		log.Error("start", "error", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var poller scheduler.Poller
	if a.Watcher != nil {
		poller = a.Watcher
	}
	sched := scheduler.New(a.Engine, poller, cfg, log)

	var wg sync.WaitGroup

	if a.Telegram != nil {
		b := bot.New(a.Telegram, a.Engine, a.Store, cfg, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(ctx)
		}()
		log.Info("telegram bot started")
	}

	if cfg.HTTP.ListenAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.ListenAddr,
			Handler:           httpapi.New(a.Store, a.Engine, cfg.Rules.Location, log).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server", "error", err)
				cancel()
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("http api listening", "addr", cfg.HTTP.ListenAddr)
	}

	log.Info("starting outreach daemon",
		"dry_run", cfg.Rules.DryRun,
		"require_approval", cfg.Rules.RequireApproval,
		"inbox", a.Watcher != nil,
	)

	if err := sched.Run(ctx); err != nil {
		log.Error("scheduler", "error", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}

	wg.Wait()
	log.Info("outreach daemon stopped")
}
