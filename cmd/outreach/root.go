package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gazette_outreach/internal/app"
	"gazette_outreach/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Operate the insolvency notice outreach pipeline",
	Long: `outreach runs single pipeline steps and operator actions against the
outreach database. The daemon (outreachd) runs the same steps on a schedule.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// openApp loads the configuration and wires the engine. It returns the app
// and a function that releases it.
var openApp = func() (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.Open(cfg, app.NewLogger(cfg.LogLevel))
	if err != nil {
		return nil, nil, err
	}
	return a, func() { _ = a.Close() }, nil
}

type runFunc func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error

func withApp(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, release, err := openApp()
		if err != nil {
			return err
		}
		defer release()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return fn(ctx, a, cmd, args)
	}
}
