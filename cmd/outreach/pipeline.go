package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gazette_outreach/internal/app"
	"gazette_outreach/internal/bot"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/outreach"
	"gazette_outreach/internal/storage"
)

var (
	runSince      string
	summaryDate   string
	summaryNotify bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, enrich and qualify new notices",
	Long: `run fetches the notices published since --since (default: the configured
lookback), enriches and scores the new ones and queues those that pass the
qualification gates.

Examples:
  outreach run
  outreach run --since 2026-03-01`,
	Args: cobra.NoArgs,
	RunE: withApp(runIngest),
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send the queued emails that are due",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
		res, err := a.Engine.SendDue(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Send pass: %s.\n", res)
		return nil
	}),
}

var followupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Send the follow-ups that are due and expire finished contacts",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
		res, err := a.Engine.FollowUpDue(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Follow-up pass: %s.\n", res)
		return nil
	}),
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Poll the inbox once for replies and bounces",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
		if a.Watcher == nil {
			return errors.New("no inbox configured, set IMAP_ADDR and IMAP_USER")
		}
		res, err := a.Watcher.Poll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Inbox: fetched %d, matched %d (replies %d, auto-replies %d, bounces %d), failed %d, unparsed %d.\n",
			res.Fetched, res.Matched, res.Replies, res.Auto, res.Bounces, res.Failed, res.Unparsed)
		return nil
	}),
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the daily summary",
	Long: `summary recomputes and prints today's summary, or prints the stored
summary of an earlier --date. With --notify today's summary is also sent to
the operator chat.`,
	Args: cobra.NoArgs,
	RunE: withApp(runSummary),
}

func init() {
	rootCmd.AddCommand(runCmd, sendCmd, followupsCmd, inboxCmd, summaryCmd)

	runCmd.Flags().StringVar(&runSince, "since", "", "Fetch notices published since this date (YYYY-MM-DD)")
	summaryCmd.Flags().StringVarP(&summaryDate, "date", "d", "", "Summary date (YYYY-MM-DD), default today")
	summaryCmd.Flags().BoolVar(&summaryNotify, "notify", false, "Also send today's summary to the operator chat")
}

func runIngest(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	loc := a.Engine.Rules().Location
	since := time.Now().AddDate(0, 0, -max(a.Config.Gazette.LookbackDays, 1))
	if runSince != "" {
		t, err := time.ParseInLocation(time.DateOnly, runSince, loc)
		if err != nil {
			return fmt.Errorf("invalid --since %q, use YYYY-MM-DD", runSince)
		}
		since = t
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Fetching notices since %s...\n", since.In(loc).Format(time.DateOnly))
	res, err := a.Engine.Ingest(ctx, since)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingest done: %s.\n", res)
	return nil
}

func runSummary(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	loc := a.Engine.Rules().Location
	now := time.Now()
	date, err := bot.ParseDateArg(summaryDate, now, loc)
	if err != nil {
		return err
	}

	if date == now.In(loc).Format(time.DateOnly) {
		refresh := a.Engine.RefreshSummary
		if summaryNotify {
			refresh = func(ctx context.Context, _ time.Time) (model.DailySummary, error) {
				return a.Engine.ReportSummary(ctx)
			}
		}
		s, err := refresh(ctx, now)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), outreach.FormatSummary(s))
		return nil
	}
	if summaryNotify {
		return errors.New("--notify only applies to today's summary")
	}

	s, err := a.Store.GetSummary(ctx, date)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no summary for %s", date)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), outreach.FormatSummary(*s))
	return nil
}
