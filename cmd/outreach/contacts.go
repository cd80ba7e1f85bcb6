package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gazette_outreach/internal/app"
	"gazette_outreach/internal/bot"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/outreach"
	"gazette_outreach/internal/storage"
)

var blockReason string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show contact counts, today's sends and holds",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
		o, err := a.Engine.Overview(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), bot.FormatOverview(o, a.Engine.Rules().Location))
		return nil
	}),
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the contacts waiting to be sent",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
		cs, err := a.Store.ListContacts(ctx, storage.ContactFilter{Statuses: []model.Status{model.StatusQueued}})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), bot.FormatQueue(cs, a.Engine.Rules().Location))
		return nil
	}),
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Allow a queued contact to be sent",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		id, err := bot.ParseIDArg(args[0])
		if err != nil {
			return err
		}
		c, err := a.Engine.Approve(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Contact #%d approved: %s at %s.\n", c.ID, c.Email, c.CompanyName)
		return nil
	}),
}

var releaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Release a held contact back into the queue",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		id, err := bot.ParseIDArg(args[0])
		if err != nil {
			return err
		}
		c, err := a.Engine.Release(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Contact #%d released and back in the queue.\n", c.ID)
		return nil
	}),
}

var replyCmd = &cobra.Command{
	Use:   "reply <id>",
	Short: "Record a reply received outside the watched inbox",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		return transition(ctx, a, cmd.OutOrStdout(), args[0], outreach.EventReply)
	}),
}

var transitionCmd = &cobra.Command{
	Use:       "transition <id> meeting|won|lost",
	Short:     "Record a meeting or close a contact as won or lost",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(outreach.EventMeeting), string(outreach.EventWon), string(outreach.EventLost)},
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		ev, err := parseManualEvent(args[1])
		if err != nil {
			return err
		}
		return transition(ctx, a, cmd.OutOrStdout(), args[0], ev)
	}),
}

var blockCmd = &cobra.Command{
	Use:   "block <email|domain>",
	Short: "Never contact an address or domain again",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		value, _, err := bot.ParseBlockArgs(args[0])
		if err != nil {
			return err
		}
		if err := a.Engine.Block(ctx, value, blockReason); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s.\n", value)
		return nil
	}),
}

var blocklistCmd = &cobra.Command{
	Use:   "blocklist",
	Short: "List blocked addresses and domains",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
		entries, err := a.Store.ListBlocklist(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), bot.FormatBlocklist(entries))
		return nil
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history <email>",
	Short: "Show the contact history of a practitioner address",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		h, err := a.Store.GetHistory(ctx, args[0])
		if errors.Is(err, storage.ErrNotFound) {
			h = &model.ContactHistory{Email: args[0]}
		} else if err != nil {
			return err
		}
		cs, err := a.Store.ListContacts(ctx, storage.ContactFilter{Email: args[0]})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatHistory(h, cs, a.Engine.Rules().Location))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd, queueCmd, approveCmd, releaseCmd, replyCmd, transitionCmd,
		blockCmd, blocklistCmd, historyCmd)

	blockCmd.Flags().StringVarP(&blockReason, "reason", "r", "", "Why the address or domain is blocked")
}

func transition(ctx context.Context, a *app.App, w io.Writer, arg string, ev outreach.Event) error {
	id, err := bot.ParseIDArg(arg)
	if err != nil {
		return err
	}
	c, err := a.Engine.Transition(ctx, id, ev)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Contact #%d %s is now %s.\n", c.ID, c.CompanyName, c.Status)
	return nil
}

func parseManualEvent(s string) (outreach.Event, error) {
	ev := outreach.Event(strings.ToLower(strings.TrimSpace(s)))
	if !outreach.ManualEvents[ev] {
		return "", fmt.Errorf("unknown event %q, use meeting, won or lost", s)
	}
	return ev, nil
}

func formatHistory(h *model.ContactHistory, cs []model.OutreachContact, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", h.Email)
	if h.LastContactedAt != nil {
		fmt.Fprintf(&b, "Last contacted: %s\n", h.LastContactedAt.In(loc).Format("2006-01-02 15:04"))
	} else {
		b.WriteString("Never contacted\n")
	}
	fmt.Fprintf(&b, "Emails sent: %d, replies: %d\n", h.TotalContacts, h.TotalReplies)
	if h.Blocked {
		fmt.Fprintf(&b, "Blocked: %s\n", h.BlockReason)
	}
	if len(cs) > 0 {
		b.WriteString("\nContacts:\n")
		for _, c := range cs {
			fmt.Fprintf(&b, "  #%d %s [%s], notice %s\n", c.ID, c.CompanyName, c.Status, c.NoticeID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
