package outreach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gazette_outreach/internal/mailer"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/qualify"
)

// RefreshSummary recomputes the counters of the calendar day containing
// day and stores them. Running it again for the same day gives the same row.
func (e *Engine) RefreshSummary(ctx context.Context, day time.Time) (model.DailySummary, error) {
	loc := e.rules.Location
	local := day.In(loc)
	date := local.Format("2006-01-02")
	from, to := qualify.DayBounds(local, loc)

	s, err := e.store.ComputeSummary(ctx, date, from, to)
	if err != nil {
		return model.DailySummary{}, fmt.Errorf("compute summary %s: %w", date, err)
	}
	if err := e.store.UpsertSummary(ctx, &s); err != nil {
		return model.DailySummary{}, fmt.Errorf("store summary %s: %w", date, err)
	}
	return s, nil
}

// ReportSummary refreshes today's summary and sends it to the operator chat
// and, when configured, to the summary address.
func (e *Engine) ReportSummary(ctx context.Context) (model.DailySummary, error) {
	s, err := e.RefreshSummary(ctx, e.now())
	if err != nil {
		return s, err
	}
	text := FormatSummary(s)
	e.notify(ctx, text)

	if e.sender.SummaryTo != "" && e.transport != nil {
		res := e.transport.Send(ctx, mailer.Message{
			FromName:  e.sender.Name,
			From:      e.sender.Email,
			To:        e.sender.SummaryTo,
			Subject:   "Outreach summary " + s.Date,
			Body:      text + "\n",
			MessageID: mailer.NewMessageID(mailer.DomainOf(e.sender.Email)),
			Date:      e.now(),
		})
		if res.Outcome != mailer.OutcomeSent && res.Outcome != mailer.OutcomeSkipped {
			e.log.Error("email summary", "to", e.sender.SummaryTo, "result", res.String())
		}
	}
	return s, nil
}

// FormatSummary renders a summary for the operator.
func FormatSummary(s model.DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Outreach summary for %s\n", s.Date)
	fmt.Fprintf(&b, "Notices found: %d\n", s.NoticesFound)
	fmt.Fprintf(&b, "Qualified: %d\n", s.NoticesQualified)
	fmt.Fprintf(&b, "Queued: %d\n", s.EmailsQueued)
	fmt.Fprintf(&b, "Sent: %d initial, %d follow-ups\n", s.EmailsSent, s.FollowUpsSent)
	fmt.Fprintf(&b, "Replies: %d\n", s.Replies)
	fmt.Fprintf(&b, "Bounces: %d", s.Bounces)
	return b.String()
}
