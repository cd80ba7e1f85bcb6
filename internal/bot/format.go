package bot

import (
	"fmt"
	"strings"
	"time"

	"gazette_outreach/internal/model"
	"gazette_outreach/internal/outreach"
)

const timeLayout = "2006-01-02 15:04"

var statusOrder = []model.Status{
	model.StatusQueued,
	model.StatusSent,
	model.StatusOpened,
	model.StatusReplied,
	model.StatusMeeting,
	model.StatusWon,
	model.StatusLost,
	model.StatusNoResponse,
	model.StatusBounced,
}

// FormatOverview formats the pipeline snapshot shown by /status.
func FormatOverview(o outreach.Overview, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Outreach status\n")
	fmt.Fprintf(&b, "Sent today: %d of %d\n", o.SentToday, o.DailyCap)
	if o.NextSend != nil {
		fmt.Fprintf(&b, "Next send: %s\n", o.NextSend.In(loc).Format(timeLayout))
	}
	if o.AwaitingApproval > 0 {
		fmt.Fprintf(&b, "Awaiting approval: %d\n", o.AwaitingApproval)
	}

	b.WriteString("\nContacts:\n")
	total := 0
	for _, s := range statusOrder {
		if n := o.Counts[s]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", s, n)
			total += n
		}
	}
	if total == 0 {
		b.WriteString("  none yet\n")
	}

	if len(o.Held) > 0 {
		fmt.Fprintf(&b, "\nHeld (%d), use /release <id>:\n", len(o.Held))
		for _, c := range o.Held {
			fmt.Fprintf(&b, "  #%d %s <%s>: %s\n", c.ID, c.CompanyName, c.Email, c.HoldReason)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatQueue formats the queued contacts for /queue.
func FormatQueue(cs []model.OutreachContact, loc *time.Location) string {
	if len(cs) == 0 {
		return "The queue is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Queued contacts (%d):\n", len(cs))
	for _, c := range cs {
		fmt.Fprintf(&b, "\n#%d %s (score %d)\n", c.ID, c.CompanyName, c.Score)
		fmt.Fprintf(&b, "   %s <%s>", c.PractitionerName, c.Email)
		if c.Firm != "" {
			fmt.Fprintf(&b, ", %s", c.Firm)
		}
		b.WriteString("\n")
		switch {
		case c.Held():
			fmt.Fprintf(&b, "   held: %s\n", c.HoldReason)
		case c.LeaseToken != "":
			b.WriteString("   sending\n")
		case c.ScheduledAt != nil:
			fmt.Fprintf(&b, "   scheduled %s\n", c.ScheduledAt.In(loc).Format(timeLayout))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatContact formats the details of one contact for /contact.
func FormatContact(c *model.OutreachContact, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", c.ID, c.CompanyName, c.Status)
	if c.CompanyNumber != "" {
		fmt.Fprintf(&b, "Company number: %s\n", c.CompanyNumber)
	}
	fmt.Fprintf(&b, "Notice: %s (%s), score %d\n", c.NoticeID, c.NoticeCategory.Label(), c.Score)
	fmt.Fprintf(&b, "Contact: %s <%s>\n", c.PractitionerName, c.Email)
	if c.Role != "" || c.Firm != "" {
		fmt.Fprintf(&b, "Role: %s\n", strings.Trim(c.Role+", "+c.Firm, ", "))
	}

	stamp := func(label string, t *time.Time) {
		if t != nil {
			fmt.Fprintf(&b, "%s: %s\n", label, t.In(loc).Format(timeLayout))
		}
	}
	stamp("Queued", c.QueuedAt)
	stamp("Approved", c.ApprovedAt)
	stamp("Scheduled", c.ScheduledAt)
	stamp("Sent", c.SentAt)
	stamp("Replied", c.RepliedAt)
	stamp("Closed", c.ClosedAt)
	if c.FollowUpCount > 0 {
		fmt.Fprintf(&b, "Follow-ups sent: %d\n", c.FollowUpCount)
	}
	stamp("Next follow-up", c.NextFollowUpAt)
	if c.Held() {
		fmt.Fprintf(&b, "Held: %s\n", c.HoldReason)
	}
	if c.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:\n%s\n", c.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatBlocklist formats the blocklist for /blocklist.
func FormatBlocklist(entries []model.BlocklistEntry) string {
	if len(entries) == 0 {
		return "The blocklist is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Blocklist (%d):\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "  %s (%s, %s)\n", e.Value, e.Reason, e.CreatedAt.Format(time.DateOnly))
	}
	return strings.TrimRight(b.String(), "\n")
}
