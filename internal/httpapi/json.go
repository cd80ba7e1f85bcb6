package httpapi

import (
	"time"

	"gazette_outreach/internal/model"
)

type contactJSON struct {
	ID               int64      `json:"id"`
	NoticeID         string     `json:"notice_id"`
	CompanyName      string     `json:"company_name"`
	CompanyNumber    string     `json:"company_number,omitempty"`
	NoticeCategory   string     `json:"notice_category"`
	Score            int        `json:"score"`
	PractitionerName string     `json:"practitioner_name"`
	Role             string     `json:"role,omitempty"`
	Firm             string     `json:"firm,omitempty"`
	Email            string     `json:"email"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	QueuedAt         *time.Time `json:"queued_at,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	RepliedAt        *time.Time `json:"replied_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	FollowUpCount    int        `json:"follow_up_count"`
	NextFollowUpAt   *time.Time `json:"next_follow_up_at,omitempty"`
	Held             bool       `json:"held"`
	HoldReason       string     `json:"hold_reason,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

func toContactJSON(c *model.OutreachContact) contactJSON {
	held := c.Held()
	out := contactJSON{
		ID:               c.ID,
		NoticeID:         c.NoticeID,
		CompanyName:      c.CompanyName,
		CompanyNumber:    c.CompanyNumber,
		NoticeCategory:   string(c.NoticeCategory),
		Score:            c.Score,
		PractitionerName: c.PractitionerName,
		Role:             c.Role,
		Firm:             c.Firm,
		Email:            c.Email,
		Status:           string(c.Status),
		CreatedAt:        c.CreatedAt,
		QueuedAt:         c.QueuedAt,
		ApprovedAt:       c.ApprovedAt,
		ScheduledAt:      c.ScheduledAt,
		SentAt:           c.SentAt,
		OpenedAt:         c.OpenedAt,
		RepliedAt:        c.RepliedAt,
		ClosedAt:         c.ClosedAt,
		FollowUpCount:    c.FollowUpCount,
		NextFollowUpAt:   c.NextFollowUpAt,
		Held:             held,
		Notes:            c.Notes,
	}
	if held {
		out.HoldReason = c.HoldReason
	}
	return out
}

type summaryJSON struct {
	Date             string    `json:"date"`
	NoticesFound     int       `json:"notices_found"`
	NoticesQualified int       `json:"notices_qualified"`
	EmailsQueued     int       `json:"emails_queued"`
	EmailsSent       int       `json:"emails_sent"`
	FollowUpsSent    int       `json:"follow_ups_sent"`
	Replies          int       `json:"replies"`
	Bounces          int       `json:"bounces"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type decisionJSON struct {
	NoticeID  string    `json:"notice_id"`
	Email     string    `json:"email,omitempty"`
	Accepted  bool      `json:"accepted"`
	Gate      string    `json:"gate,omitempty"`
	Observed  int       `json:"observed"`
	Threshold int       `json:"threshold"`
	Detail    string    `json:"detail,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

type blockJSON struct {
	Value     string    `json:"value"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
