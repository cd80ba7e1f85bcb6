// Package qualify decides whether a notice's primary contact may be queued
// for outreach. Gates run in a fixed order and the first failure is reported.
package qualify

import (
	"context"
	"fmt"
	"time"

	"gazette_outreach/internal/contact"
	"gazette_outreach/internal/model"
)

// Gate names a single qualification predicate.
type Gate string

// Gates, in evaluation order.
const (
	GateScore          Gate = "score"
	GateEmail          Gate = "email"
	GateBlocklist      Gate = "blocklist"
	GateCooldown       Gate = "cooldown"
	GateFirmCap        Gate = "firm_cap"
	GateGlobalCap      Gate = "global_cap"
	GateRegistryStatus Gate = "registry_status"
	GateDuplicate      Gate = "duplicate"
)

// AllGates is the full pipeline used when a contact is queued.
var AllGates = []Gate{
	GateScore,
	GateEmail,
	GateBlocklist,
	GateCooldown,
	GateFirmCap,
	GateGlobalCap,
	GateRegistryStatus,
	GateDuplicate,
}

// SendGates are re-checked immediately before a queued contact is sent.
// The registry status is re-checked separately against a fresh lookup.
var SendGates = []Gate{
	GateBlocklist,
	GateCooldown,
	GateFirmCap,
	GateGlobalCap,
}

// FollowUpGates are re-checked before a follow-up. A follow-up continues
// the thread that started the cooldown, so the cooldown does not apply.
var FollowUpGates = []Gate{
	GateBlocklist,
	GateFirmCap,
	GateGlobalCap,
}

// Retryable reports whether a rejection at g can turn into an acceptance
// later without anything about the notice changing.
func (g Gate) Retryable() bool {
	switch g {
	case GateCooldown, GateFirmCap, GateGlobalCap:
		return true
	}
	return false
}

// Candidate is the input to the pipeline.
type Candidate struct {
	NoticeID       string
	Score          int
	Email          string
	Firm           string
	RegistryStatus model.RegistryStatus
}

// Limits are the thresholds in force for one evaluation.
type Limits struct {
	MinScore     int
	CooldownDays int
	FirmCap      int
	GlobalCap    int
	Location     *time.Location
}

// History is the persisted state the gates read.
type History interface {
	IsBlocked(ctx context.Context, email string) (bool, error)
	LastContacted(ctx context.Context, email string) (*time.Time, error)
	CountSentByFirm(ctx context.Context, firm string, from, to time.Time) (int, error)
	CountSent(ctx context.Context, from, to time.Time) (int, error)
	ContactExists(ctx context.Context, noticeID, email string) (bool, error)
}

// Rejection describes the gate that failed and the values it compared.
type Rejection struct {
	Gate          Gate
	Observed      int
	Threshold     int
	DaysRemaining int
	Detail        string
}

// String formats the rejection for logs, e.g. "cooldown: contacted 6 days ago, need 14".
func (r Rejection) String() string {
	switch r.Gate {
	case GateScore:
		return fmt.Sprintf("score: %d below minimum %d", r.Observed, r.Threshold)
	case GateCooldown:
		return fmt.Sprintf("cooldown: contacted %d days ago, need %d", r.Observed, r.Threshold)
	case GateFirmCap:
		return fmt.Sprintf("firm_cap: %d sent today for %s, cap %d", r.Observed, r.Detail, r.Threshold)
	case GateGlobalCap:
		return fmt.Sprintf("global_cap: %d sent today, cap %d", r.Observed, r.Threshold)
	}
	return fmt.Sprintf("%s: %s", r.Gate, r.Detail)
}

// Decision is the outcome of running the pipeline on one candidate.
type Decision struct {
	Candidate Candidate
	Accepted  bool
	Rejection *Rejection
}

// Record converts the decision into its persisted form.
func (d Decision) Record(at time.Time) model.Decision {
	rec := model.Decision{
		NoticeID:  d.Candidate.NoticeID,
		Email:     d.Candidate.Email,
		Accepted:  d.Accepted,
		DecidedAt: at,
	}
	if d.Rejection != nil {
		rec.Gate = string(d.Rejection.Gate)
		rec.Observed = d.Rejection.Observed
		rec.Threshold = d.Rejection.Threshold
		rec.Detail = d.Rejection.String()
	}
	return rec
}

// Evaluate runs every gate in order.
func Evaluate(ctx context.Context, c Candidate, h History, l Limits, now time.Time) (Decision, error) {
	return Run(ctx, AllGates, c, h, l, now)
}

// Run evaluates the given gates in order and stops at the first failure.
// An error means the history could not be read, not that the candidate failed.
func Run(ctx context.Context, gates []Gate, c Candidate, h History, l Limits, now time.Time) (Decision, error) {
	c.Email = contact.Normalize(c.Email)
	for _, g := range gates {
		rej, err := check(ctx, g, c, h, l, now)
		if err != nil {
			return Decision{}, fmt.Errorf("gate %s: %w", g, err)
		}
		if rej != nil {
			return Decision{Candidate: c, Rejection: rej}, nil
		}
	}
	return Decision{Candidate: c, Accepted: true}, nil
}

func check(ctx context.Context, g Gate, c Candidate, h History, l Limits, now time.Time) (*Rejection, error) {
	switch g {
	case GateScore:
		if c.Score < l.MinScore {
			return &Rejection{Gate: g, Observed: c.Score, Threshold: l.MinScore}, nil
		}

	case GateEmail:
		if c.Email == "" {
			return &Rejection{Gate: g, Detail: "no email address"}, nil
		}
		if !contact.ValidEmail(c.Email) {
			return &Rejection{Gate: g, Detail: fmt.Sprintf("invalid address %q", c.Email)}, nil
		}

	case GateBlocklist:
		blocked, err := h.IsBlocked(ctx, c.Email)
		if err != nil {
			return nil, err
		}
		if blocked {
			return &Rejection{Gate: g, Detail: fmt.Sprintf("%s is blocklisted", c.Email)}, nil
		}

	case GateCooldown:
		last, err := h.LastContacted(ctx, c.Email)
		if err != nil {
			return nil, err
		}
		if last == nil {
			return nil, nil
		}
		days := DaysBetween(*last, now, l.Location)
		if days < l.CooldownDays {
			return &Rejection{
				Gate:          g,
				Observed:      days,
				Threshold:     l.CooldownDays,
				DaysRemaining: l.CooldownDays - days,
			}, nil
		}

	case GateFirmCap:
		from, to := DayBounds(now, l.Location)
		firm := FirmKey(c.Firm, c.Email)
		n, err := h.CountSentByFirm(ctx, firm, from, to)
		if err != nil {
			return nil, err
		}
		if n >= l.FirmCap {
			return &Rejection{Gate: g, Observed: n, Threshold: l.FirmCap, Detail: firm}, nil
		}

	case GateGlobalCap:
		from, to := DayBounds(now, l.Location)
		n, err := h.CountSent(ctx, from, to)
		if err != nil {
			return nil, err
		}
		if n >= l.GlobalCap {
			return &Rejection{Gate: g, Observed: n, Threshold: l.GlobalCap}, nil
		}

	case GateRegistryStatus:
		if c.RegistryStatus.IsDead() {
			return &Rejection{Gate: g, Detail: fmt.Sprintf("company %s", c.RegistryStatus)}, nil
		}

	case GateDuplicate:
		exists, err := h.ContactExists(ctx, c.NoticeID, c.Email)
		if err != nil {
			return nil, err
		}
		if exists {
			return &Rejection{Gate: g, Detail: fmt.Sprintf("already contacting %s for notice %s", c.Email, c.NoticeID)}, nil
		}

	default:
		return nil, fmt.Errorf("unknown gate %q", g)
	}
	return nil, nil
}
