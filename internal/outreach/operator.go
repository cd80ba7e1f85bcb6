package outreach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gazette_outreach/internal/contact"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/qualify"
	"gazette_outreach/internal/storage"
)

// Operator actions that are not state machine events.
const (
	actionApprove Event = "approve"
	actionRelease Event = "release"
)

// Approve allows a queued contact to be sent when approval is required.
func (e *Engine) Approve(ctx context.Context, id int64) (*model.OutreachContact, error) {
	return e.mutate(ctx, id, func(c *model.OutreachContact, now time.Time) error {
		if c.Status != model.StatusQueued {
			return &TransitionError{From: c.Status, Event: actionApprove, Reason: "only queued contacts are approved"}
		}
		if c.ApprovedAt == nil {
			c.ApprovedAt = &now
		}
		return nil
	})
}

// Release clears a hold or a reservation so the contact is picked up again.
func (e *Engine) Release(ctx context.Context, id int64) (*model.OutreachContact, error) {
	return e.mutate(ctx, id, func(c *model.OutreachContact, now time.Time) error {
		if c.LeaseToken == "" {
			return &TransitionError{From: c.Status, Event: actionRelease, Reason: "contact is not held"}
		}
		c.Notes = appendNote(c.Notes, now, "released: "+holdText(c))
		release(c)
		c.ScheduledAt = nil
		return nil
	})
}

// Transition applies an operator event: reply, meeting, won or lost.
func (e *Engine) Transition(ctx context.Context, id int64, ev Event) (*model.OutreachContact, error) {
	if ev != EventReply && !ManualEvents[ev] {
		return nil, &TransitionError{Event: ev, Reason: "not an operator event"}
	}
	var email string
	c, err := e.mutate(ctx, id, func(c *model.OutreachContact, now time.Time) error {
		next, err := Apply(*c, ev, now, e.policy())
		if err != nil {
			return err
		}
		*c = next
		email = c.Email
		return nil
	}, func(ctx context.Context, tx storage.Tx) error {
		if ev == EventReply {
			return tx.AddReply(ctx, email)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("contact transitioned", "contact_id", id, "event", ev, "status", c.Status)
	return c, nil
}

// Block adds an email address or a whole domain to the blocklist. An
// address is also flagged in its contact history.
func (e *Engine) Block(ctx context.Context, value, reason string) error {
	value = contact.Normalize(value)
	if value == "" {
		return fmt.Errorf("block: empty value")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}
	reason = "manual: " + reason
	now := e.clock()

	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.AddBlock(ctx, value, reason, now); err != nil {
			return err
		}
		if strings.Contains(value, "@") {
			return tx.SetManualBlock(ctx, value, reason)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("block %s: %w", value, err)
	}
	e.log.Info("blocklisted", "value", value, "reason", reason)
	return nil
}

// Overview is a snapshot of the outreach pipeline.
type Overview struct {
	Counts           map[model.Status]int
	SentToday        int
	DailyCap         int
	Held             []model.OutreachContact
	AwaitingApproval int
	NextSend         *time.Time
}

// Overview reports contact counts, today's sends against the cap, held
// contacts and the next planned send.
func (e *Engine) Overview(ctx context.Context) (Overview, error) {
	now := e.clock()
	var o Overview

	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		return o, err
	}
	o.Counts = counts

	from, to := qualify.DayBounds(now, e.rules.Location)
	if o.SentToday, err = e.store.CountSent(ctx, from, to); err != nil {
		return o, err
	}
	o.DailyCap = e.rules.DailyCap(now)

	queued, err := e.store.ListContacts(ctx, storage.ContactFilter{
		Statuses: []model.Status{model.StatusQueued, model.StatusSent},
	})
	if err != nil {
		return o, err
	}
	for _, c := range queued {
		if c.Held() {
			o.Held = append(o.Held, c)
			continue
		}
		if c.Status != model.StatusQueued {
			continue
		}
		if e.rules.RequireApproval && c.ApprovedAt == nil {
			o.AwaitingApproval++
			continue
		}
		if c.ScheduledAt != nil && (o.NextSend == nil || c.ScheduledAt.Before(*o.NextSend)) {
			o.NextSend = c.ScheduledAt
		}
	}
	return o, nil
}

// mutate re-reads a contact inside a transaction, applies fn and saves it.
// The after hooks run in the same transaction.
func (e *Engine) mutate(ctx context.Context, id int64, fn func(c *model.OutreachContact, now time.Time) error,
	after ...func(ctx context.Context, tx storage.Tx) error,
) (*model.OutreachContact, error) {
	now := e.clock()
	var out *model.OutreachContact
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetContact(ctx, id)
		if err != nil {
			return err
		}
		from := c.Status
		if err := fn(c, now); err != nil {
			return err
		}
		if err := tx.UpdateContact(ctx, c, from); err != nil {
			return err
		}
		for _, h := range after {
			if err := h(ctx, tx); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("contact %d: %w", id, err)
	}
	return out, nil
}

func holdText(c *model.OutreachContact) string {
	if c.LeaseUntil == nil {
		if c.HoldReason != "" {
			return c.HoldReason
		}
		return "hold"
	}
	return "lease until " + c.LeaseUntil.Format(time.RFC3339)
}
