package outreach

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gazette_outreach/internal/model"
)

// ErrInvalidTransition is returned for an event the contact's state does not accept.
var ErrInvalidTransition = errors.New("invalid transition")

// Event is something that happens to an outreach contact.
type Event string

// Contact events.
const (
	EventSent      Event = "sent"
	EventBounce    Event = "bounce"
	EventOpen      Event = "open"
	EventReply     Event = "reply"
	EventAutoReply Event = "auto_reply"
	EventFollowUp  Event = "follow_up"
	EventExpire    Event = "expire"
	EventStop      Event = "stop"
	EventMeeting   Event = "meeting"
	EventWon       Event = "won"
	EventLost      Event = "lost"
)

// ManualEvents are the transitions only an operator may trigger.
var ManualEvents = map[Event]bool{
	EventMeeting: true,
	EventWon:     true,
	EventLost:    true,
}

// TransitionError names the rejected transition.
type TransitionError struct {
	From   model.Status
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %s on %s", ErrInvalidTransition, e.Event, e.From)
	}
	return fmt.Sprintf("%v: %s on %s: %s", ErrInvalidTransition, e.Event, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Policy holds the follow-up rules the state machine enforces.
type Policy struct {
	MaxFollowUps  int
	FollowUpDelay time.Duration
}

// Apply returns c after ev happened at the given time. The input is not modified.
func Apply(c model.OutreachContact, ev Event, at time.Time, p Policy) (model.OutreachContact, error) {
	invalid := func(reason string) (model.OutreachContact, error) {
		return c, &TransitionError{From: c.Status, Event: ev, Reason: reason}
	}
	at = at.UTC()

	switch ev {
	case EventSent:
		if c.Status != model.StatusQueued {
			return invalid("")
		}
		c.Status = model.StatusSent
		c.SentAt = &at
		next := at.Add(p.FollowUpDelay)
		c.NextFollowUpAt = &next

	case EventBounce:
		if c.Status != model.StatusQueued && c.Status != model.StatusSent {
			return invalid("")
		}
		c.Status = model.StatusBounced
		c.ClosedAt = &at
		c.NextFollowUpAt = nil

	case EventOpen:
		if c.Status != model.StatusSent {
			return invalid("")
		}
		c.Status = model.StatusOpened
		c.OpenedAt = &at

	case EventReply:
		if c.Status != model.StatusSent && c.Status != model.StatusOpened {
			return invalid("")
		}
		c.Status = model.StatusReplied
		c.RepliedAt = &at
		c.NextFollowUpAt = nil

	case EventAutoReply:
		if c.Status != model.StatusSent && c.Status != model.StatusOpened {
			return invalid("")
		}
		c.Notes = appendNote(c.Notes, at, "auto-reply received")

	case EventFollowUp:
		if c.Status != model.StatusSent {
			return invalid("")
		}
		if c.FollowUpCount >= p.MaxFollowUps {
			return invalid(fmt.Sprintf("%d of %d follow-ups already sent", c.FollowUpCount, p.MaxFollowUps))
		}
		if c.NextFollowUpAt == nil || at.Before(*c.NextFollowUpAt) {
			return invalid("follow-up not due")
		}
		c.FollowUpCount++
		c.LastFollowUpAt = &at
		next := at.Add(p.FollowUpDelay)
		c.NextFollowUpAt = &next

	case EventExpire:
		if c.Status != model.StatusSent {
			return invalid("")
		}
		if c.FollowUpCount < p.MaxFollowUps {
			return invalid(fmt.Sprintf("only %d of %d follow-ups sent", c.FollowUpCount, p.MaxFollowUps))
		}
		if c.NextFollowUpAt != nil && at.Before(*c.NextFollowUpAt) {
			return invalid("last follow-up still pending")
		}
		c.Status = model.StatusNoResponse
		c.ClosedAt = &at
		c.NextFollowUpAt = nil

	case EventStop:
		if c.Status != model.StatusSent {
			return invalid("")
		}
		c.Status = model.StatusNoResponse
		c.ClosedAt = &at
		c.NextFollowUpAt = nil

	case EventMeeting:
		if c.Status != model.StatusReplied {
			return invalid("")
		}
		c.Status = model.StatusMeeting

	case EventWon, EventLost:
		if c.Status != model.StatusReplied && c.Status != model.StatusMeeting {
			return invalid("")
		}
		if ev == EventWon {
			c.Status = model.StatusWon
		} else {
			c.Status = model.StatusLost
		}
		c.ClosedAt = &at

	default:
		return invalid("unknown event")
	}
	return c, nil
}

func appendNote(notes string, at time.Time, text string) string {
	line := at.Format("2006-01-02 15:04") + " " + text
	if strings.TrimSpace(notes) == "" {
		return line
	}
	return notes + "\n" + line
}
