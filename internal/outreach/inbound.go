package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gazette_outreach/internal/contact"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/replies"
	"gazette_outreach/internal/storage"
)

// HandleInbound applies a classified inbound message to the contacts it
// answers. It reports false when the message belongs to no outreach thread.
// Transitions the contacts' states do not allow are skipped. A human reply
// skipped that way is still reported to the operator.
func (e *Engine) HandleInbound(ctx context.Context, m replies.Message) (bool, error) {
	at := e.clock()
	if !m.ReceivedAt.IsZero() && m.ReceivedAt.Before(at) {
		at = m.ReceivedAt.UTC().Truncate(time.Second)
	}

	var replied, ignored []model.OutreachContact
	var matched bool
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		replied, ignored = nil, nil
		cs, err := matchInbound(ctx, tx, m)
		if err != nil {
			return err
		}
		matched = len(cs) > 0

		blocked := make(map[string]bool)
		block := func(email, reason string) error {
			email = contact.Normalize(email)
			if blocked[email] {
				return nil
			}
			blocked[email] = true
			return tx.AddBlock(ctx, email, reason, at)
		}
		if matched && m.Kind == replies.KindReply && m.Unsubscribe {
			if err := block(cs[0].Email, "unsubscribe"); err != nil {
				return err
			}
		}

		for _, c := range cs {
			var ev Event
			switch m.Kind {
			case replies.KindBounce:
				ev = EventBounce
			case replies.KindAutoReply:
				ev = EventAutoReply
			default:
				ev = EventReply
			}

			next, err := Apply(c, ev, at, e.policy())
			var te *TransitionError
			if errors.As(err, &te) {
				e.log.Warn("inbound message ignored", "contact_id", c.ID, "kind", m.Kind, "from", m.From, "error", err)
				if ev == EventReply {
					ignored = append(ignored, c)
				}
				continue
			}
			if err != nil {
				return err
			}

			switch {
			case m.Kind == replies.KindBounce:
				if err := block(c.Email, "bounce"); err != nil {
					return err
				}
			case m.Kind == replies.KindReply && m.Unsubscribe:
				next.Notes = appendNote(next.Notes, at, "asked to unsubscribe")
			}
			if err := tx.UpdateContact(ctx, &next, c.Status); err != nil {
				return err
			}
			if ev == EventReply {
				replied = append(replied, next)
			}
			e.log.Info("inbound message applied", "contact_id", c.ID, "kind", m.Kind, "status", next.Status)
		}

		if len(replied) > 0 {
			return tx.AddReply(ctx, replied[0].Email)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply inbound message from %s: %w", m.From, err)
	}

	if len(replied) > 0 {
		e.notify(ctx, formatReply(m, replied))
	}
	if len(ignored) > 0 {
		e.notify(ctx, formatIgnored(m, ignored))
	}
	return matched, nil
}

// matchInbound finds the contacts a message answers: first by the thread
// headers, then by the sender among contacts awaiting an answer, then by
// the sender alone.
func matchInbound(ctx context.Context, tx storage.Tx, m replies.Message) ([]model.OutreachContact, error) {
	if m.Kind == replies.KindBounce && len(m.FailedRecipients) > 0 {
		var out []model.OutreachContact
		for _, addr := range m.FailedRecipients {
			cs, err := tx.ListContacts(ctx, storage.ContactFilter{
				Email:    addr,
				Statuses: []model.Status{model.StatusQueued, model.StatusSent},
			})
			if err != nil {
				return nil, err
			}
			out = append(out, cs...)
		}
		return out, nil
	}

	for _, id := range m.ReferencedIDs() {
		cs, err := tx.ListContacts(ctx, storage.ContactFilter{MessageID: id})
		if err != nil {
			return nil, err
		}
		if len(cs) > 0 {
			return cs, nil
		}
	}
	if m.Kind == replies.KindBounce || m.From == "" {
		return nil, nil
	}

	cs, err := tx.ListContacts(ctx, storage.ContactFilter{
		Email:    m.From,
		Statuses: []model.Status{model.StatusSent, model.StatusOpened},
	})
	if err != nil || len(cs) > 0 {
		return cs, err
	}
	return tx.ListContacts(ctx, storage.ContactFilter{Email: m.From})
}

func formatReply(m replies.Message, cs []model.OutreachContact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reply from %s", m.From)
	if cs[0].PractitionerName != "" {
		fmt.Fprintf(&b, " (%s)", cs[0].PractitionerName)
	}
	b.WriteString("\n")
	for _, c := range cs {
		fmt.Fprintf(&b, "#%d %s\n", c.ID, c.CompanyName)
	}
	if m.Unsubscribe {
		b.WriteString("Asked to unsubscribe; address blocklisted.\n")
	}
	if m.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s", m.Subject)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatIgnored(m replies.Message, cs []model.OutreachContact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reply from %s not applied\n", m.From)
	for _, c := range cs {
		fmt.Fprintf(&b, "#%d %s is %s\n", c.ID, c.CompanyName, c.Status)
	}
	if m.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s", m.Subject)
	}
	return strings.TrimRight(b.String(), "\n")
}
