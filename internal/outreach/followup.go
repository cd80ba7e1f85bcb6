package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gazette_outreach/internal/model"
	"gazette_outreach/internal/storage"
)

// FollowUpDue closes threads that have had every follow-up without an
// answer, then sends the follow-ups that are due. Contacts that first got
// the same email get one follow-up between them.
func (e *Engine) FollowUpDue(ctx context.Context) (SendResult, error) {
	var res SendResult
	now := e.clock()

	n, err := e.recoverLeases(ctx, now)
	if err != nil {
		return res, err
	}
	res.Recovered = n

	expired, err := e.expire(ctx, now)
	if err != nil {
		return res, err
	}
	res.Expired = expired

	due, err := e.store.ListContacts(ctx, storage.ContactFilter{
		Statuses:      []model.Status{model.StatusSent},
		Unleased:      true,
		FollowUpDueAt: &now,
	})
	if err != nil {
		return res, fmt.Errorf("list due follow-ups: %w", err)
	}

	for _, u := range byThread(due) {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if e.rules.MaxSendsPerRun > 0 && res.attempts() >= e.rules.MaxSendsPerRun {
			res.Stopped = "per-run limit reached"
			break
		}
		now = e.clock()
		ok, why, err := e.mayDeliver(ctx, now)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Stopped = why
			break
		}

		stop, err := e.deliver(ctx, model.SendFollowUp, u, &res)
		if err != nil {
			e.log.Error("send follow-up", "email", u.Email, "contacts", u.IDs(), "error", err)
			continue
		}
		if stop {
			break
		}
	}

	if res.attempts()+res.Held+res.Expired+res.Recovered > 0 {
		e.log.Info("follow-up run finished", "result", res.String())
	}
	return res, nil
}

// expire moves sent contacts whose last follow-up went unanswered to no_response.
func (e *Engine) expire(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		cs, err := tx.ListContacts(ctx, storage.ContactFilter{
			Statuses:      []model.Status{model.StatusSent},
			Unleased:      true,
			FollowUpDueAt: &now,
		})
		if err != nil {
			return err
		}
		for _, c := range cs {
			if c.FollowUpCount < e.rules.MaxFollowUps {
				continue
			}
			next, err := Apply(c, EventExpire, now, e.policy())
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.UpdateContact(ctx, &next, c.Status); err != nil {
				return err
			}
			n++
			e.log.Info("contact closed without response", "contact_id", c.ID, "email", c.Email, "follow_ups", c.FollowUpCount)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("expire contacts: %w", err)
	}
	return n, nil
}
