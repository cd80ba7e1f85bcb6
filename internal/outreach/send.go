package outreach

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gazette_outreach/internal/contact"
	"gazette_outreach/internal/mailer"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/qualify"
	"gazette_outreach/internal/storage"
)

// SendResult counts what one send or follow-up run did.
type SendResult struct {
	Sent      int
	Bounced   int
	Failed    int
	Uncertain int
	Skipped   int
	Held      int
	Recovered int
	Expired   int
	// Stopped says why the run ended before the queue was empty.
	Stopped string
}

func (r SendResult) attempts() int {
	return r.Sent + r.Bounced + r.Failed + r.Uncertain + r.Skipped
}

func (r SendResult) String() string {
	s := fmt.Sprintf("sent %d, bounced %d, failed %d, uncertain %d, skipped %d, held %d",
		r.Sent, r.Bounced, r.Failed, r.Uncertain, r.Skipped, r.Held)
	if r.Expired > 0 {
		s += fmt.Sprintf(", expired %d", r.Expired)
	}
	if r.Stopped != "" {
		s += " (" + r.Stopped + ")"
	}
	return s
}

// SendDue plans every queued unit that has no send time yet and sends the
// units that are due. Each unit is reserved in a transaction, sent outside
// it, and its result applied in a second transaction.
func (e *Engine) SendDue(ctx context.Context) (SendResult, error) {
	var res SendResult
	now := e.clock()

	n, err := e.recoverLeases(ctx, now)
	if err != nil {
		return res, err
	}
	res.Recovered = n

	units, err := e.planQueue(ctx, now)
	if err != nil {
		return res, err
	}

	for _, u := range units {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if e.rules.MaxSendsPerRun > 0 && res.attempts() >= e.rules.MaxSendsPerRun {
			res.Stopped = "per-run limit reached"
			break
		}
		now = e.clock()
		if at := u.Scheduled(); at == nil || at.After(now) {
			res.Stopped = "next unit not due"
			break
		}
		ok, why, err := e.mayDeliver(ctx, now)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Stopped = why
			break
		}

		stop, err := e.deliver(ctx, model.SendInitial, u, &res)
		if err != nil {
			e.log.Error("send unit", "email", u.Email, "contacts", u.IDs(), "error", err)
			continue
		}
		if stop {
			break
		}
	}

	if res.attempts()+res.Held+res.Recovered > 0 {
		e.log.Info("send run finished", "result", res.String())
	}
	return res, nil
}

// mayDeliver checks the send window and the minimum delay since the last send.
func (e *Engine) mayDeliver(ctx context.Context, now time.Time) (bool, string, error) {
	if !e.planner.InWindow(now) {
		return false, "outside send window", nil
	}
	last, err := e.store.LastSendAt(ctx)
	if err != nil {
		return false, "", fmt.Errorf("last send: %w", err)
	}
	if last != nil && last.Add(e.rules.MinDelay).After(now) {
		return false, "minimum delay since last send", nil
	}
	return true, "", nil
}

// planQueue batches the unleased queued contacts and gives every unit
// without a send time the next free slot after the previous unit.
func (e *Engine) planQueue(ctx context.Context, now time.Time) ([]Unit, error) {
	cs, err := e.store.ListContacts(ctx, storage.ContactFilter{
		Statuses:     []model.Status{model.StatusQueued},
		Unleased:     true,
		ApprovedOnly: e.rules.RequireApproval,
	})
	if err != nil {
		return nil, fmt.Errorf("list queued contacts: %w", err)
	}
	units := Batch(cs)

	prev, err := e.store.LastSendAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("last send: %w", err)
	}

	for i := range units {
		at := units[i].Scheduled()
		if at == nil {
			base := now
			if prev != nil && prev.After(base) {
				base = *prev
			}
			slot := e.planner.NextSendSlot(base, prev).UTC().Truncate(time.Second)
			at = &slot
		}
		if err := e.schedule(ctx, &units[i], *at); err != nil {
			return nil, err
		}
		if prev == nil || at.After(*prev) {
			prev = at
		}
	}

	sort.SliceStable(units, func(i, j int) bool {
		return units[i].Scheduled().Before(*units[j].Scheduled())
	})
	return units, nil
}

// schedule stores at on every contact of u that has no send time yet.
func (e *Engine) schedule(ctx context.Context, u *Unit, at time.Time) error {
	var pending []int
	for i, c := range u.Contacts {
		if c.ScheduledAt == nil {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		for _, i := range pending {
			c, err := tx.GetContact(ctx, u.Contacts[i].ID)
			if err != nil {
				return err
			}
			if c.Status != model.StatusQueued || c.LeaseToken != "" || c.ScheduledAt != nil {
				continue
			}
			c.ScheduledAt = &at
			if err := tx.UpdateContact(ctx, c, model.StatusQueued); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", u.Email, err)
	}
	for _, i := range pending {
		u.Contacts[i].ScheduledAt = &at
	}
	e.log.Debug("unit scheduled", "email", u.Email, "contacts", u.IDs(), "at", at)
	return nil
}

// recoverLeases turns reservations whose lease ran out into holds. The
// process that took them may have sent the email before it stopped.
func (e *Engine) recoverLeases(ctx context.Context, now time.Time) (int, error) {
	var recovered []model.OutreachContact
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		cs, err := tx.ListContacts(ctx, storage.ContactFilter{LeaseExpiredAt: &now})
		if err != nil {
			return err
		}
		for _, c := range cs {
			c.LeaseUntil = nil
			c.HoldReason = "send outcome unknown: lease expired"
			if err := tx.UpdateContact(ctx, &c, c.Status); err != nil {
				return err
			}
			recovered = append(recovered, c)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recover leases: %w", err)
	}

	for _, c := range recovered {
		e.log.Warn("expired lease held", "contact_id", c.ID, "email", c.Email, "token", c.LeaseToken)
	}
	if len(recovered) > 0 {
		e.notify(ctx, fmt.Sprintf("%d contact(s) held after an interrupted send. Check the sent folder, then /release or /reply.", len(recovered)))
	}
	return len(recovered), nil
}

type reservation struct {
	leased    []model.OutreachContact
	held      int
	rejection *qualify.Rejection
}

// deliver reserves, sends and settles one unit. It reports true when the
// run must stop.
func (e *Engine) deliver(ctx context.Context, kind model.SendKind, u Unit, res *SendResult) (bool, error) {
	var fresh map[int64]model.RegistryStatus
	if kind == model.SendInitial {
		fresh = e.freshStatuses(ctx, u)
	}

	now := e.clock()
	token := e.newToken()
	var r reservation
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		r, err = e.reserve(ctx, tx, kind, u, token, fresh, now)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("reserve: %w", err)
	}
	res.Held += r.held

	if r.rejection != nil {
		e.log.Info("send deferred",
			"email", u.Email,
			"gate", r.rejection.Gate,
			"observed", r.rejection.Observed,
			"threshold", r.rejection.Threshold,
			"reason", r.rejection.String(),
		)
		if r.rejection.Gate == qualify.GateGlobalCap {
			res.Stopped = r.rejection.String()
			return true, nil
		}
		return false, nil
	}
	if len(r.leased) == 0 {
		return false, nil
	}

	msg, err := e.compose(kind, r.leased)
	if err != nil {
		failed := mailer.Result{Outcome: mailer.OutcomeFailed, Err: err}
		if serr := e.settle(ctx, kind, token, u.Email, msg, failed); serr != nil {
			e.log.Error("release reservation", "token", token, "error", serr)
		}
		res.Failed++
		return false, err
	}

	result := e.transport.Send(ctx, msg)
	if err := e.settle(ctx, kind, token, u.Email, msg, result); err != nil {
		return false, err
	}

	switch result.Outcome {
	case mailer.OutcomeSent:
		res.Sent++
	case mailer.OutcomeBounced:
		res.Bounced++
	case mailer.OutcomeUncertain:
		res.Uncertain++
	case mailer.OutcomeSkipped:
		res.Skipped++
	default:
		res.Failed++
	}
	e.log.Info("email delivered",
		"kind", kind, "email", u.Email, "contacts", len(r.leased), "token", token, "result", result.String())
	return false, nil
}

// reserve re-reads the unit's contacts, re-runs the send gates and leases
// the contacts that may be sent.
func (e *Engine) reserve(ctx context.Context, tx storage.Tx, kind model.SendKind, u Unit, token string,
	fresh map[int64]model.RegistryStatus, now time.Time,
) (reservation, error) {
	var r reservation
	var live []model.OutreachContact

	for _, id := range u.IDs() {
		c, err := tx.GetContact(ctx, id)
		if err != nil {
			return r, err
		}
		if c.LeaseToken != "" {
			continue
		}

		switch kind {
		case model.SendInitial:
			if c.Status != model.StatusQueued {
				continue
			}
			if e.rules.RequireApproval && c.ApprovedAt == nil {
				continue
			}
			status, err := e.registryStatus(ctx, tx, c, fresh)
			if err != nil {
				return r, err
			}
			if status.IsDead() {
				hold(c, token, fmt.Sprintf("company %s at send time", status))
				if err := tx.UpdateContact(ctx, c, c.Status); err != nil {
					return r, err
				}
				r.held++
				e.log.Info("contact held", "contact_id", c.ID, "gate", qualify.GateRegistryStatus, "status", status)
				continue
			}
		case model.SendFollowUp:
			if _, err := Apply(*c, EventFollowUp, now, e.policy()); err != nil {
				continue
			}
		}
		live = append(live, *c)
	}
	if len(live) == 0 {
		return r, nil
	}

	hist, err := newInFlight(ctx, tx, now)
	if err != nil {
		return r, err
	}
	gates := qualify.SendGates
	if kind == model.SendFollowUp {
		gates = qualify.FollowUpGates
	}
	cand := qualify.Candidate{NoticeID: live[0].NoticeID, Email: u.Email, Firm: firmOf(live)}
	d, err := qualify.Run(ctx, gates, cand, hist, e.limits(now), now)
	if err != nil {
		return r, err
	}

	if !d.Accepted {
		if d.Rejection.Gate == qualify.GateCooldown {
			r.rejection = d.Rejection
			return r, e.deferCooldown(ctx, tx, live, d.Rejection, now)
		}
		if d.Rejection.Gate != qualify.GateBlocklist {
			r.rejection = d.Rejection
			return r, nil
		}
		for i := range live {
			c := &live[i]
			prev := c.Status
			if kind == model.SendFollowUp {
				closed, err := Apply(*c, EventStop, now, e.policy())
				if err != nil {
					return r, err
				}
				*c = closed
				c.Notes = appendNote(c.Notes, now, "follow-ups stopped: "+d.Rejection.String())
			} else {
				hold(c, token, d.Rejection.String())
			}
			if err := tx.UpdateContact(ctx, c, prev); err != nil {
				return r, err
			}
			r.held++
		}
		return r, nil
	}

	until := now.Add(e.rules.SendLease)
	for i := range live {
		c := &live[i]
		c.LeaseToken = token
		c.LeaseUntil = &until
		c.HoldReason = ""
		c.SendAttempts++
		if err := tx.UpdateContact(ctx, c, c.Status); err != nil {
			return r, err
		}
	}
	r.leased = live
	return r, nil
}

// deferCooldown moves the send time of contacts whose address is still in
// its cooldown to the first slot after the cooldown ends.
func (e *Engine) deferCooldown(ctx context.Context, tx storage.Tx, live []model.OutreachContact,
	rej *qualify.Rejection, now time.Time,
) error {
	day, _ := qualify.DayBounds(now.AddDate(0, 0, rej.DaysRemaining), e.rules.Location)
	at := e.planner.NextSendSlot(day, nil).UTC().Truncate(time.Second)
	for i := range live {
		c := &live[i]
		c.ScheduledAt = &at
		if err := tx.UpdateContact(ctx, c, c.Status); err != nil {
			return err
		}
	}
	return nil
}

// settle applies a delivery result to the contacts still leased under
// token. Replaying it is a no-op.
func (e *Engine) settle(ctx context.Context, kind model.SendKind, token, email string, msg mailer.Message, result mailer.Result) error {
	ctx = context.WithoutCancel(ctx)
	at := e.clock()

	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		cs, err := tx.ListContacts(ctx, storage.ContactFilter{LeaseToken: token})
		if err != nil {
			return err
		}
		if len(cs) == 0 {
			return nil
		}

		switch result.Outcome {
		case mailer.OutcomeSent:
			inserted, err := tx.RecordSend(ctx, model.SendEvent{
				Token:     token,
				Kind:      kind,
				Email:     email,
				Firm:      qualify.FirmKey(firmOf(cs), email),
				MessageID: msg.MessageID,
				Contacts:  len(cs),
				SentAt:    at,
			})
			if err != nil {
				return err
			}
			if inserted {
				if err := tx.TouchHistory(ctx, email, at); err != nil {
					return err
				}
			}
		case mailer.OutcomeBounced:
			if err := tx.AddBlock(ctx, msg.To, "bounce", at); err != nil {
				return err
			}
		}

		for _, c := range cs {
			from := c.Status
			next := c
			switch result.Outcome {
			case mailer.OutcomeSent:
				ev := EventSent
				if kind == model.SendFollowUp {
					ev = EventFollowUp
				}
				next, err = Apply(c, ev, at, e.policy())
				if err != nil {
					// A reply can arrive while a follow-up is in flight.
					e.log.Warn("sent contact moved on", "contact_id", c.ID, "error", err)
					next = c
				}
				if kind == model.SendInitial && err == nil {
					next.SendToken = token
					next.MessageID = msg.MessageID
				}
				next.LastError = ""
				release(&next)
			case mailer.OutcomeBounced:
				next, err = Apply(c, EventBounce, at, e.policy())
				if err != nil {
					e.log.Warn("bounced contact moved on", "contact_id", c.ID, "error", err)
					next = c
				}
				next.LastError = errString(result.Err)
				release(&next)
			case mailer.OutcomeUncertain:
				next.LeaseUntil = nil
				next.HoldReason = "send outcome unknown: " + errString(result.Err)
				next.LastError = errString(result.Err)
			case mailer.OutcomeSkipped:
				next.ScheduledAt = nil
				release(&next)
			default:
				next.LastError = errString(result.Err)
				release(&next)
			}
			if err := tx.UpdateContact(ctx, &next, from); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply %s result for %s: %w", result.Outcome, email, err)
	}
	if result.Outcome == mailer.OutcomeUncertain {
		e.notify(ctx, fmt.Sprintf("Send to %s may or may not have gone out (%v). The contact is held until released.", email, result.Err))
	}
	return nil
}

// compose renders the email for the leased contacts of one unit.
func (e *Engine) compose(kind model.SendKind, leased []model.OutreachContact) (mailer.Message, error) {
	first := leased[0]
	companies := make([]mailer.Company, 0, len(leased))
	followUps := 0
	for _, c := range leased {
		companies = append(companies, mailer.Company{
			Name:     c.CompanyName,
			Number:   c.CompanyNumber,
			Category: c.NoticeCategory.Label(),
		})
		if c.FollowUpCount > followUps {
			followUps = c.FollowUpCount
		}
	}

	id := mailer.InitialSingle
	switch {
	case kind == model.SendFollowUp && followUps+1 >= e.rules.MaxFollowUps:
		id = mailer.FollowUp2
	case kind == model.SendFollowUp:
		id = mailer.FollowUp1
	case len(leased) > 1:
		id = mailer.InitialMulti
	}

	subject, body, err := e.renderer.Render(id, mailer.Vars{
		RecipientName: first.PractitionerName,
		Firm:          first.Firm,
		Companies:     companies,
		SenderName:    e.sender.Name,
		SenderCompany: e.sender.Company,
		SenderPhone:   e.sender.Phone,
		SenderEmail:   e.sender.Email,
	})
	if err != nil {
		return mailer.Message{}, err
	}

	msg := mailer.Message{
		FromName:  e.sender.Name,
		From:      e.sender.Email,
		ToName:    first.PractitionerName,
		To:        first.Email,
		Subject:   subject,
		Body:      body,
		MessageID: mailer.NewMessageID(mailer.DomainOf(e.sender.Email)),
		Date:      e.now(),
	}
	if kind == model.SendFollowUp {
		msg.InReplyTo = first.MessageID
	}
	if e.rules.TestRecipient != "" {
		e.log.Info("recipient overridden", "email", msg.To, "test_recipient", e.rules.TestRecipient)
		msg.To = e.rules.TestRecipient
		msg.ToName = ""
	}
	return msg, nil
}

// freshStatuses looks up the current registry status of every company in
// the unit. Failed lookups are left out.
func (e *Engine) freshStatuses(ctx context.Context, u Unit) map[int64]model.RegistryStatus {
	if e.status == nil {
		return nil
	}
	byNumber := make(map[string]model.RegistryStatus)
	out := make(map[int64]model.RegistryStatus)
	for _, c := range u.Contacts {
		if c.CompanyNumber == "" {
			continue
		}
		st, ok := byNumber[c.CompanyNumber]
		if !ok {
			var err error
			st, err = e.status.CompanyStatus(ctx, c.CompanyNumber)
			if err != nil {
				e.log.Warn("registry status lookup", "company_number", c.CompanyNumber, "error", err)
				continue
			}
			byNumber[c.CompanyNumber] = st
		}
		out[c.ID] = st
	}
	return out
}

func (e *Engine) registryStatus(ctx context.Context, tx storage.Tx, c *model.OutreachContact,
	fresh map[int64]model.RegistryStatus,
) (model.RegistryStatus, error) {
	if st, ok := fresh[c.ID]; ok {
		return st, nil
	}
	n, err := tx.GetNotice(ctx, c.NoticeID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return n.Registry.Status, nil
}

// inFlight counts leased, unsettled sends toward the daily caps and treats
// their addresses as contacted now.
type inFlight struct {
	storage.Tx
	now    time.Time
	total  int
	byFirm map[string]int
	emails map[string]bool
}

func newInFlight(ctx context.Context, tx storage.Tx, now time.Time) (*inFlight, error) {
	cs, err := tx.ListContacts(ctx, storage.ContactFilter{
		Statuses: []model.Status{model.StatusQueued, model.StatusSent},
	})
	if err != nil {
		return nil, err
	}
	firms := make(map[string]string)
	h := &inFlight{Tx: tx, now: now, byFirm: make(map[string]int), emails: make(map[string]bool)}
	for _, c := range cs {
		if c.LeaseToken != "" && c.LeaseUntil != nil && c.LeaseUntil.After(now) {
			firms[c.LeaseToken] = qualify.FirmKey(c.Firm, c.Email)
			h.emails[contact.Normalize(c.Email)] = true
		}
	}
	for _, firm := range firms {
		h.total++
		h.byFirm[firm]++
	}
	return h, nil
}

func (h *inFlight) LastContacted(ctx context.Context, email string) (*time.Time, error) {
	if h.emails[contact.Normalize(email)] {
		return &h.now, nil
	}
	return h.Tx.LastContacted(ctx, email)
}

func (h *inFlight) CountSent(ctx context.Context, from, to time.Time) (int, error) {
	n, err := h.Tx.CountSent(ctx, from, to)
	return n + h.total, err
}

func (h *inFlight) CountSentByFirm(ctx context.Context, firm string, from, to time.Time) (int, error) {
	n, err := h.Tx.CountSentByFirm(ctx, firm, from, to)
	return n + h.byFirm[firm], err
}

func hold(c *model.OutreachContact, token, reason string) {
	c.LeaseToken = token
	c.LeaseUntil = nil
	c.HoldReason = reason
}

func release(c *model.OutreachContact) {
	c.LeaseToken = ""
	c.LeaseUntil = nil
	c.HoldReason = ""
}

func firmOf(cs []model.OutreachContact) string {
	for _, c := range cs {
		if c.Firm != "" {
			return c.Firm
		}
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
