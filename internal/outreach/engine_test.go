package outreach

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gazette_outreach/internal/config"
	"gazette_outreach/internal/mailer"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/storage"
)

type fakeTransport struct {
	mu      sync.Mutex
	outcome mailer.Outcome
	err     error
	sent    []mailer.Message
}

func (f *fakeTransport) Send(_ context.Context, msg mailer.Message) mailer.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.outcome == "" {
		return mailer.Result{Outcome: mailer.OutcomeSent}
	}
	return mailer.Result{Outcome: f.outcome, Err: f.err}
}

func (f *fakeTransport) messages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Message(nil), f.sent...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.msgs...)
}

type fakeStatus map[string]model.RegistryStatus

func (f fakeStatus) CompanyStatus(_ context.Context, number string) (model.RegistryStatus, error) {
	st, ok := f[number]
	if !ok {
		return "", errors.New("registry unavailable")
	}
	return st, nil
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     *storage.SQLite
	engine    *Engine
	transport *fakeTransport
	notifier  *fakeNotifier

	mu  sync.Mutex
	now time.Time
}

func testRules() config.Rules {
	return config.Rules{
		MinOutreachScore:  50,
		MaxEmailsPerDay:   10,
		MaxPerFirmPerDay:  2,
		CooldownDays:      14,
		WindowStart:       config.Clock{Hour: 9},
		WindowEnd:         config.Clock{Hour: 17},
		SendDays:          config.Weekdays{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		FollowUpDelayDays: 7,
		MaxFollowUps:      2,
		SendLease:         10 * time.Minute,
		Location:          time.UTC,
	}
}

func testSender() config.Sender {
	return config.Sender{Name: "Sam Buyer", Email: "sam@acquisitions.co.uk", Company: "Acquisitions Ltd"}
}

func newHarness(t *testing.T, opts ...func(*config.Rules, *Deps)) *harness {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tmpl, err := mailer.NewTemplates()
	if err != nil {
		t.Fatalf("new templates: %v", err)
	}

	h := &harness{
		t:         t,
		ctx:       context.Background(),
		store:     store,
		transport: &fakeTransport{},
		notifier:  &fakeNotifier{},
		now:       t0,
	}
	rules := testRules()
	deps := Deps{
		Store:     store,
		Renderer:  tmpl,
		Transport: h.transport,
		Notifier:  h.notifier,
		Now:       h.clock,
	}
	for _, o := range opts {
		o(&rules, &deps)
	}
	h.engine = New(rules, testSender(), deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) set(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = at
}

func (h *harness) queue(noticeID, company, email, firm string) model.OutreachContact {
	h.t.Helper()
	now := h.clock()
	c := model.OutreachContact{
		NoticeID:         noticeID,
		CompanyName:      company,
		CompanyNumber:    "0" + noticeID,
		NoticeCategory:   model.NoticeAdministration,
		Score:            78,
		PractitionerName: "Jane Smith",
		Role:             "Joint Administrator",
		Firm:             firm,
		Email:            email,
		Status:           model.StatusQueued,
		CreatedAt:        now,
		QueuedAt:         &now,
	}
	if err := h.store.CreateContact(h.ctx, &c); err != nil {
		h.t.Fatalf("create contact: %v", err)
	}
	return c
}

func (h *harness) contact(id int64) *model.OutreachContact {
	h.t.Helper()
	c, err := h.store.GetContact(h.ctx, id)
	if err != nil {
		h.t.Fatalf("get contact %d: %v", id, err)
	}
	return c
}

func (h *harness) sendDue() SendResult {
	h.t.Helper()
	res, err := h.engine.SendDue(h.ctx)
	if err != nil {
		h.t.Fatalf("SendDue() error = %v", err)
	}
	return res
}

func statuses(h *harness, ids ...int64) []model.Status {
	var out []model.Status
	for _, id := range ids {
		out = append(out, h.contact(id).Status)
	}
	return out
}

func TestSendDueBatchesByEmail(t *testing.T) {
	h := newHarness(t)
	a := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	b := h.queue("2", "Bolt Foods Ltd", "bob@other.co.uk", "Other LLP")
	c := h.queue("3", "Crane Hire Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")

	res := h.sendDue()

	if diff := cmp.Diff(2, res.Sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	msgs := h.transport.messages()
	if len(msgs) != 2 {
		t.Fatalf("transport got %d messages, want 2", len(msgs))
	}
	if diff := cmp.Diff("Expression of Interest - Acme Widgets Ltd & Crane Hire Ltd", msgs[0].Subject); diff != "" {
		t.Errorf("subject mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("jane@ipfirm.co.uk", msgs[0].To); diff != "" {
		t.Errorf("recipient mismatch (-want +got):\n%s", diff)
	}

	want := []model.Status{model.StatusSent, model.StatusSent, model.StatusSent}
	if diff := cmp.Diff(want, statuses(h, a.ID, b.ID, c.ID)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}

	ca, cc := h.contact(a.ID), h.contact(c.ID)
	if ca.SendToken == "" || ca.SendToken != cc.SendToken {
		t.Errorf("batched contacts have send tokens %q and %q, want one shared token", ca.SendToken, cc.SendToken)
	}
	if diff := cmp.Diff(msgs[0].MessageID, ca.MessageID); diff != "" {
		t.Errorf("message id mismatch (-want +got):\n%s", diff)
	}
	if ca.LeaseToken != "" {
		t.Errorf("lease token %q left after send", ca.LeaseToken)
	}
	if diff := cmp.Diff(tp(t0.AddDate(0, 0, 7)), ca.NextFollowUpAt); diff != "" {
		t.Errorf("next follow-up mismatch (-want +got):\n%s", diff)
	}

	n, err := h.store.CountSent(h.ctx, t0.Add(-time.Hour), t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("count sent: %v", err)
	}
	if diff := cmp.Diff(2, n); diff != "" {
		t.Errorf("send events mismatch (-want +got):\n%s", diff)
	}
	hist, err := h.store.GetHistory(h.ctx, "jane@ipfirm.co.uk")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if diff := cmp.Diff(1, hist.TotalContacts); diff != "" {
		t.Errorf("total contacts mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueOutcomes(t *testing.T) {
	refused := errors.New("connection refused")

	tests := []struct {
		name        string
		outcome     mailer.Outcome
		wantStatus  model.Status
		wantLeased  bool
		wantBlocked bool
		wantRetry   bool
	}{
		{name: "bounce closes and blocklists", outcome: mailer.OutcomeBounced, wantStatus: model.StatusBounced, wantBlocked: true},
		{name: "transient failure stays queued", outcome: mailer.OutcomeFailed, wantStatus: model.StatusQueued, wantRetry: true},
		{name: "uncertain result is held", outcome: mailer.OutcomeUncertain, wantStatus: model.StatusQueued, wantLeased: true},
		{name: "dry run stays queued", outcome: mailer.OutcomeSkipped, wantStatus: model.StatusQueued, wantRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.transport.outcome = tt.outcome
			h.transport.err = refused
			c := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")

			h.sendDue()

			got := h.contact(c.ID)
			if diff := cmp.Diff(tt.wantStatus, got.Status); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
			if leased := got.LeaseToken != ""; leased != tt.wantLeased {
				t.Errorf("leased = %v, want %v (lease %q until %v)", leased, tt.wantLeased, got.LeaseToken, got.LeaseUntil)
			}
			if tt.wantLeased && got.LeaseUntil != nil {
				t.Errorf("hold has lease expiry %v", got.LeaseUntil)
			}
			blocked, err := h.store.IsBlocked(h.ctx, "jane@ipfirm.co.uk")
			if err != nil {
				t.Fatalf("is blocked: %v", err)
			}
			if blocked != tt.wantBlocked {
				t.Errorf("blocked = %v, want %v", blocked, tt.wantBlocked)
			}
			if diff := cmp.Diff(1, got.SendAttempts); diff != "" {
				t.Errorf("send attempts mismatch (-want +got):\n%s", diff)
			}

			n, err := h.store.CountSent(h.ctx, t0.Add(-time.Hour), t0.Add(time.Hour))
			if err != nil {
				t.Fatalf("count sent: %v", err)
			}
			if n != 0 {
				t.Errorf("%d send events recorded for an unsent message", n)
			}

			h.sendDue()
			wantMsgs := 1
			if tt.wantRetry {
				wantMsgs = 2
			}
			if diff := cmp.Diff(wantMsgs, len(h.transport.messages())); diff != "" {
				t.Errorf("messages after second run mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSendDueHoldsDissolvedCompany(t *testing.T) {
	h := newHarness(t, func(_ *config.Rules, d *Deps) {
		d.Status = fakeStatus{"01": model.RegistryDissolved}
	})
	c := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")

	res := h.sendDue()

	if diff := cmp.Diff(1, res.Held); diff != "" {
		t.Errorf("held mismatch (-want +got):\n%s", diff)
	}
	if n := len(h.transport.messages()); n != 0 {
		t.Errorf("transport got %d messages, want none", n)
	}
	got := h.contact(c.ID)
	if diff := cmp.Diff("company dissolved at send time", got.HoldReason); diff != "" {
		t.Errorf("hold reason mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueFallsBackWhenRegistryUnavailable(t *testing.T) {
	h := newHarness(t, func(_ *config.Rules, d *Deps) {
		d.Status = fakeStatus{}
	})
	h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")

	if diff := cmp.Diff(1, h.sendDue().Sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueStopsAtGlobalCap(t *testing.T) {
	h := newHarness(t, func(r *config.Rules, _ *Deps) { r.MaxEmailsPerDay = 1 })
	h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	b := h.queue("2", "Bolt Foods Ltd", "bob@other.co.uk", "Other LLP")

	res := h.sendDue()

	if diff := cmp.Diff(1, res.Sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("global_cap: 1 sent today, cap 1", res.Stopped); diff != "" {
		t.Errorf("stop reason mismatch (-want +got):\n%s", diff)
	}
	got := h.contact(b.ID)
	if got.Status != model.StatusQueued || got.LeaseToken != "" {
		t.Errorf("capped contact is %s with lease %q, want queued and free", got.Status, got.LeaseToken)
	}
}

func TestSendDueSkipsFirmAtCap(t *testing.T) {
	h := newHarness(t, func(r *config.Rules, _ *Deps) { r.MaxPerFirmPerDay = 1 })
	h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	h.queue("2", "Bolt Foods Ltd", "john@ipfirm.co.uk", "IP Firm LLP")
	h.queue("3", "Crane Hire Ltd", "bob@other.co.uk", "Other LLP")

	res := h.sendDue()

	var to []string
	for _, m := range h.transport.messages() {
		to = append(to, m.To)
	}
	if diff := cmp.Diff([]string{"jane@ipfirm.co.uk", "bob@other.co.uk"}, to); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
	if res.Stopped != "" && strings.HasPrefix(res.Stopped, "firm_cap") {
		t.Errorf("firm cap stopped the run: %s", res.Stopped)
	}
}

func TestSendDueDefersAddressInCooldown(t *testing.T) {
	h := newHarness(t, func(r *config.Rules, _ *Deps) { r.RequireApproval = true })
	a := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	b := h.queue("2", "Bolt Foods Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")

	if _, err := h.engine.Approve(h.ctx, a.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if diff := cmp.Diff(1, h.sendDue().Sent); diff != "" {
		t.Fatalf("first run sent mismatch (-want +got):\n%s", diff)
	}

	h.set(t0.Add(2 * time.Hour))
	if _, err := h.engine.Approve(h.ctx, b.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if diff := cmp.Diff(0, h.sendDue().Sent); diff != "" {
		t.Errorf("second run sent mismatch (-want +got):\n%s", diff)
	}
	if n := len(h.transport.messages()); n != 1 {
		t.Errorf("jane@ipfirm.co.uk got %d emails inside the cooldown, want 1", n)
	}

	got := h.contact(b.ID)
	if got.Status != model.StatusQueued || got.LeaseToken != "" {
		t.Errorf("deferred contact = %s lease %q, want queued without a lease", got.Status, got.LeaseToken)
	}
	cooldownEnds := time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)
	if diff := cmp.Diff(tp(cooldownEnds), got.ScheduledAt); diff != "" {
		t.Errorf("scheduled at mismatch (-want +got):\n%s", diff)
	}

	h.set(cooldownEnds.Add(time.Hour))
	if diff := cmp.Diff(1, h.sendDue().Sent); diff != "" {
		t.Errorf("run after cooldown sent mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueDefersAddressLeasedElsewhere(t *testing.T) {
	h := newHarness(t)
	a := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	b := h.queue("2", "Bolt Foods Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")

	// Another run holds a live reservation for the same address.
	leased := h.contact(a.ID)
	until := t0.Add(5 * time.Minute)
	leased.LeaseToken = "other-run"
	leased.LeaseUntil = &until
	if err := h.store.UpdateContact(h.ctx, leased, model.StatusQueued); err != nil {
		t.Fatalf("update contact: %v", err)
	}

	if diff := cmp.Diff(0, h.sendDue().Sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	got := h.contact(b.ID)
	if diff := cmp.Diff(tp(time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)), got.ScheduledAt); diff != "" {
		t.Errorf("scheduled at mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueOutsideWindowSchedulesNextWindow(t *testing.T) {
	h := newHarness(t)
	saturday := time.Date(2026, 3, 21, 10, 0, 0, 0, time.UTC)
	h.set(saturday)
	c := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")

	res := h.sendDue()

	if n := len(h.transport.messages()); n != 0 {
		t.Errorf("transport got %d messages on a Saturday", n)
	}
	if diff := cmp.Diff("next unit not due", res.Stopped); diff != "" {
		t.Errorf("stop reason mismatch (-want +got):\n%s", diff)
	}
	monday := time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC)
	if diff := cmp.Diff(&monday, h.contact(c.ID).ScheduledAt); diff != "" {
		t.Errorf("scheduled at mismatch (-want +got):\n%s", diff)
	}

	h.set(monday)
	if diff := cmp.Diff(1, h.sendDue().Sent); diff != "" {
		t.Errorf("sent on Monday mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueRespectsMinDelay(t *testing.T) {
	h := newHarness(t, func(r *config.Rules, _ *Deps) { r.MinDelay = 2 * time.Minute })
	h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	b := h.queue("2", "Bolt Foods Ltd", "bob@other.co.uk", "Other LLP")

	if diff := cmp.Diff(1, h.sendDue().Sent); diff != "" {
		t.Errorf("first run sent mismatch (-want +got):\n%s", diff)
	}
	want := t0.Add(2 * time.Minute)
	if diff := cmp.Diff(&want, h.contact(b.ID).ScheduledAt); diff != "" {
		t.Errorf("second unit slot mismatch (-want +got):\n%s", diff)
	}

	h.set(t0.Add(time.Minute))
	if diff := cmp.Diff(0, h.sendDue().Sent); diff != "" {
		t.Errorf("early run sent mismatch (-want +got):\n%s", diff)
	}
	h.set(want)
	if diff := cmp.Diff(1, h.sendDue().Sent); diff != "" {
		t.Errorf("due run sent mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDuePerRunLimit(t *testing.T) {
	h := newHarness(t, func(r *config.Rules, _ *Deps) { r.MaxSendsPerRun = 1 })
	h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	h.queue("2", "Bolt Foods Ltd", "bob@other.co.uk", "Other LLP")

	res := h.sendDue()
	if diff := cmp.Diff(SendResult{Sent: 1, Stopped: "per-run limit reached"}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueTestRecipientOverride(t *testing.T) {
	h := newHarness(t, func(r *config.Rules, _ *Deps) { r.TestRecipient = "me@acquisitions.co.uk" })
	c := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")

	h.sendDue()

	msgs := h.transport.messages()
	if len(msgs) != 1 || msgs[0].To != "me@acquisitions.co.uk" {
		t.Fatalf("messages = %+v, want one to the test recipient", msgs)
	}
	if diff := cmp.Diff(model.StatusSent, h.contact(c.ID).Status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueConcurrentRunsSendOnce(t *testing.T) {
	h := newHarness(t)
	other := New(h.engine.rules, testSender(), Deps{
		Store:     h.store,
		Renderer:  h.engine.renderer,
		Transport: h.transport,
		Now:       h.clock,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	emails := []string{"a@one.co.uk", "b@two.co.uk", "c@three.co.uk", "d@four.co.uk", "e@five.co.uk"}
	for i, email := range emails {
		h.queue(string(rune('1'+i)), "Company "+email, email, email)
	}

	var wg sync.WaitGroup
	for _, e := range []*Engine{h.engine, other} {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			if _, err := e.SendDue(h.ctx); err != nil {
				t.Errorf("SendDue() error = %v", err)
			}
		}(e)
	}
	wg.Wait()

	got := map[string]int{}
	for _, m := range h.transport.messages() {
		got[m.To]++
	}
	want := map[string]int{}
	for _, email := range emails {
		want[email] = 1
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sends per recipient mismatch (-want +got):\n%s", diff)
	}
}

func TestSettleReplayIsNoop(t *testing.T) {
	h := newHarness(t)
	c := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	h.sendDue()
	sent := h.contact(c.ID)
	msg := h.transport.messages()[0]

	err := h.engine.settle(h.ctx, model.SendInitial, sent.SendToken, sent.Email, msg, mailer.Result{Outcome: mailer.OutcomeBounced})
	if err != nil {
		t.Fatalf("settle() error = %v", err)
	}

	if diff := cmp.Diff(model.StatusSent, h.contact(c.ID).Status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	hist, err := h.store.GetHistory(h.ctx, sent.Email)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if diff := cmp.Diff(1, hist.TotalContacts); diff != "" {
		t.Errorf("total contacts mismatch (-want +got):\n%s", diff)
	}
}

func TestSendDueHoldsExpiredLease(t *testing.T) {
	h := newHarness(t)
	c := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	stale := h.contact(c.ID)
	stale.LeaseToken = "crashed-run"
	stale.LeaseUntil = tp(t0.Add(-time.Minute))
	if err := h.store.UpdateContact(h.ctx, stale, model.StatusQueued); err != nil {
		t.Fatalf("update contact: %v", err)
	}

	res := h.sendDue()

	if diff := cmp.Diff(1, res.Recovered); diff != "" {
		t.Errorf("recovered mismatch (-want +got):\n%s", diff)
	}
	if n := len(h.transport.messages()); n != 0 {
		t.Errorf("transport got %d messages, want none", n)
	}
	got := h.contact(c.ID)
	if got.LeaseUntil != nil || got.LeaseToken != "crashed-run" {
		t.Errorf("lease = %q until %v, want a hold", got.LeaseToken, got.LeaseUntil)
	}
	if diff := cmp.Diff("send outcome unknown: lease expired", got.HoldReason); diff != "" {
		t.Errorf("hold reason mismatch (-want +got):\n%s", diff)
	}
	if n := len(h.notifier.messages()); n != 1 {
		t.Errorf("operator got %d notifications, want 1", n)
	}
}

func TestSendDueHoldsBlocklisted(t *testing.T) {
	h := newHarness(t)
	c := h.queue("1", "Acme Widgets Ltd", "jane@ipfirm.co.uk", "IP Firm LLP")
	if err := h.store.AddBlock(h.ctx, "ipfirm.co.uk", "manual: test", t0); err != nil {
		t.Fatalf("add block: %v", err)
	}

	res := h.sendDue()

	if diff := cmp.Diff(1, res.Held); diff != "" {
		t.Errorf("held mismatch (-want +got):\n%s", diff)
	}
	if n := len(h.transport.messages()); n != 0 {
		t.Errorf("transport got %d messages, want none", n)
	}
	if diff := cmp.Diff("blocklist: jane@ipfirm.co.uk is blocklisted", h.contact(c.ID).HoldReason); diff != "" {
		t.Errorf("hold reason mismatch (-want +got):\n%s", diff)
	}
}
