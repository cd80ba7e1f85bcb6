package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"gazette_outreach/internal/model"
)

var ignoreContactTS = cmpopts.IgnoreFields(model.OutreachContact{}, "CreatedAt", "UpdatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tp(t time.Time) *time.Time { return &t }

func newContact(noticeID, email string) model.OutreachContact {
	queued := time.Date(2026, 3, 18, 8, 0, 0, 0, time.UTC)
	return model.OutreachContact{
		NoticeID:         noticeID,
		CompanyName:      "Acme Widgets Ltd",
		CompanyNumber:    "01234567",
		NoticeCategory:   model.NoticeAdministration,
		Score:            78,
		PractitionerName: "Jane Smith",
		Role:             "Joint Administrator",
		Firm:             "ip firm llp",
		Email:            email,
		Status:           model.StatusQueued,
		QueuedAt:         &queued,
	}
}

func TestContactCreateGet(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name    string
		contact model.OutreachContact
	}{
		{
			name:    "queued contact",
			contact: newContact("100", "jane@ipfirm.co.uk"),
		},
		{
			name: "contact with every timestamp",
			contact: func() model.OutreachContact {
				c := newContact("101", "bob@ipfirm.co.uk")
				at := time.Date(2026, 3, 18, 10, 30, 0, 0, time.UTC)
				c.Status = model.StatusSent
				c.ApprovedAt, c.ScheduledAt, c.SentAt = tp(at), tp(at), tp(at)
				c.NextFollowUpAt = tp(at.AddDate(0, 0, 7))
				c.SendToken, c.MessageID = "tok-1", "<abc@ipfirm.co.uk>"
				c.Notes = "auto-reply received"
				return c
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.contact
			if err := s.CreateContact(ctx, &c); err != nil {
				t.Fatalf("create: %v", err)
			}
			if c.ID == 0 {
				t.Fatal("expected non-zero ID")
			}

			got, err := s.GetContact(ctx, c.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			want := tt.contact
			want.ID = c.ID
			if diff := cmp.Diff(want, *got, ignoreContactTS); diff != "" {
				t.Errorf("GetContact mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateContactConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	first := newContact("100", "jane@ipfirm.co.uk")
	if err := s.CreateContact(ctx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := newContact("100", "Jane@IPFirm.co.uk")
	if err := s.CreateContact(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate create error = %v, want ErrConflict", err)
	}

	exists, err := s.ContactExists(ctx, "100", "JANE@ipfirm.co.uk")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Error("ContactExists() = false, want true")
	}
}

func TestGetContactNotFound(t *testing.T) {
	s := newTestDB(t)
	if _, err := s.GetContact(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetContact() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateContactCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	c := newContact("100", "jane@ipfirm.co.uk")
	if err := s.CreateContact(ctx, &c); err != nil {
		t.Fatalf("create: %v", err)
	}

	c.Status = model.StatusSent
	if err := s.UpdateContact(ctx, &c, model.StatusQueued); err != nil {
		t.Fatalf("first update: %v", err)
	}

	stale := c
	stale.Status = model.StatusBounced
	if err := s.UpdateContact(ctx, &stale, model.StatusQueued); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale update error = %v, want ErrConflict", err)
	}

	got, err := s.GetContact(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(model.StatusSent, got.Status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestListContactsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

	free := newContact("1", "a@one.co.uk")
	leased := newContact("2", "a@one.co.uk")
	leased.LeaseToken, leased.LeaseUntil = "lease-1", tp(now.Add(5*time.Minute))
	expired := newContact("3", "b@two.co.uk")
	expired.LeaseToken, expired.LeaseUntil = "lease-0", tp(now.Add(-time.Minute))
	held := newContact("4", "c@three.co.uk")
	held.LeaseToken, held.HoldReason = "hold-1", "uncertain send result"
	sent := newContact("5", "d@four.co.uk")
	sent.Status, sent.NextFollowUpAt = model.StatusSent, tp(now.Add(-time.Hour))
	notDue := newContact("6", "e@five.co.uk")
	notDue.Status, notDue.NextFollowUpAt = model.StatusSent, tp(now.Add(time.Hour))

	for _, c := range []*model.OutreachContact{&free, &leased, &expired, &held, &sent, &notDue} {
		if err := s.CreateContact(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	ids := func(cs []model.OutreachContact) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.NoticeID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter ContactFilter
		want   []string
	}{
		{"all", ContactFilter{}, []string{"1", "2", "3", "4", "5", "6"}},
		{"queued and unleased", ContactFilter{Statuses: []model.Status{model.StatusQueued}, Unleased: true}, []string{"1"}},
		{"lease expired", ContactFilter{LeaseExpiredAt: &now}, []string{"3"}},
		{"by lease token", ContactFilter{LeaseToken: "lease-1"}, []string{"2"}},
		{"by email", ContactFilter{Email: "A@One.co.uk"}, []string{"1", "2"}},
		{"follow-ups due", ContactFilter{Statuses: []model.Status{model.StatusSent}, FollowUpDueAt: &now}, []string{"5"}},
		{"limit", ContactFilter{Limit: 2}, []string{"1", "2"}},
		{"approved only", ContactFilter{ApprovedOnly: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListContacts(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("ListContacts mismatch (-want +got):\n%s", diff)
			}
		})
	}

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	want := map[model.Status]int{model.StatusQueued: 4, model.StatusSent: 2}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountByStatus mismatch (-want +got):\n%s", diff)
	}
}

func TestSendEventsAndCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	day := time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)

	events := []model.SendEvent{
		{Token: "t1", Kind: model.SendInitial, Email: "a@one.co.uk", Firm: "one", Contacts: 2, SentAt: day.Add(9 * time.Hour)},
		{Token: "t2", Kind: model.SendFollowUp, Email: "b@one.co.uk", Firm: "one", Contacts: 1, SentAt: day.Add(10 * time.Hour)},
		{Token: "t3", Kind: model.SendInitial, Email: "c@two.co.uk", Firm: "two", Contacts: 1, SentAt: day.Add(-time.Hour)},
	}
	for _, ev := range events {
		inserted, err := s.RecordSend(ctx, ev)
		if err != nil {
			t.Fatalf("record send: %v", err)
		}
		if !inserted {
			t.Fatalf("RecordSend(%s) = false on first insert", ev.Token)
		}
	}

	again, err := s.RecordSend(ctx, events[0])
	if err != nil {
		t.Fatalf("record send again: %v", err)
	}
	if again {
		t.Error("RecordSend() replay = true, want false")
	}

	total, err := s.CountSent(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if diff := cmp.Diff(2, total); diff != "" {
		t.Errorf("CountSent mismatch (-want +got):\n%s", diff)
	}

	firm, err := s.CountSentByFirm(ctx, "one", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("count firm: %v", err)
	}
	if diff := cmp.Diff(2, firm); diff != "" {
		t.Errorf("CountSentByFirm mismatch (-want +got):\n%s", diff)
	}

	last, err := s.LastSendAt(ctx)
	if err != nil {
		t.Fatalf("last send: %v", err)
	}
	if diff := cmp.Diff(tp(day.Add(10*time.Hour)), last); diff != "" {
		t.Errorf("LastSendAt mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryAndBlocklist(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	at := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)

	if last, err := s.LastContacted(ctx, "jane@ipfirm.co.uk"); err != nil || last != nil {
		t.Fatalf("LastContacted() = %v, %v; want nil, nil", last, err)
	}

	if err := s.TouchHistory(ctx, "jane@ipfirm.co.uk", at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := s.TouchHistory(ctx, "Jane@ipfirm.co.uk", at.Add(-48*time.Hour)); err != nil {
		t.Fatalf("touch older: %v", err)
	}
	if err := s.AddReply(ctx, "jane@ipfirm.co.uk"); err != nil {
		t.Fatalf("add reply: %v", err)
	}

	got, err := s.GetHistory(ctx, "jane@ipfirm.co.uk")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	want := &model.ContactHistory{
		Email:           "jane@ipfirm.co.uk",
		LastContactedAt: tp(at),
		TotalContacts:   2,
		TotalReplies:    1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetHistory mismatch (-want +got):\n%s", diff)
	}

	if err := s.AddBlock(ctx, "IPFirm.co.uk", "bounce", at); err != nil {
		t.Fatalf("add block: %v", err)
	}
	if err := s.SetManualBlock(ctx, "other@elsewhere.com", "manual: asked to stop"); err != nil {
		t.Fatalf("manual block: %v", err)
	}

	tests := []struct {
		email string
		want  bool
	}{
		{"jane@ipfirm.co.uk", true},
		{"bob@mail.ipfirm.co.uk", true},
		{"other@elsewhere.com", true},
		{"someone@elsewhere.com", false},
	}
	for _, tt := range tests {
		blocked, err := s.IsBlocked(ctx, tt.email)
		if err != nil {
			t.Fatalf("is blocked: %v", err)
		}
		if diff := cmp.Diff(tt.want, blocked); diff != "" {
			t.Errorf("IsBlocked(%q) mismatch (-want +got):\n%s", tt.email, diff)
		}
	}

	entries, err := s.ListBlocklist(ctx)
	if err != nil {
		t.Fatalf("list blocklist: %v", err)
	}
	wantEntries := []model.BlocklistEntry{{Value: "ipfirm.co.uk", Reason: "bounce", CreatedAt: at}}
	if diff := cmp.Diff(wantEntries, entries, cmpopts.IgnoreFields(model.BlocklistEntry{}, "ID")); diff != "" {
		t.Errorf("ListBlocklist mismatch (-want +got):\n%s", diff)
	}
}

func TestNoticeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	at := time.Date(2026, 3, 18, 7, 0, 0, 0, time.UTC)

	n := model.EnrichedNotice{
		Notice: model.Notice{
			ID:            "4401234",
			Category:      model.NoticeAdministration,
			CompanyName:   "Acme Widgets Ltd",
			CompanyNumber: "01234567",
			PublishedAt:   at.Add(-24 * time.Hour),
			Practitioners: []model.Practitioner{{Name: "Jane Smith", Email: "jane@ipfirm.co.uk"}},
		},
		Registry:    model.RegistryData{Found: true, Status: model.RegistryAdministration, SICCodes: []string{"47110"}},
		WebsiteLive: true,
		EnrichedAt:  at,
	}
	score := model.OpportunityScore{NoticeID: n.ID, Score: 78, Category: model.CategoryHigh}

	if err := s.SaveNotice(ctx, n, score, at); err != nil {
		t.Fatalf("save: %v", err)
	}
	n.WebsiteLive = false
	if err := s.SaveNotice(ctx, n, score, at.Add(time.Hour)); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := s.GetNotice(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(n, *got); diff != "" {
		t.Errorf("GetNotice mismatch (-want +got):\n%s", diff)
	}

	sum, err := s.ComputeSummary(ctx, "2026-03-18", at.Truncate(24*time.Hour), at.Truncate(24*time.Hour).AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if diff := cmp.Diff(1, sum.NoticesFound); diff != "" {
		t.Errorf("notices found mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetNotice(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetNotice(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSummaryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	first := &model.DailySummary{Date: "2026-03-18", NoticesFound: 4, EmailsSent: 1}
	if err := s.UpsertSummary(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := &model.DailySummary{Date: "2026-03-18", NoticesFound: 5, EmailsSent: 2, Replies: 1}
	if err := s.UpsertSummary(ctx, second); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := s.GetSummary(ctx, "2026-03-18")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(*second, *got, cmpopts.IgnoreFields(model.DailySummary{}, "UpdatedAt")); diff != "" {
		t.Errorf("GetSummary mismatch (-want +got):\n%s", diff)
	}
}

func TestDecisionsLog(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	at := time.Date(2026, 3, 18, 7, 5, 0, 0, time.UTC)

	decisions := []model.Decision{
		{NoticeID: "1", Email: "a@one.co.uk", Accepted: true, DecidedAt: at},
		{NoticeID: "2", Email: "a@one.co.uk", Gate: "cooldown", Observed: 10, Threshold: 14, Detail: "cooldown: contacted 10 days ago, need 14", DecidedAt: at},
	}
	for i := range decisions {
		if err := s.RecordDecision(ctx, &decisions[i]); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.ListDecisions(ctx, at.Truncate(24*time.Hour), at.Truncate(24*time.Hour).AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(decisions, got); diff != "" {
		t.Errorf("ListDecisions mismatch (-want +got):\n%s", diff)
	}

	retry := model.Decision{NoticeID: "2", Email: "a@one.co.uk", Accepted: true, DecidedAt: at.AddDate(0, 0, 4)}
	if err := s.RecordDecision(ctx, &retry); err != nil {
		t.Fatalf("record: %v", err)
	}
	latest, err := s.LatestDecision(ctx, "2")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if diff := cmp.Diff(retry, *latest); diff != "" {
		t.Errorf("LatestDecision mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.LatestDecision(ctx, "9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestDecision() for an unknown notice error = %v, want ErrNotFound", err)
	}
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Tx) error {
		c := newContact("100", "jane@ipfirm.co.uk")
		if err := tx.CreateContact(ctx, &c); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	exists, err := s.ContactExists(ctx, "100", "jane@ipfirm.co.uk")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Error("contact survived a rolled back transaction")
	}

	err = s.InTx(ctx, func(tx Tx) error {
		c := newContact("100", "jane@ipfirm.co.uk")
		return tx.CreateContact(ctx, &c)
	})
	if err != nil {
		t.Fatalf("InTx() commit error = %v", err)
	}
	exists, err = s.ContactExists(ctx, "100", "jane@ipfirm.co.uk")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Error("committed contact missing")
	}
}
