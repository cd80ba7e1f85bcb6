package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"gazette_outreach/internal/contact"
	"gazette_outreach/internal/model"
	"gazette_outreach/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// querier is satisfied by *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements Tx on top of a querier.
type queries struct {
	db querier
}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	queries
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers in this process and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=10000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{queries: queries{db: db}, db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InTx runs fn inside BEGIN IMMEDIATE so the write lock is taken up front and
// concurrent processes serialise instead of failing on upgrade. fn must only
// use the Tx it is given.
func (s *SQLite) InTx(ctx context.Context, fn func(tx Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(queries{db: conn}); err != nil {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SaveNotice stores an enriched notice with its score. Re-enrichment replaces
// the stored notice wholesale but keeps the time it was first found.
func (q queries) SaveNotice(ctx context.Context, n model.EnrichedNotice, score model.OpportunityScore, at time.Time) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO notices (id, category, company_name, company_number, published_at, data, score, score_category, found_at, enriched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   category = excluded.category,
		   company_name = excluded.company_name,
		   company_number = excluded.company_number,
		   published_at = excluded.published_at,
		   data = excluded.data,
		   score = excluded.score,
		   score_category = excluded.score_category,
		   enriched_at = excluded.enriched_at`,
		n.ID, string(n.Category), n.CompanyName, n.CompanyNumber, ts(n.PublishedAt), string(data),
		score.Score, string(score.Category), ts(at), ts(n.EnrichedAt),
	)
	if err != nil {
		return fmt.Errorf("save notice: %w", err)
	}
	return nil
}

// GetNotice returns a stored enriched notice by its ID.
func (q queries) GetNotice(ctx context.Context, id string) (*model.EnrichedNotice, error) {
	var data string
	err := q.db.QueryRowContext(ctx, `SELECT data FROM notices WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notice: %w", err)
	}
	var n model.EnrichedNotice
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return nil, fmt.Errorf("decode notice %s: %w", id, err)
	}
	return &n, nil
}

// NoticeExists reports whether a notice has already been ingested.
func (q queries) NoticeExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notices WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check notice: %w", err)
	}
	return n > 0, nil
}

// IsBlocked reports whether the address, its host or its registrable domain
// is on the blocklist, or the address carries a manual block.
func (q queries) IsBlocked(ctx context.Context, email string) (bool, error) {
	keys := contact.BlockKeys(email)
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, contact.Normalize(email))

	var blocked int
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocklist WHERE value IN (`+placeholders(len(keys))+`))
		     OR EXISTS (SELECT 1 FROM ip_contact_history WHERE email = ? AND blocked = 1)`,
		args...,
	).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check blocklist: %w", err)
	}
	return blocked == 1, nil
}

// LastContacted returns when the address was last sent to, or nil.
func (q queries) LastContacted(ctx context.Context, email string) (*time.Time, error) {
	var last sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT last_contacted_at FROM ip_contact_history WHERE email = ?`, contact.Normalize(email),
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last contacted: %w", err)
	}
	return parseNullTS(last), nil
}

// CountSentByFirm counts send events for a firm key in [from, to).
func (q queries) CountSentByFirm(ctx context.Context, firm string, from, to time.Time) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM send_events WHERE firm = ? AND sent_at >= ? AND sent_at < ?`,
		firm, ts(from), ts(to),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count firm sends: %w", err)
	}
	return n, nil
}

// CountSent counts all send events in [from, to).
func (q queries) CountSent(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM send_events WHERE sent_at >= ? AND sent_at < ?`,
		ts(from), ts(to),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sends: %w", err)
	}
	return n, nil
}

// ContactExists reports whether a contact is already keyed by (notice, email).
func (q queries) ContactExists(ctx context.Context, noticeID, email string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outreach_contacts WHERE notice_id = ? AND email = ?`,
		noticeID, contact.Normalize(email),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check contact: %w", err)
	}
	return n > 0, nil
}

var contactFields = []string{
	"notice_id", "company_name", "company_number", "notice_category", "score",
	"practitioner_name", "role", "firm", "email", "status",
	"created_at", "queued_at", "approved_at", "scheduled_at", "sent_at",
	"opened_at", "replied_at", "closed_at", "follow_up_count", "next_follow_up_at",
	"last_follow_up_at", "notes", "send_token", "message_id", "lease_token",
	"lease_until", "hold_reason", "send_attempts", "last_error", "updated_at",
}

var (
	insertContactSQL = `INSERT INTO outreach_contacts (` + strings.Join(contactFields, ", ") + `)
		VALUES (` + placeholders(len(contactFields)) + `)
		ON CONFLICT (notice_id, email) DO NOTHING`
	updateContactSQL = `UPDATE outreach_contacts SET ` + strings.Join(contactFields, " = ?, ") + ` = ?
		WHERE id = ? AND status = ?`
	selectContactSQL = `SELECT id, ` + strings.Join(contactFields, ", ") + ` FROM outreach_contacts`
)

func contactArgs(c *model.OutreachContact) []any {
	return []any{
		c.NoticeID, c.CompanyName, c.CompanyNumber, string(c.NoticeCategory), c.Score,
		c.PractitionerName, c.Role, c.Firm, c.Email, string(c.Status),
		ts(c.CreatedAt), nullTS(c.QueuedAt), nullTS(c.ApprovedAt), nullTS(c.ScheduledAt), nullTS(c.SentAt),
		nullTS(c.OpenedAt), nullTS(c.RepliedAt), nullTS(c.ClosedAt), c.FollowUpCount, nullTS(c.NextFollowUpAt),
		nullTS(c.LastFollowUpAt), c.Notes, c.SendToken, c.MessageID, c.LeaseToken,
		nullTS(c.LeaseUntil), c.HoldReason, c.SendAttempts, c.LastError, ts(c.UpdatedAt),
	}
}

// CreateContact inserts a new contact and populates its ID. It returns
// ErrConflict when a contact already exists for the (notice, email) pair.
func (q queries) CreateContact(ctx context.Context, c *model.OutreachContact) error {
	now := time.Now().UTC().Truncate(time.Second)
	c.Email = contact.Normalize(c.Email)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	res, err := q.db.ExecContext(ctx, insertContactSQL, contactArgs(c)...)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("contact %s for notice %s: %w", c.Email, c.NoticeID, ErrConflict)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// GetContact returns a single contact by its ID.
func (q queries) GetContact(ctx context.Context, id int64) (*model.OutreachContact, error) {
	row := q.db.QueryRowContext(ctx, selectContactSQL+` WHERE id = ?`, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns the contacts matching f ordered by ID.
func (q queries) ListContacts(ctx context.Context, f ContactFilter) ([]model.OutreachContact, error) {
	var where []string
	var args []any
	if len(f.Statuses) > 0 {
		where = append(where, `status IN (`+placeholders(len(f.Statuses))+`)`)
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.Email != "" {
		where = append(where, `email = ?`)
		args = append(args, contact.Normalize(f.Email))
	}
	if f.NoticeID != "" {
		where = append(where, `notice_id = ?`)
		args = append(args, f.NoticeID)
	}
	if f.MessageID != "" {
		where = append(where, `message_id = ?`)
		args = append(args, f.MessageID)
	}
	if f.SendToken != "" {
		where = append(where, `send_token = ?`)
		args = append(args, f.SendToken)
	}
	if f.LeaseToken != "" {
		where = append(where, `lease_token = ?`)
		args = append(args, f.LeaseToken)
	}
	if f.Unleased {
		where = append(where, `lease_token = ''`)
	}
	if f.LeaseExpiredAt != nil {
		where = append(where, `lease_token != '' AND lease_until IS NOT NULL AND lease_until <= ?`)
		args = append(args, ts(*f.LeaseExpiredAt))
	}
	if f.FollowUpDueAt != nil {
		where = append(where, `next_follow_up_at IS NOT NULL AND next_follow_up_at <= ?`)
		args = append(args, ts(*f.FollowUpDueAt))
	}
	if f.ApprovedOnly {
		where = append(where, `approved_at IS NOT NULL`)
	}

	query := selectContactSQL
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []model.OutreachContact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// UpdateContact persists c if its stored status still equals from. It
// returns ErrConflict when the row moved on in the meantime.
func (q queries) UpdateContact(ctx context.Context, c *model.OutreachContact, from model.Status) error {
	c.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	args := append(contactArgs(c), c.ID, string(from))
	res, err := q.db.ExecContext(ctx, updateContactSQL, args...)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("contact %d no longer %s: %w", c.ID, from, ErrConflict)
	}
	return nil
}

// CountByStatus returns the number of contacts in each status.
func (q queries) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outreach_contacts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}

// RecordSend stores a send event once. It reports false when the token was
// already recorded.
func (q queries) RecordSend(ctx context.Context, ev model.SendEvent) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO send_events (token, kind, email, firm, message_id, contacts, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (token) DO NOTHING`,
		ev.Token, string(ev.Kind), contact.Normalize(ev.Email), ev.Firm, ev.MessageID, ev.Contacts, ts(ev.SentAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert send event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// LastSendAt returns the time of the most recent send event, or nil.
func (q queries) LastSendAt(ctx context.Context) (*time.Time, error) {
	var last sql.NullString
	if err := q.db.QueryRowContext(ctx, `SELECT MAX(sent_at) FROM send_events`).Scan(&last); err != nil {
		return nil, fmt.Errorf("get last send: %w", err)
	}
	return parseNullTS(last), nil
}

// TouchHistory records a send to the address.
func (q queries) TouchHistory(ctx context.Context, email string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ip_contact_history (email, last_contacted_at, total_contacts)
		 VALUES (?, ?, 1)
		 ON CONFLICT (email) DO UPDATE SET
		   last_contacted_at = CASE
		     WHEN last_contacted_at IS NULL OR excluded.last_contacted_at > last_contacted_at
		     THEN excluded.last_contacted_at ELSE last_contacted_at END,
		   total_contacts = total_contacts + 1`,
		contact.Normalize(email), ts(at),
	)
	if err != nil {
		return fmt.Errorf("touch history: %w", err)
	}
	return nil
}

// AddReply increments the reply counter of the address.
func (q queries) AddReply(ctx context.Context, email string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ip_contact_history (email, total_replies) VALUES (?, 1)
		 ON CONFLICT (email) DO UPDATE SET total_replies = total_replies + 1`,
		contact.Normalize(email),
	)
	if err != nil {
		return fmt.Errorf("add reply: %w", err)
	}
	return nil
}

// SetManualBlock flags the address as blocked by the operator.
func (q queries) SetManualBlock(ctx context.Context, email, reason string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ip_contact_history (email, blocked, block_reason) VALUES (?, 1, ?)
		 ON CONFLICT (email) DO UPDATE SET blocked = 1, block_reason = excluded.block_reason`,
		contact.Normalize(email), reason,
	)
	if err != nil {
		return fmt.Errorf("set manual block: %w", err)
	}
	return nil
}

// GetHistory returns the contact history of an address.
func (q queries) GetHistory(ctx context.Context, email string) (*model.ContactHistory, error) {
	var h model.ContactHistory
	var last sql.NullString
	var blocked int
	err := q.db.QueryRowContext(ctx,
		`SELECT email, last_contacted_at, total_contacts, total_replies, blocked, block_reason
		 FROM ip_contact_history WHERE email = ?`, contact.Normalize(email),
	).Scan(&h.Email, &last, &h.TotalContacts, &h.TotalReplies, &blocked, &h.BlockReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history for %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	h.LastContactedAt = parseNullTS(last)
	h.Blocked = blocked == 1
	return &h, nil
}

// AddBlock appends an email address or domain to the blocklist.
func (q queries) AddBlock(ctx context.Context, value, reason string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO blocklist (value, reason, created_at) VALUES (?, ?, ?)`,
		contact.Normalize(value), reason, ts(at),
	)
	if err != nil {
		return fmt.Errorf("insert blocklist entry: %w", err)
	}
	return nil
}

// ListBlocklist returns all blocklist entries in insertion order.
func (q queries) ListBlocklist(ctx context.Context) ([]model.BlocklistEntry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, value, reason, created_at FROM blocklist ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query blocklist: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.BlocklistEntry
	for rows.Next() {
		var e model.BlocklistEntry
		var created string
		if err := rows.Scan(&e.ID, &e.Value, &e.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan blocklist entry: %w", err)
		}
		e.CreatedAt = parseTS(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordDecision stores one qualification decision and populates its ID.
func (q queries) RecordDecision(ctx context.Context, d *model.Decision) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO qualification_decisions (notice_id, email, accepted, gate, observed, threshold, detail, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.NoticeID, d.Email, boolToInt(d.Accepted), d.Gate, d.Observed, d.Threshold, d.Detail, ts(d.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// ListDecisions returns the decisions taken in [from, to).
func (q queries) ListDecisions(ctx context.Context, from, to time.Time) ([]model.Decision, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, notice_id, email, accepted, gate, observed, threshold, detail, decided_at
		 FROM qualification_decisions WHERE decided_at >= ? AND decided_at < ? ORDER BY id`,
		ts(from), ts(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []model.Decision
	for rows.Next() {
		var d model.Decision
		var accepted int
		var decided string
		if err := rows.Scan(&d.ID, &d.NoticeID, &d.Email, &accepted, &d.Gate, &d.Observed, &d.Threshold, &d.Detail, &decided); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Accepted = accepted == 1
		d.DecidedAt = parseTS(decided)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// LatestDecision returns the most recent decision taken on a notice.
func (q queries) LatestDecision(ctx context.Context, noticeID string) (*model.Decision, error) {
	var d model.Decision
	var accepted int
	var decided string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, notice_id, email, accepted, gate, observed, threshold, detail, decided_at
		 FROM qualification_decisions WHERE notice_id = ? ORDER BY id DESC LIMIT 1`,
		noticeID,
	).Scan(&d.ID, &d.NoticeID, &d.Email, &accepted, &d.Gate, &d.Observed, &d.Threshold, &d.Detail, &decided)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest decision: %w", err)
	}
	d.Accepted = accepted == 1
	d.DecidedAt = parseTS(decided)
	return &d, nil
}

// ComputeSummary derives the counters for one day from the stored state.
func (q queries) ComputeSummary(ctx context.Context, date string, from, to time.Time) (model.DailySummary, error) {
	s := model.DailySummary{Date: date}
	f, t := ts(from), ts(to)
	err := q.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM notices WHERE found_at >= ? AND found_at < ?),
		   (SELECT COUNT(DISTINCT notice_id) FROM qualification_decisions WHERE accepted = 1 AND decided_at >= ? AND decided_at < ?),
		   (SELECT COUNT(*) FROM outreach_contacts WHERE queued_at >= ? AND queued_at < ?),
		   (SELECT COUNT(*) FROM send_events WHERE kind = 'initial' AND sent_at >= ? AND sent_at < ?),
		   (SELECT COUNT(*) FROM send_events WHERE kind = 'follow_up' AND sent_at >= ? AND sent_at < ?),
		   (SELECT COUNT(*) FROM outreach_contacts WHERE replied_at >= ? AND replied_at < ?),
		   (SELECT COUNT(*) FROM outreach_contacts WHERE status = 'bounced' AND closed_at >= ? AND closed_at < ?)`,
		f, t, f, t, f, t, f, t, f, t, f, t, f, t,
	).Scan(&s.NoticesFound, &s.NoticesQualified, &s.EmailsQueued, &s.EmailsSent, &s.FollowUpsSent, &s.Replies, &s.Bounces)
	if err != nil {
		return s, fmt.Errorf("compute summary: %w", err)
	}
	return s, nil
}

// UpsertSummary stores the summary, replacing any earlier row for the date.
func (q queries) UpsertSummary(ctx context.Context, s *model.DailySummary) error {
	s.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO daily_summaries (date, notices_found, notices_qualified, emails_queued, emails_sent, follow_ups_sent, replies, bounces, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (date) DO UPDATE SET
		   notices_found = excluded.notices_found,
		   notices_qualified = excluded.notices_qualified,
		   emails_queued = excluded.emails_queued,
		   emails_sent = excluded.emails_sent,
		   follow_ups_sent = excluded.follow_ups_sent,
		   replies = excluded.replies,
		   bounces = excluded.bounces,
		   updated_at = excluded.updated_at`,
		s.Date, s.NoticesFound, s.NoticesQualified, s.EmailsQueued, s.EmailsSent, s.FollowUpsSent, s.Replies, s.Bounces, ts(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// GetSummary returns the stored summary for a date (YYYY-MM-DD).
func (q queries) GetSummary(ctx context.Context, date string) (*model.DailySummary, error) {
	var s model.DailySummary
	var updated string
	err := q.db.QueryRowContext(ctx,
		`SELECT date, notices_found, notices_qualified, emails_queued, emails_sent, follow_ups_sent, replies, bounces, updated_at
		 FROM daily_summaries WHERE date = ?`, date,
	).Scan(&s.Date, &s.NoticesFound, &s.NoticesQualified, &s.EmailsQueued, &s.EmailsSent, &s.FollowUpsSent, &s.Replies, &s.Bounces, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	s.UpdatedAt = parseTS(updated)
	return &s, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContact(row scannable) (model.OutreachContact, error) {
	var c model.OutreachContact
	var category, status, created, updated string
	var queued, approved, scheduled, sent, opened, replied, closed, nextFU, lastFU, leaseUntil sql.NullString
	err := row.Scan(
		&c.ID, &c.NoticeID, &c.CompanyName, &c.CompanyNumber, &category, &c.Score,
		&c.PractitionerName, &c.Role, &c.Firm, &c.Email, &status,
		&created, &queued, &approved, &scheduled, &sent,
		&opened, &replied, &closed, &c.FollowUpCount, &nextFU,
		&lastFU, &c.Notes, &c.SendToken, &c.MessageID, &c.LeaseToken,
		&leaseUntil, &c.HoldReason, &c.SendAttempts, &c.LastError, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan contact: %w", err)
	}
	c.NoticeCategory = model.NoticeCategory(category)
	c.Status = model.Status(status)
	c.CreatedAt = parseTS(created)
	c.UpdatedAt = parseTS(updated)
	c.QueuedAt = parseNullTS(queued)
	c.ApprovedAt = parseNullTS(approved)
	c.ScheduledAt = parseNullTS(scheduled)
	c.SentAt = parseNullTS(sent)
	c.OpenedAt = parseNullTS(opened)
	c.RepliedAt = parseNullTS(replied)
	c.ClosedAt = parseNullTS(closed)
	c.NextFollowUpAt = parseNullTS(nextFU)
	c.LastFollowUpAt = parseNullTS(lastFU)
	c.LeaseUntil = parseNullTS(leaseUntil)
	return c, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTS(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
