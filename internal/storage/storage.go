// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"gazette_outreach/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a row was changed or created concurrently.
	ErrConflict = errors.New("conflict")
)

// ContactFilter selects outreach contacts. Zero fields do not filter.
type ContactFilter struct {
	Statuses  []model.Status
	Email     string
	NoticeID  string
	MessageID string
	SendToken string
	// LeaseToken selects the contacts reserved under one token.
	LeaseToken string
	// Unleased keeps only contacts with no lease or hold at all.
	Unleased bool
	// LeaseExpiredAt keeps only contacts whose lease ran out by then
	// without the send result being applied.
	LeaseExpiredAt *time.Time
	// FollowUpDueAt keeps only contacts whose next follow-up is due by then.
	FollowUpDueAt *time.Time
	ApprovedOnly  bool
	Limit         int
}

// Tx is the set of operations available directly on a store and inside
// a transaction started with InTx.
type Tx interface {
	SaveNotice(ctx context.Context, n model.EnrichedNotice, score model.OpportunityScore, at time.Time) error
	GetNotice(ctx context.Context, id string) (*model.EnrichedNotice, error)
	NoticeExists(ctx context.Context, id string) (bool, error)

	IsBlocked(ctx context.Context, email string) (bool, error)
	LastContacted(ctx context.Context, email string) (*time.Time, error)
	CountSentByFirm(ctx context.Context, firm string, from, to time.Time) (int, error)
	CountSent(ctx context.Context, from, to time.Time) (int, error)
	ContactExists(ctx context.Context, noticeID, email string) (bool, error)

	CreateContact(ctx context.Context, c *model.OutreachContact) error
	GetContact(ctx context.Context, id int64) (*model.OutreachContact, error)
	ListContacts(ctx context.Context, f ContactFilter) ([]model.OutreachContact, error)
	UpdateContact(ctx context.Context, c *model.OutreachContact, from model.Status) error
	CountByStatus(ctx context.Context) (map[model.Status]int, error)

	RecordSend(ctx context.Context, ev model.SendEvent) (bool, error)
	LastSendAt(ctx context.Context) (*time.Time, error)
	TouchHistory(ctx context.Context, email string, at time.Time) error
	AddReply(ctx context.Context, email string) error
	SetManualBlock(ctx context.Context, email, reason string) error
	GetHistory(ctx context.Context, email string) (*model.ContactHistory, error)

	AddBlock(ctx context.Context, value, reason string, at time.Time) error
	ListBlocklist(ctx context.Context) ([]model.BlocklistEntry, error)

	RecordDecision(ctx context.Context, d *model.Decision) error
	ListDecisions(ctx context.Context, from, to time.Time) ([]model.Decision, error)
	LatestDecision(ctx context.Context, noticeID string) (*model.Decision, error)

	ComputeSummary(ctx context.Context, date string, from, to time.Time) (model.DailySummary, error)
	UpsertSummary(ctx context.Context, s *model.DailySummary) error
	GetSummary(ctx context.Context, date string) (*model.DailySummary, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	Tx

	// InTx runs fn atomically. Writes from other processes wait until it returns.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
