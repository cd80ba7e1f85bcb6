// Package model defines the domain types used across the application.
package model

import "time"

// NoticeCategory is the kind of insolvency event a notice announces.
type NoticeCategory string

// Supported notice categories.
const (
	NoticeAdministration       NoticeCategory = "administration"
	NoticeReceivership         NoticeCategory = "administrative_receivership"
	NoticeCreditorsVoluntary   NoticeCategory = "creditors_voluntary_liquidation"
	NoticeMembersVoluntary     NoticeCategory = "members_voluntary_liquidation"
	NoticeWindingUpPetition    NoticeCategory = "winding_up_petition"
	NoticeWindingUpOrder       NoticeCategory = "winding_up_order"
	NoticeMeetingOfCreditors   NoticeCategory = "meeting_of_creditors"
	NoticeVoluntaryArrangement NoticeCategory = "voluntary_arrangement"
)

// Label returns the human-readable name of the category.
func (c NoticeCategory) Label() string {
	switch c {
	case NoticeAdministration:
		return "Administration"
	case NoticeReceivership:
		return "Administrative Receivership"
	case NoticeCreditorsVoluntary:
		return "Creditors' Voluntary Liquidation"
	case NoticeMembersVoluntary:
		return "Members' Voluntary Liquidation"
	case NoticeWindingUpPetition:
		return "Winding-Up Petition"
	case NoticeWindingUpOrder:
		return "Winding-Up Order"
	case NoticeMeetingOfCreditors:
		return "Meeting of Creditors"
	case NoticeVoluntaryArrangement:
		return "Voluntary Arrangement"
	}
	return string(c)
}

// Practitioner is an insolvency practitioner listed on a notice.
type Practitioner struct {
	Name  string
	Role  string
	Firm  string
	Email string
	Phone string
}

// Notice is a published insolvency event. It is immutable once ingested.
type Notice struct {
	ID            string
	Category      NoticeCategory
	Title         string
	CompanyName   string
	CompanyNumber string
	PublishedAt   time.Time
	Court         string
	URL           string
	Practitioners []Practitioner
}

// RegistryStatus is the company status reported by the company registry.
type RegistryStatus string

// Registry statuses the scorer and the qualification gates care about.
const (
	RegistryActive          RegistryStatus = "active"
	RegistryDissolved       RegistryStatus = "dissolved"
	RegistryClosed          RegistryStatus = "closed"
	RegistryConvertedClosed RegistryStatus = "converted-closed"
	RegistryLiquidation     RegistryStatus = "liquidation"
	RegistryAdministration  RegistryStatus = "administration"
	RegistryReceivership    RegistryStatus = "receivership"
)

// IsDead reports whether the company no longer exists on the register.
func (s RegistryStatus) IsDead() bool {
	switch s {
	case RegistryDissolved, RegistryClosed, RegistryConvertedClosed:
		return true
	}
	return false
}

// RegistryData is the company profile returned by the registry lookup.
type RegistryData struct {
	Found               bool
	Status              RegistryStatus
	CompanyType         string
	SICCodes            []string
	AccountsType        string
	HasAccountsFilings  bool
	AccountsOverdue     bool
	ConfirmationOverdue bool
	RecentActivity      bool
	ChargeCount         int
	OutstandingCharges  int
	OfficerCount        int
}

// EnrichedNotice is a notice plus registry and website signals.
// Re-enrichment replaces the whole value.
type EnrichedNotice struct {
	Notice
	Registry    RegistryData
	WebsiteLive bool
	EnrichedAt  time.Time
}

// Category buckets an opportunity score.
type Category string

// Score categories.
const (
	CategoryHigh   Category = "HIGH"
	CategoryMedium Category = "MEDIUM"
	CategoryLow    Category = "LOW"
	CategorySkip   Category = "SKIP"
)

// OpportunityScore is the derived score of an enriched notice.
type OpportunityScore struct {
	NoticeID string
	Score    int
	Category Category
	Signals  []string
}

// Status is the lifecycle state of an outreach contact.
type Status string

// Outreach contact states.
const (
	StatusQueued     Status = "queued"
	StatusSent       Status = "sent"
	StatusOpened     Status = "opened"
	StatusReplied    Status = "replied"
	StatusBounced    Status = "bounced"
	StatusNoResponse Status = "no_response"
	StatusMeeting    Status = "meeting"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
)

// Valid reports whether s is a known contact state.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusSent, StatusOpened, StatusReplied, StatusBounced,
		StatusNoResponse, StatusMeeting, StatusWon, StatusLost:
		return true
	}
	return false
}

// OutreachContact is one (notice, practitioner email) outreach record.
// Rows are never deleted; they only move between states.
type OutreachContact struct {
	ID               int64
	NoticeID         string
	CompanyName      string
	CompanyNumber    string
	NoticeCategory   NoticeCategory
	Score            int
	PractitionerName string
	Role             string
	Firm             string
	Email            string
	Status           Status
	CreatedAt        time.Time
	QueuedAt         *time.Time
	ApprovedAt       *time.Time
	ScheduledAt      *time.Time
	SentAt           *time.Time
	OpenedAt         *time.Time
	RepliedAt        *time.Time
	ClosedAt         *time.Time
	FollowUpCount    int
	NextFollowUpAt   *time.Time
	LastFollowUpAt   *time.Time
	Notes            string

	// SendToken identifies the send event that moved the contact to sent.
	SendToken string
	MessageID string

	// Lease fields implement the send reservation. A lease without an
	// expiry is a hold that only an operator can release.
	LeaseToken   string
	LeaseUntil   *time.Time
	HoldReason   string
	SendAttempts int
	LastError    string
	UpdatedAt    time.Time
}

// Held reports whether the contact is on hold waiting for an operator.
func (c *OutreachContact) Held() bool {
	return c.LeaseToken != "" && c.LeaseUntil == nil
}

// ContactHistory aggregates outreach to one practitioner email.
type ContactHistory struct {
	Email           string
	LastContactedAt *time.Time
	TotalContacts   int
	TotalReplies    int
	Blocked         bool
	BlockReason     string
}

// BlocklistEntry bars an email address or a whole domain. Entries are append-only.
type BlocklistEntry struct {
	ID        int64
	Value     string
	Reason    string
	CreatedAt time.Time
}

// SendKind distinguishes first contact from follow-ups.
type SendKind string

// Send kinds.
const (
	SendInitial  SendKind = "initial"
	SendFollowUp SendKind = "follow_up"
)

// SendEvent is one message accepted by the transport. Daily caps count these.
type SendEvent struct {
	Token     string
	Kind      SendKind
	Email     string
	Firm      string
	MessageID string
	Contacts  int
	SentAt    time.Time
}

// Decision is the persisted outcome of one qualification run.
type Decision struct {
	ID        int64
	NoticeID  string
	Email     string
	Accepted  bool
	Gate      string
	Observed  int
	Threshold int
	Detail    string
	DecidedAt time.Time
}

// DailySummary holds the outreach counters for one calendar date.
type DailySummary struct {
	Date             string
	NoticesFound     int
	NoticesQualified int
	EmailsQueued     int
	EmailsSent       int
	FollowUpsSent    int
	Replies          int
	Bounces          int
	UpdatedAt        time.Time
}
