// Package outreach runs the outreach pipeline: ingesting notices, queueing
// qualified contacts, sending and following up, and applying replies.
package outreach

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gazette_outreach/internal/config"
	"gazette_outreach/internal/mailer"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/planner"
	"gazette_outreach/internal/qualify"
	"gazette_outreach/internal/storage"
)

// NoticeSource lists insolvency notices published since a date.
type NoticeSource interface {
	FetchNotices(ctx context.Context, since time.Time) ([]model.Notice, error)
}

// Enricher adds registry and website signals to a notice.
type Enricher interface {
	Enrich(ctx context.Context, n model.Notice) (model.EnrichedNotice, error)
}

// StatusChecker reports the current registry status of a company.
type StatusChecker interface {
	CompanyStatus(ctx context.Context, number string) (model.RegistryStatus, error)
}

// Renderer fills an email template.
type Renderer interface {
	Render(id mailer.TemplateID, v mailer.Vars) (string, string, error)
}

// Transport delivers one email.
type Transport interface {
	Send(ctx context.Context, msg mailer.Message) mailer.Result
}

// Notifier forwards short operator messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Deps are the collaborators of an Engine. Source, Enricher, StatusChecker
// and Notifier may be nil.
type Deps struct {
	Store     storage.Storage
	Source    NoticeSource
	Enricher  Enricher
	Status    StatusChecker
	Renderer  Renderer
	Transport Transport
	Notifier  Notifier
	Random    planner.Random
	// Now defaults to time.Now.
	Now func() time.Time
	// NewToken defaults to random UUIDs.
	NewToken func() string
}

// Engine coordinates the outreach pipeline over the store.
type Engine struct {
	store     storage.Storage
	source    NoticeSource
	enricher  Enricher
	status    StatusChecker
	renderer  Renderer
	transport Transport
	notifier  Notifier

	rules   config.Rules
	sender  config.Sender
	planner *planner.Planner
	log     *slog.Logger

	now      func() time.Time
	newToken func() string
}

// New creates an Engine.
func New(rules config.Rules, sender config.Sender, d Deps, log *slog.Logger) *Engine {
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	e := &Engine{
		store:     d.Store,
		source:    d.Source,
		enricher:  d.Enricher,
		status:    d.Status,
		renderer:  d.Renderer,
		transport: d.Transport,
		notifier:  d.Notifier,
		rules:     rules,
		sender:    sender,
		planner:   planner.New(rules, d.Random),
		log:       log,
		now:       d.Now,
		newToken:  d.NewToken,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newToken == nil {
		e.newToken = func() string { return uuid.NewString() }
	}
	return e
}

// Rules returns the rules the engine was created with.
func (e *Engine) Rules() config.Rules {
	return e.rules
}

func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Second)
}

func (e *Engine) policy() Policy {
	return Policy{MaxFollowUps: e.rules.MaxFollowUps, FollowUpDelay: e.rules.FollowUpDelay()}
}

func (e *Engine) limits(now time.Time) qualify.Limits {
	return qualify.Limits{
		MinScore:     e.rules.MinOutreachScore,
		CooldownDays: e.rules.CooldownDays,
		FirmCap:      e.rules.MaxPerFirmPerDay,
		GlobalCap:    e.rules.DailyCap(now),
		Location:     e.rules.Location,
	}
}

func (e *Engine) notify(ctx context.Context, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, text); err != nil {
		e.log.Error("notify operator", "error", err)
	}
}
