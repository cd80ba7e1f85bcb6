package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"gazette_outreach/internal/config"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/outreach"
	"gazette_outreach/internal/replies"
)

// Engine is the part of the outreach engine the scheduler drives.
type Engine interface {
	Ingest(ctx context.Context, since time.Time) (outreach.IngestResult, error)
	SendDue(ctx context.Context) (outreach.SendResult, error)
	FollowUpDue(ctx context.Context) (outreach.SendResult, error)
	ReportSummary(ctx context.Context) (model.DailySummary, error)
}

// Poller checks the inbox for replies and bounces.
type Poller interface {
	Poll(ctx context.Context) (replies.PollResult, error)
}

// Scheduler runs ingest and the daily summary on cron schedules, and sends,
// follow-ups and inbox polls on a ticker.
type Scheduler struct {
	engine   Engine
	poller   Poller
	cron     config.Cron
	lookback int
	pollGap  time.Duration
	log      *slog.Logger
	now      func() time.Time
	tick     time.Duration

	// mu serializes jobs so an ingest never overlaps a send pass.
	mu       sync.Mutex
	lastPoll time.Time
}

// New creates a Scheduler. poller may be nil when no inbox is configured.
func New(engine Engine, poller Poller, cfg *config.Config, log *slog.Logger) *Scheduler {
	tick := cfg.Cron.Tick
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		engine:   engine,
		poller:   poller,
		cron:     cfg.Cron,
		lookback: max(cfg.Gazette.LookbackDays, 1),
		pollGap:  cfg.IMAP.PollInterval,
		log:      log,
		now:      time.Now,
		tick:     tick,
	}
}

// SetTickInterval overrides the send tick interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run registers the cron jobs and starts the send loop, blocking until ctx
// is cancelled. Running jobs are allowed to finish before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronLogger{s.log}),
			cronv3.Recover(cronLogger{s.log}),
		),
	)
	if s.cron.Ingest != "" {
		if _, err := c.AddFunc(s.cron.Ingest, func() { s.RunIngest(ctx) }); err != nil {
			return fmt.Errorf("add ingest job %q: %w", s.cron.Ingest, err)
		}
		s.log.Info("registered ingest job", "schedule", s.cron.Ingest)
	}
	if s.cron.Summary != "" {
		if _, err := c.AddFunc(s.cron.Summary, func() { s.RunSummary(ctx) }); err != nil {
			return fmt.Errorf("add summary job %q: %w", s.cron.Summary, err)
		}
		s.log.Info("registered summary job", "schedule", s.cron.Summary)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	s.runTick(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// RunIngest fetches and qualifies notices published within the lookback
// window.
func (s *Scheduler) RunIngest(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	since := s.now().AddDate(0, 0, -s.lookback)
	res, err := s.engine.Ingest(ctx, since)
	if err != nil {
		s.log.Error("ingest", "since", since.Format(time.DateOnly), "error", err)
		return
	}
	s.log.Info("ingest done",
		"fetched", res.Fetched,
		"known", res.Known,
		"queued", res.Queued,
		"rejected", res.Rejected,
		"failed", res.Failed,
	)
}

// RunSummary refreshes and reports today's summary.
func (s *Scheduler) RunSummary(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum, err := s.engine.ReportSummary(ctx)
	if err != nil {
		s.log.Error("daily summary", "error", err)
		return
	}
	s.log.Info("daily summary", "date", sum.Date, "sent", sum.EmailsSent, "replies", sum.Replies)
}

func (s *Scheduler) runTick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poller != nil && ctx.Err() == nil {
		now := s.now()
		if s.lastPoll.IsZero() || now.Sub(s.lastPoll) >= s.pollGap {
			s.lastPoll = now
			res, err := s.poller.Poll(ctx)
			if err != nil {
				s.log.Error("poll inbox", "error", err)
			} else if res.Fetched > 0 {
				s.log.Info("polled inbox",
					"fetched", res.Fetched,
					"matched", res.Matched,
					"replies", res.Replies,
					"auto_replies", res.Auto,
					"bounces", res.Bounces,
				)
			}
		}
	}

	if ctx.Err() != nil {
		return
	}
	res, err := s.engine.SendDue(ctx)
	if err != nil {
		s.log.Error("send due", "error", err)
	} else {
		logSend(s.log, "send pass", res)
	}

	if ctx.Err() != nil {
		return
	}
	res, err = s.engine.FollowUpDue(ctx)
	if err != nil {
		s.log.Error("follow-ups due", "error", err)
	} else {
		logSend(s.log, "follow-up pass", res)
	}
}

func logSend(log *slog.Logger, msg string, r outreach.SendResult) {
	if r == (outreach.SendResult{}) {
		return
	}
	log.Info(msg,
		"sent", r.Sent,
		"bounced", r.Bounced,
		"failed", r.Failed,
		"uncertain", r.Uncertain,
		"skipped", r.Skipped,
		"held", r.Held,
		"recovered", r.Recovered,
		"expired", r.Expired,
		"stopped", r.Stopped,
	)
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
