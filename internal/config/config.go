// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Send windows are evaluated in a named zone.

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds the application configuration. It is fixed at startup.
type Config struct {
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/outreach.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	Rules    Rules
	Sender   Sender
	SMTP     SMTP
	IMAP     IMAP
	Registry Registry
	Gazette  Gazette
	Telegram Telegram
	HTTP     HTTP
	Cron     Cron
}

// Rules are the outreach tunables read by the qualification gates, the
// planner and the state machine.
type Rules struct {
	MinOutreachScore  int           `env:"MIN_OUTREACH_SCORE" envDefault:"50"`
	MaxEmailsPerDay   int           `env:"MAX_EMAILS_PER_DAY" envDefault:"10"`
	MaxPerFirmPerDay  int           `env:"MAX_PER_FIRM_PER_DAY" envDefault:"2"`
	CooldownDays      int           `env:"IP_COOLDOWN_DAYS" envDefault:"14"`
	WindowStart       Clock         `env:"SEND_WINDOW_START" envDefault:"09:00"`
	WindowEnd         Clock         `env:"SEND_WINDOW_END" envDefault:"17:00"`
	SendDays          Weekdays      `env:"SEND_DAYS" envDefault:"Mon,Tue,Wed,Thu,Fri"`
	MinDelay          time.Duration `env:"MIN_DELAY_BETWEEN_SENDS" envDefault:"2m"`
	FollowUpDelayDays int           `env:"FOLLOWUP_DELAY_DAYS" envDefault:"7"`
	MaxFollowUps      int           `env:"MAX_FOLLOWUPS" envDefault:"2"`
	DryRun            bool          `env:"DRY_RUN_MODE" envDefault:"false"`

	Timezone        string        `env:"SEND_TIMEZONE" envDefault:"Europe/London"`
	WindowOffsetMax time.Duration `env:"WINDOW_OFFSET_MAX" envDefault:"30m"`
	JitterMin       time.Duration `env:"SEND_JITTER_MIN" envDefault:"1m"`
	JitterMax       time.Duration `env:"SEND_JITTER_MAX" envDefault:"10m"`
	SendLease       time.Duration `env:"SEND_LEASE" envDefault:"10m"`
	RequireApproval bool          `env:"REQUIRE_APPROVAL" envDefault:"false"`
	MaxSendsPerRun  int           `env:"MAX_SENDS_PER_RUN" envDefault:"0"`
	TestRecipient   string        `env:"TEST_RECIPIENT_OVERRIDE"`
	WarmupStartDate string        `env:"WARMUP_START_DATE"`
	WarmupLimits    []int         `env:"WARMUP_LIMITS" envDefault:"5,15,30,50" envSeparator:","`

	// Resolved by Load.
	Location    *time.Location
	WarmupStart *time.Time
}

// FollowUpDelay returns the follow-up cooldown as a duration.
func (r Rules) FollowUpDelay() time.Duration {
	return time.Duration(r.FollowUpDelayDays) * 24 * time.Hour
}

// DailyCap returns the global daily cap in force at now. During warm-up the
// cap is the limit of the current warm-up week when that is lower.
func (r Rules) DailyCap(now time.Time) int {
	limit := r.MaxEmailsPerDay
	if r.WarmupStart == nil || len(r.WarmupLimits) == 0 || now.Before(*r.WarmupStart) {
		return limit
	}
	week := int(now.Sub(*r.WarmupStart) / (7 * 24 * time.Hour))
	if week >= len(r.WarmupLimits) {
		return limit
	}
	if w := r.WarmupLimits[week]; w < limit {
		return w
	}
	return limit
}

// Sender identifies the person the outreach is sent from.
type Sender struct {
	Name    string `env:"OUTREACH_SENDER_NAME"`
	Email   string `env:"OUTREACH_SENDER_EMAIL"`
	Phone   string `env:"OUTREACH_SENDER_PHONE"`
	Company string `env:"OUTREACH_SENDER_COMPANY"`
	// SummaryTo receives the daily summary by email when set.
	SummaryTo string `env:"OUTREACH_SUMMARY_TO"`
}

// SMTP holds the outbound mail server settings.
type SMTP struct {
	Host     string        `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	Port     int           `env:"SMTP_PORT" envDefault:"587"`
	User     string        `env:"SMTP_USER"`
	Password string        `env:"SMTP_PASSWORD"`
	Timeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"30s"`
}

// IMAP holds the inbox settings used for reply detection.
type IMAP struct {
	Addr         string        `env:"IMAP_ADDR"`
	User         string        `env:"IMAP_USER"`
	Password     string        `env:"IMAP_PASSWORD"`
	Mailbox      string        `env:"IMAP_MAILBOX" envDefault:"INBOX"`
	PollInterval time.Duration `env:"IMAP_POLL_INTERVAL" envDefault:"5m"`
}

// Enabled reports whether inbox polling is configured.
func (c IMAP) Enabled() bool {
	return c.Addr != "" && c.User != ""
}

// Registry holds the company registry API settings.
type Registry struct {
	APIKey  string        `env:"COMPANIES_HOUSE_API_KEY"`
	BaseURL string        `env:"COMPANIES_HOUSE_BASE_URL" envDefault:"https://api.company-information.service.gov.uk"`
	Timeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

// Gazette holds the notice feed settings.
type Gazette struct {
	FeedBase     string `env:"GAZETTE_FEED_BASE" envDefault:"https://www.thegazette.co.uk/all-notices/notice"`
	LookbackDays int    `env:"LOOKBACK_DAYS" envDefault:"1"`
}

// Telegram holds the operator bot settings. The bot is disabled without a token.
type Telegram struct {
	BotToken       string  `env:"TELEGRAM_BOT_TOKEN"`
	OperatorChatID int64   `env:"TELEGRAM_OPERATOR_CHAT_ID"`
	AllowedUsers   []int64 `env:"ALLOWED_USERS" envSeparator:","`
}

// HTTP holds the reporting API settings. The API is disabled without an address.
type HTTP struct {
	ListenAddr string `env:"HTTP_LISTEN_ADDR"`
}

// Cron holds the schedules of the periodic jobs (with seconds field).
type Cron struct {
	Ingest  string        `env:"CRON_SCHEDULE_INGEST" envDefault:"0 0 7 * * 1-5"`
	Summary string        `env:"CRON_SCHEDULE_SUMMARY" envDefault:"0 0 18 * * *"`
	Tick    time.Duration `env:"SEND_TICK_INTERVAL" envDefault:"1m"`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Rules.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SEND_TIMEZONE %q: %w", cfg.Rules.Timezone, err)
	}
	cfg.Rules.Location = loc

	if raw := strings.TrimSpace(cfg.Rules.WarmupStartDate); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid WARMUP_START_DATE %q: %w", raw, err)
		}
		cfg.Rules.WarmupStart = &t
	}

	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the rules for values the engine cannot work with.
func (r Rules) Validate() error {
	if !r.WindowStart.Before(r.WindowEnd) {
		return fmt.Errorf("SEND_WINDOW_START %s must be before SEND_WINDOW_END %s", r.WindowStart, r.WindowEnd)
	}
	if len(r.SendDays) == 0 {
		return fmt.Errorf("SEND_DAYS must name at least one weekday")
	}
	if r.MaxEmailsPerDay < 1 || r.MaxPerFirmPerDay < 1 {
		return fmt.Errorf("daily caps must be positive")
	}
	if r.CooldownDays < 0 || r.FollowUpDelayDays < 1 || r.MaxFollowUps < 0 {
		return fmt.Errorf("cooldown and follow-up settings out of range")
	}
	if r.JitterMin < 0 || r.JitterMin > r.JitterMax || r.WindowOffsetMax < 0 {
		return fmt.Errorf("SEND_JITTER_MIN must be between 0 and SEND_JITTER_MAX")
	}
	if r.SendLease <= 0 {
		return fmt.Errorf("SEND_LEASE must be positive")
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.Telegram.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.Telegram.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// UnmarshalText parses an HH:MM value.
func (c *Clock) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return fmt.Errorf("invalid minute in %q", s)
	}
	c.Hour, c.Minute = h, m
	return nil
}

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Before reports whether c is earlier in the day than o.
func (c Clock) Before(o Clock) bool {
	return c.Minutes() < o.Minutes()
}

// Minutes returns the number of minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On returns the instant of the clock on t's calendar date in t's location.
func (c Clock) On(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, c.Hour, c.Minute, 0, 0, t.Location())
}

// Weekdays is a set of days on which sending is allowed.
type Weekdays []time.Weekday

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// UnmarshalText parses a comma-separated list such as "Mon,Tue,Wed".
func (w *Weekdays) UnmarshalText(text []byte) error {
	var days Weekdays
	for _, part := range strings.Split(string(text), ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if len(part) > 3 {
			part = part[:3]
		}
		d, ok := weekdayNames[part]
		if !ok {
			return fmt.Errorf("invalid weekday %q", part)
		}
		days = append(days, d)
	}
	*w = days
	return nil
}

// Contains reports whether d is in the set.
func (w Weekdays) Contains(d time.Weekday) bool {
	for _, x := range w {
		if x == d {
			return true
		}
	}
	return false
}
