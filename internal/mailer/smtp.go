package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"gazette_outreach/internal/config"
)

// SMTP delivers messages through an SMTP server with STARTTLS.
type SMTP struct {
	cfg config.SMTP
	log *slog.Logger
}

// NewSMTP creates an SMTP transport.
func NewSMTP(cfg config.SMTP, log *slog.Logger) *SMTP {
	return &SMTP{cfg: cfg, log: log}
}

// stage is the point of the SMTP conversation an error happened at.
type stage int

const (
	stageConnect stage = iota
	stageEnvelope
	stageData
	stageCommit
)

// Send delivers msg. A 5xx reply to RCPT or DATA is a bounce. Failures
// before the message body was handed over are retryable. A failure while
// waiting for the final acknowledgement leaves the outcome uncertain.
func (s *SMTP) Send(ctx context.Context, msg Message) Result {
	raw, err := Build(msg)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	st, err := s.deliver(ctx, msg.From, msg.To, raw)
	if err != nil {
		res := classify(st, err)
		s.log.Warn("smtp delivery", "to", msg.To, "outcome", res.Outcome, "error", err)
		return res
	}
	return Result{Outcome: OutcomeSent}
}

func (s *SMTP) deliver(ctx context.Context, from, to string, raw []byte) (stage, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: s.cfg.Timeout, KeepAlive: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return stageConnect, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()
	if s.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return stageConnect, fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return stageConnect, fmt.Errorf("start tls: %w", err)
		}
	}
	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return stageConnect, fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		// A refused sender says nothing about the recipient.
		return stageConnect, fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return stageEnvelope, fmt.Errorf("smtp RCPT %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return stageData, fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return stageCommit, fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return stageCommit, fmt.Errorf("finish message: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.log.Debug("smtp quit", "error", err)
	}
	return stageCommit, nil
}

// classify maps an SMTP failure to a delivery outcome.
func classify(st stage, err error) Result {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code >= 500 && st != stageConnect:
			return Result{Outcome: OutcomeBounced, Err: err}
		case tpErr.Code >= 400:
			return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %w", ErrTransient, err)}
		}
	}
	if st == stageCommit {
		return Result{Outcome: OutcomeUncertain, Err: err}
	}
	return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %w", ErrTransient, err)}
}

// DryRun logs messages instead of sending them.
type DryRun struct {
	log *slog.Logger
}

// NewDryRun creates a transport that never delivers.
func NewDryRun(log *slog.Logger) *DryRun {
	return &DryRun{log: log}
}

// Send logs msg and reports it as skipped.
func (d *DryRun) Send(_ context.Context, msg Message) Result {
	d.log.Info("dry run: email not sent",
		"to", msg.To,
		"subject", msg.Subject,
		"message_id", msg.MessageID,
		"in_reply_to", msg.InReplyTo,
	)
	d.log.Debug("dry run: email body", "body", msg.Body)
	return Result{Outcome: OutcomeSkipped}
}
