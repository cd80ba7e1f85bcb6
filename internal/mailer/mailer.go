// Package mailer renders outreach emails and hands them to the mail server.
package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrTransient marks a delivery failure that is worth retrying later.
var ErrTransient = errors.New("transient delivery failure")

// Outcome is what the transport knows about a delivery attempt.
type Outcome string

// Delivery outcomes.
const (
	// OutcomeSent means the server accepted the message.
	OutcomeSent Outcome = "sent"
	// OutcomeBounced means the server permanently refused the recipient or message.
	OutcomeBounced Outcome = "bounced"
	// OutcomeFailed means the message was definitely not accepted.
	OutcomeFailed Outcome = "failed"
	// OutcomeUncertain means the message may have been accepted.
	OutcomeUncertain Outcome = "uncertain"
	// OutcomeSkipped means no delivery was attempted.
	OutcomeSkipped Outcome = "skipped"
)

// Message is one outbound plain-text email.
type Message struct {
	FromName  string
	From      string
	ToName    string
	To        string
	Subject   string
	Body      string
	MessageID string
	// InReplyTo threads a follow-up under the original message.
	InReplyTo string
	Date      time.Time
}

// Result reports a delivery attempt.
type Result struct {
	Outcome Outcome
	Err     error
}

func (r Result) String() string {
	if r.Err == nil {
		return string(r.Outcome)
	}
	return fmt.Sprintf("%s: %v", r.Outcome, r.Err)
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewMessageID returns an RFC 5322 Message-ID in the sender's domain.
func NewMessageID(domain string) string {
	id, err := gonanoid.Generate(idAlphabet, 16)
	if err != nil {
		panic(err)
	}
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixMicro(), id, domain)
}

// DomainOf returns the part of an address after the @.
func DomainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

// Build encodes msg as MIME.
func Build(msg Message) ([]byte, error) {
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	b := enmime.Builder().
		From(msg.FromName, msg.From).
		To(msg.ToName, msg.To).
		Subject(msg.Subject).
		Date(date).
		Text([]byte(msg.Body))
	if msg.MessageID != "" {
		b = b.Header("Message-ID", msg.MessageID)
	}
	if msg.InReplyTo != "" {
		b = b.Header("In-Reply-To", msg.InReplyTo).Header("References", msg.InReplyTo)
	}

	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}
	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return buf.Bytes(), nil
}
