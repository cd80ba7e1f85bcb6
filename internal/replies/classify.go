// Package replies classifies inbound mail and polls the outreach inbox.
package replies

import (
	"bytes"
	"fmt"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// Kind is the classification of an inbound message.
type Kind string

// Inbound message kinds.
const (
	KindReply     Kind = "reply"
	KindAutoReply Kind = "auto_reply"
	KindBounce    Kind = "bounce"
)

// Message is an inbound email reduced to what reply matching needs.
type Message struct {
	From       string
	Subject    string
	MessageID  string
	InReplyTo  string
	References []string
	Header     textproto.MIMEHeader
	Text       string
	ReceivedAt time.Time

	Kind Kind
	// FailedRecipients are the addresses a bounce reports as undeliverable.
	FailedRecipients []string
	// Unsubscribe is set when a reply asks not to be contacted again.
	Unsubscribe bool
}

// ReferencedIDs returns the Message-IDs the message answers, most recent first.
func (m Message) ReferencedIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(m.InReplyTo)
	for i := len(m.References) - 1; i >= 0; i-- {
		add(m.References[i])
	}
	return ids
}

// Parse reads a raw RFC 5322 message and classifies it.
func Parse(raw []byte) (Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}

	header := make(textproto.MIMEHeader)
	for _, key := range env.GetHeaderKeys() {
		for _, v := range env.GetHeaderValues(key) {
			header.Add(key, v)
		}
	}

	m := Message{
		From:       addressOf(env.GetHeader("From")),
		Subject:    env.GetHeader("Subject"),
		MessageID:  strings.TrimSpace(env.GetHeader("Message-ID")),
		InReplyTo:  strings.TrimSpace(env.GetHeader("In-Reply-To")),
		References: strings.Fields(env.GetHeader("References")),
		Header:     header,
		Text:       env.Text,
	}
	if d, err := env.Date(); err == nil {
		m.ReceivedAt = d
	}

	report := env.Text
	parts := append(append(env.Attachments, env.Inlines...), env.OtherParts...)
	for _, p := range parts {
		if strings.HasPrefix(p.ContentType, "message/delivery-status") {
			report += "\n" + string(p.Content)
		}
	}
	Classify(&m, report)
	return m, nil
}

var (
	bounceSubjects = []string{
		"undeliverable",
		"undelivered mail",
		"delivery status notification (failure)",
		"mail delivery failed",
		"mail delivery failure",
		"delivery failure",
		"returned mail",
		"failure notice",
		"delivery has failed",
	}
	autoReplySubjects = []string{
		"out of office",
		"out of the office",
		"automatic reply",
		"auto reply",
		"auto-reply",
		"autoreply",
		"away from the office",
		"on annual leave",
		"on holiday",
		"on leave",
	}
	autoReplyPhrases = []string{
		"out of the office",
		"out of office",
		"on annual leave",
		"currently away",
		"limited access to email",
		"limited access to my email",
		"on my return",
		"i am away",
		"i'm away",
		"back in the office on",
		"will be returning on",
	}
	bounceSenders = []string{"mailer-daemon", "postmaster"}

	finalRecipientRe = regexp.MustCompile(`(?im)^(?:final|original)-recipient:\s*rfc822;\s*<?([^>\s]+)>?`)
	wroteRe          = regexp.MustCompile(`(?im)^on .+ wrote:\s*$`)
)

// shortBody is the length below which body phrases are trusted. Longer
// messages are real replies that happen to mention leave.
const shortBody = 600

// Classify sets m.Kind, m.FailedRecipients and m.Unsubscribe. Headers are
// checked before the subject, the subject before the body.
func Classify(m *Message, report string) {
	m.Kind = KindReply
	m.FailedRecipients = nil
	m.Unsubscribe = false

	if isBounce(m) {
		m.Kind = KindBounce
		m.FailedRecipients = failedRecipients(m.Header, report)
		return
	}
	if isAutoReply(m) {
		m.Kind = KindAutoReply
		return
	}
	m.Unsubscribe = asksToUnsubscribe(m)
}

func isBounce(m *Message) bool {
	if m.Header.Get("X-Failed-Recipients") != "" {
		return true
	}
	if ct := strings.ToLower(m.Header.Get("Content-Type")); strings.Contains(ct, "multipart/report") &&
		strings.Contains(ct, "delivery-status") {
		return true
	}
	local := strings.ToLower(m.From)
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	for _, s := range bounceSenders {
		if local == s {
			return true
		}
	}
	return containsAny(strings.ToLower(m.Subject), bounceSubjects)
}

func isAutoReply(m *Message) bool {
	if v := strings.ToLower(strings.TrimSpace(m.Header.Get("Auto-Submitted"))); v != "" && v != "no" {
		return true
	}
	if m.Header.Get("X-Autoreply") != "" || m.Header.Get("X-Autorespond") != "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(m.Header.Get("Precedence")), "auto_reply") {
		return true
	}
	if containsAny(strings.ToLower(m.Subject), autoReplySubjects) {
		return true
	}
	body := newText(m.Text)
	if len(body) > shortBody {
		return false
	}
	return containsAny(strings.ToLower(body), autoReplyPhrases)
}

func asksToUnsubscribe(m *Message) bool {
	if strings.Contains(strings.ToLower(m.Subject), "unsubscribe") {
		return true
	}
	for _, line := range strings.Split(strings.ToLower(newText(m.Text)), "\n") {
		if strings.Contains(line, `reply with "unsubscribe"`) {
			continue
		}
		if strings.Contains(line, "unsubscribe") || strings.Contains(line, "remove me from") {
			return true
		}
	}
	return false
}

// newText returns the part of a reply above the quoted original.
func newText(text string) string {
	if loc := wroteRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-----Original Message-----") || strings.HasPrefix(trimmed, "From: ") {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func failedRecipients(h textproto.MIMEHeader, report string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		addr = strings.ToLower(strings.Trim(strings.TrimSpace(addr), "<>"))
		if addr != "" && strings.Contains(addr, "@") && !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	for _, v := range h.Values("X-Failed-Recipients") {
		for _, a := range strings.Split(v, ",") {
			add(a)
		}
	}
	for _, m := range finalRecipientRe.FindAllStringSubmatch(report, -1) {
		add(m[1])
	}
	return out
}

func addressOf(from string) string {
	if a, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(a.Address)
	}
	return strings.ToLower(strings.Trim(strings.TrimSpace(from), "<>"))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
