package replies

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"gazette_outreach/internal/config"
)

// Handler applies one inbound message. It reports whether the message
// belonged to an outreach thread.
type Handler interface {
	HandleInbound(ctx context.Context, m Message) (bool, error)
}

// PollResult counts what one poll did.
type PollResult struct {
	Fetched  int
	Matched  int
	Failed   int
	Replies  int
	Auto     int
	Bounces  int
	Unparsed int
}

// Watcher polls an IMAP mailbox for replies and bounces.
type Watcher struct {
	cfg     config.IMAP
	handler Handler
	log     *slog.Logger
	// Lookback bounds the search to recent mail.
	Lookback time.Duration
}

// NewWatcher creates a mailbox watcher.
func NewWatcher(cfg config.IMAP, h Handler, log *slog.Logger) *Watcher {
	return &Watcher{cfg: cfg, handler: h, log: log, Lookback: 7 * 24 * time.Hour}
}

// Poll fetches unseen messages and hands each to the handler. Matched
// messages are flagged as seen; unmatched ones stay unread for a human.
func (w *Watcher) Poll(ctx context.Context) (PollResult, error) {
	var res PollResult

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	host, _, err := net.SplitHostPort(w.cfg.Addr)
	if err != nil {
		return res, fmt.Errorf("imap address %q: %w", w.cfg.Addr, err)
	}
	c, err := client.DialWithDialerTLS(dialer, w.cfg.Addr, &tls.Config{ServerName: host})
	if err != nil {
		return res, fmt.Errorf("connect to %s: %w", w.cfg.Addr, err)
	}
	defer func() { _ = c.Logout() }()
	c.Timeout = 60 * time.Second

	if err := c.Login(w.cfg.User, w.cfg.Password); err != nil {
		return res, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(w.cfg.Mailbox, false); err != nil {
		return res, fmt.Errorf("select %s: %w", w.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-w.Lookback)
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return res, fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return res, nil
	}

	raws, err := fetch(c, uids)
	if err != nil {
		return res, err
	}

	matched := new(imap.SeqSet)
	for uid, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		res.Fetched++
		m, err := Parse(raw)
		if err != nil {
			res.Unparsed++
			w.log.Warn("parse inbound message", "uid", uid, "error", err)
			continue
		}
		switch m.Kind {
		case KindReply:
			res.Replies++
		case KindAutoReply:
			res.Auto++
		case KindBounce:
			res.Bounces++
		}

		ok, err := w.handler.HandleInbound(ctx, m)
		if err != nil {
			res.Failed++
			w.log.Error("handle inbound message", "uid", uid, "from", m.From, "error", err)
			continue
		}
		if ok {
			res.Matched++
			matched.AddNum(uid)
		}
	}

	if !matched.Empty() {
		flags := []interface{}{imap.SeenFlag}
		if err := c.UidStore(matched, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			return res, fmt.Errorf("mark seen: %w", err)
		}
	}
	return res, ctx.Err()
}

func fetch(c *client.Client, uids []uint32) (map[uint32][]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	raws := make(map[uint32][]byte, len(uids))
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil && readErr == nil {
			readErr = fmt.Errorf("read message %d: %w", msg.Uid, err)
			continue
		}
		raws[msg.Uid] = raw
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return raws, readErr
}
