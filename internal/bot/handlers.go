package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gazette_outreach/internal/model"
	"gazette_outreach/internal/outreach"
	"gazette_outreach/internal/storage"
)

// Approval buttons shown under /queue.
const maxQueueButtons = 10

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Pipeline:
/status — counts, today's sends and holds
/queue — contacts waiting to be sent
/contact <id> — contact details
/run — fetch and qualify new notices now
/summary [YYYY-MM-DD] — daily summary (default: today)

Contacts:
/approve <id> — allow a queued contact to be sent
/release <id> — release a held contact
/reply <id> — record a reply received elsewhere
/meeting <id> — a meeting was booked
/won <id> — deal won
/lost <id> — deal lost

Blocklist:
/block <email|domain> [reason] — never contact again
/blocklist — show blocked addresses and domains`)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	o, err := b.engine.Overview(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatOverview(o, b.engine.Rules().Location))
}

func (b *Bot) handleQueue(ctx context.Context, chatID int64) {
	queued, err := b.store.ListContacts(ctx, storage.ContactFilter{Statuses: []model.Status{model.StatusQueued}})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatQueue(queued, b.engine.Rules().Location))
	msg.DisableWebPagePreview = true

	if b.engine.Rules().RequireApproval {
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, c := range queued {
			if c.ApprovedAt != nil || c.LeaseToken != "" {
				continue
			}
			if len(rows) == maxQueueButtons {
				break
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Approve #%d %s", c.ID, c.CompanyName), fmt.Sprintf("%s:%d", cmdApprove, c.ID)),
			))
		}
		if len(rows) > 0 {
			msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
		}
	}

	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send queue", "error", err)
	}
}

func (b *Bot) handleContact(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /contact <id>")
		return
	}

	c, err := b.store.GetContact(ctx, id)
	if err != nil {
		b.actionError(chatID, id, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatContact(c, b.engine.Rules().Location))
	msg.DisableWebPagePreview = true
	if kb, ok := contactKeyboard(c, b.engine.Rules().RequireApproval); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send contact", "error", err)
	}
}

func (b *Bot) handleApprove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /approve <id>")
		return
	}
	c, err := b.engine.Approve(ctx, id)
	if err != nil {
		b.actionError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Contact #%d approved: %s at %s.", c.ID, c.Email, c.CompanyName))
}

func (b *Bot) handleRelease(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /release <id>")
		return
	}
	c, err := b.engine.Release(ctx, id)
	if err != nil {
		b.actionError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Contact #%d released and back in the queue.", c.ID))
}

func (b *Bot) handleTransition(ctx context.Context, chatID int64, args string, ev outreach.Event) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id>", ev))
		return
	}
	c, err := b.engine.Transition(ctx, id, ev)
	if err != nil {
		b.actionError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Contact #%d %s is now %s.", c.ID, c.CompanyName, c.Status))
}

func (b *Bot) handleBlock(ctx context.Context, chatID int64, args string) {
	value, reason, err := ParseBlockArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if err := b.engine.Block(ctx, value, reason); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Blocked %s.", value))
}

func (b *Bot) handleBlocklist(ctx context.Context, chatID int64) {
	entries, err := b.store.ListBlocklist(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatBlocklist(entries))
}

func (b *Bot) handleSummary(ctx context.Context, chatID int64, args string) {
	loc := b.engine.Rules().Location
	now := b.now()
	date, err := ParseDateArg(args, now, loc)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	if date == now.In(loc).Format(time.DateOnly) {
		s, err := b.engine.RefreshSummary(ctx, now)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, outreach.FormatSummary(s))
		return
	}

	s, err := b.store.GetSummary(ctx, date)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("No summary for %s.", date))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, outreach.FormatSummary(*s))
}

func (b *Bot) handleRun(ctx context.Context, chatID int64) {
	days := max(b.cfg.Gazette.LookbackDays, 1)
	since := b.now().AddDate(0, 0, -days)

	b.reply(chatID, fmt.Sprintf("Fetching notices since %s...", since.Format(time.DateOnly)))
	res, err := b.engine.Ingest(ctx, since)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Ingest failed: %v", err))
		return
	}
	b.reply(chatID, "Ingest done: "+res.String()+".")
}

func (b *Bot) actionError(chatID, id int64, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, fmt.Sprintf("Contact #%d not found.", id))
	case errors.Is(err, outreach.ErrInvalidTransition):
		var te *outreach.TransitionError
		if errors.As(err, &te) && te.Reason != "" {
			b.reply(chatID, fmt.Sprintf("Not possible for contact #%d: %s.", id, te.Reason))
			return
		}
		b.reply(chatID, fmt.Sprintf("Not possible for contact #%d: %v", id, err))
	default:
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	}
}
