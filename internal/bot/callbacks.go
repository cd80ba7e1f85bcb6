package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gazette_outreach/internal/model"
	"gazette_outreach/internal/outreach"
)

const (
	cmdApprove     = "approve"
	cmdRelease     = "release"
	cmdMeeting     = "meeting"
	cmdWon         = "won"
	cmdLost        = "lost"
	cmdLostConfirm = "lost_confirm"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}

	action := parts[0]
	idStr := parts[1]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdApprove:
		b.handleApprove(ctx, chatID, idStr)
	case cmdRelease:
		b.handleRelease(ctx, chatID, idStr)
	case cmdMeeting:
		b.handleTransition(ctx, chatID, idStr, outreach.EventMeeting)
	case cmdWon:
		b.handleTransition(ctx, chatID, idStr, outreach.EventWon)
	case cmdLostConfirm:
		c, err := b.store.GetContact(ctx, id)
		if err != nil {
			b.actionError(chatID, id, err)
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Mark #%d %s as lost? This closes the contact.", id, c.CompanyName))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, mark lost", fmt.Sprintf("%s:%d", cmdLost, id)),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send lost confirmation", "error", err)
		}
	case cmdLost:
		b.handleTransition(ctx, chatID, idStr, outreach.EventLost)
	}
}

// contactKeyboard returns the action buttons that apply to the contact in
// its current state.
func contactKeyboard(c *model.OutreachContact, requireApproval bool) (tgbotapi.InlineKeyboardMarkup, bool) {
	button := func(label, action string) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s:%d", action, c.ID))
	}

	var row []tgbotapi.InlineKeyboardButton
	if c.Held() {
		row = append(row, button("Release", cmdRelease))
	}
	if requireApproval && c.Status == model.StatusQueued && c.ApprovedAt == nil && c.LeaseToken == "" {
		row = append(row, button("Approve", cmdApprove))
	}
	switch c.Status {
	case model.StatusReplied:
		row = append(row, button("Meeting booked", cmdMeeting), button("Won", cmdWon), button("Lost", cmdLostConfirm))
	case model.StatusMeeting:
		row = append(row, button("Won", cmdWon), button("Lost", cmdLostConfirm))
	}

	if len(row) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}
