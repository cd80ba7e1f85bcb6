package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier posts outreach alerts and summaries to the operator chat.
type Notifier struct {
	api    API
	chatID int64
}

// NewNotifier creates a Notifier for the given chat.
func NewNotifier(api API, chatID int64) *Notifier {
	return &Notifier{api: api, chatID: chatID}
}

// Notify sends text to the operator chat.
func (n *Notifier) Notify(_ context.Context, text string) error {
	if n.chatID == 0 {
		return errors.New("no operator chat configured")
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send to chat %d: %w", n.chatID, err)
	}
	return nil
}
