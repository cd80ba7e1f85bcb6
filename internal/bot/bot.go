package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gazette_outreach/internal/config"
	"gazette_outreach/internal/outreach"
	"gazette_outreach/internal/storage"
)

// API is the subset of the Telegram client the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewAPI connects to Telegram with the given bot token.
func NewAPI(token string) (API, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

// Bot is the Telegram bot that handles operator commands.
type Bot struct {
	api    API
	engine *outreach.Engine
	store  storage.Storage
	cfg    *config.Config
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Bot over the outreach engine and its store.
func New(api API, engine *outreach.Engine, store storage.Storage, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:    api,
		engine: engine,
		store:  store,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || !b.cfg.IsUserAllowed(cb.From.ID) {
			return
		}
		b.handleCallback(ctx, cb)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
		b.reply(update.Message.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, update.Message)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start", "help":
		b.handleHelp(chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case "queue":
		b.handleQueue(ctx, chatID)
	case "contact":
		b.handleContact(ctx, chatID, args)
	case cmdApprove:
		b.handleApprove(ctx, chatID, args)
	case cmdRelease:
		b.handleRelease(ctx, chatID, args)
	case "reply":
		b.handleTransition(ctx, chatID, args, outreach.EventReply)
	case cmdMeeting:
		b.handleTransition(ctx, chatID, args, outreach.EventMeeting)
	case cmdWon:
		b.handleTransition(ctx, chatID, args, outreach.EventWon)
	case cmdLost:
		b.handleTransition(ctx, chatID, args, outreach.EventLost)
	case "block":
		b.handleBlock(ctx, chatID, args)
	case "blocklist":
		b.handleBlocklist(ctx, chatID)
	case "summary":
		b.handleSummary(ctx, chatID, args)
	case "run":
		b.handleRun(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
