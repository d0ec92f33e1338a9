// Package bot implements the Telegram command interface: channel
// subscriptions, interest profiles, provider selection and the userbot
// login flow.
package bot

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"digest_bot/internal/auth"
	"digest_bot/internal/source"
	"digest_bot/internal/storage"
	"digest_bot/internal/summarizer"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ChannelProber looks a public channel up before it is added.
type ChannelProber interface {
	ChannelInfo(ctx context.Context, name string) (*source.ChannelInfo, error)
}

// AuthFlow is the slice of the auth manager the bot commands drive.
type AuthFlow interface {
	State() auth.State
	Phone() string
	StartAuth(ctx context.Context, phone string) error
	ConfirmCode(ctx context.Context, code string) (auth.State, error)
	ConfirmPassword(ctx context.Context, password string) (auth.State, error)
	Logout(ctx context.Context) error
}

// Bot is the Telegram bot that handles user commands.
type Bot struct {
	api      telegramAPI
	store    storage.Storage
	prober   ChannelProber
	auth     AuthFlow
	settings *summarizer.Settings
	log      *slog.Logger
}

// New creates a Bot on top of an existing Telegram API client. The client
// is shared with the delivery engine.
func New(api *tgbotapi.BotAPI, store storage.Storage, prober ChannelProber, authFlow AuthFlow, settings *summarizer.Settings, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		store:    store,
		prober:   prober,
		auth:     authFlow,
		settings: settings,
		log:      log,
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
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	user, err := b.resolveUser(ctx, msg)
	if err != nil {
		b.log.Error("resolve user", "telegram_id", msg.From.ID, "error", err)
		b.reply(chatID, "Something went wrong, try again later.")
		return
	}

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "add":
		b.handleAdd(ctx, chatID, user, args)
	case "list":
		b.handleList(ctx, chatID, user)
	case "remove":
		b.handleRemove(ctx, chatID, user, args)
	case "interests":
		b.handleInterests(ctx, chatID, user, args)
	case "provider":
		b.handleProvider(ctx, chatID, args)
	case "auth":
		b.handleAuth(ctx, chatID, args)
	case "code":
		b.handleCode(ctx, chatID, args)
	case "password":
		b.handlePassword(ctx, chatID, args)
	case "logout":
		b.handleLogout(ctx, chatID)
	case "status":
		b.handleStatus(ctx, chatID, user)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
